package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ericogr/plantpot-to-mqtt/pkg/config"
	"github.com/ericogr/plantpot-to-mqtt/pkg/output"
	"github.com/ericogr/plantpot-to-mqtt/pkg/output/backend"
	"github.com/ericogr/plantpot-to-mqtt/pkg/output/console"
	"github.com/ericogr/plantpot-to-mqtt/pkg/output/influx"
	"github.com/ericogr/plantpot-to-mqtt/pkg/output/mqtt"
	"github.com/ericogr/plantpot-to-mqtt/pkg/output/prometheus"
	"github.com/ericogr/plantpot-to-mqtt/pkg/sensor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version = "dev"
	commit  = "none"
)

type outputEntry struct {
	Type       string
	Out        output.Output
	IntervalMs int
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	logger.Info("starting up", zap.String("version", version), zap.String("commit", commit),
		zap.String("sensorType", cfg.SensorType), zap.String("pot", cfg.PotLabel))

	st, err := sensor.New(cfg, logger)
	if err != nil {
		logger.Fatal("cannot init sensors", zap.Error(err))
	}
	defer st.Close()

	entries, err := initOutputs(&cfg, cfg.IntervalMs, st.Entities(), logger)
	if err != nil {
		logger.Fatal("cannot init outputs", zap.Error(err))
	}
	defer func() {
		for _, e := range entries {
			if err := e.Out.Close(); err != nil {
				logger.Warn("output close", zap.String("output", e.Type), zap.Error(err))
			}
		}
	}()

	run(ctx, st, entries, computeSensorInterval(cfg), logger)
	logger.Info("shutting down")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(os.Stderr), lvl)
	return zap.New(core), nil
}

// computeSensorInterval returns how often (ms) the station can be sampled:
// the sum of ADS1115 conversion delays of enabled soil channels (global
// sample rate when none is enabled), raised to the DHT minimum period when a
// DHT is in use.
func computeSensorInterval(cfg config.Config) int {
	total := 0
	for _, s := range cfg.Soil {
		if !s.Enabled {
			continue
		}
		sr := s.SampleRate
		if sr == 0 {
			sr = cfg.SampleRate
		}
		total += sensor.ConversionDelayMs(sr)
	}
	if total == 0 {
		total = sensor.ConversionDelayMs(cfg.SampleRate)
	}
	if dhtMs := int(sensor.DHTMinInterval / time.Millisecond); cfg.DHT.Enabled && total < dhtMs {
		total = dhtMs
	}
	return total
}

func initOutputs(cfg *config.Config, defaultIntervalMs int, entities []sensor.Entity, logger *zap.Logger) ([]outputEntry, error) {
	entries := make([]outputEntry, 0, len(cfg.Outputs))
	for i := range cfg.Outputs {
		oc := &cfg.Outputs[i]
		if oc.IntervalMs == 0 {
			oc.IntervalMs = defaultIntervalMs
		}
		out, err := newOutput(*oc, cfg.PotLabel, entities, logger)
		if err != nil {
			for _, e := range entries {
				_ = e.Out.Close()
			}
			return nil, fmt.Errorf("output %s: %w", oc.Type, err)
		}
		entries = append(entries, outputEntry{Type: oc.Type, Out: out, IntervalMs: oc.IntervalMs})
	}
	return entries, nil
}

func newOutput(oc config.OutputConfig, potLabel string, entities []sensor.Entity, logger *zap.Logger) (output.Output, error) {
	switch strings.ToLower(oc.Type) {
	case "console":
		return console.NewConsole(), nil
	case "mqtt":
		var mc config.MQTTConfig
		if oc.MQTT != nil {
			mc = *oc.MQTT
		}
		return mqtt.NewMQTT(mc, entities, logger)
	case "prometheus":
		var pc config.PrometheusConfig
		if oc.Prometheus != nil {
			pc = *oc.Prometheus
		}
		return prometheus.NewPrometheus(pc, potLabel, logger)
	case "influx":
		if oc.Influx == nil {
			return nil, fmt.Errorf("missing influx settings")
		}
		return influx.NewInflux(*oc.Influx, potLabel)
	case "backend":
		if oc.Backend == nil {
			return nil, fmt.Errorf("missing backend settings")
		}
		return backend.NewBackend(*oc.Backend, potLabel, logger)
	}
	return nil, fmt.Errorf("unknown output type %q", oc.Type)
}

// snapshot holds the most recent successful readings.
type snapshot struct {
	mu       sync.Mutex
	readings []sensor.Reading
}

func (s *snapshot) set(r []sensor.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = r
}

func (s *snapshot) get() []sensor.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sensor.Reading(nil), s.readings...)
}

// run samples src every sensorIntervalMs and lets every output publish the
// latest snapshot on its own interval until ctx is done.
func run(ctx context.Context, src sensor.Sensor, outs []outputEntry, sensorIntervalMs int, logger *zap.Logger) {
	latest := &snapshot{}
	sample := func() {
		readings, err := src.Read()
		if err != nil {
			logger.Warn("sensor read", zap.Error(err))
		}
		if len(readings) > 0 {
			latest.set(readings)
		}
	}
	sample()

	var wg sync.WaitGroup
	for _, e := range outs {
		wg.Add(1)
		go func(e outputEntry) {
			defer wg.Done()
			publishLoop(ctx, e, latest, logger)
		}(e)
	}

	ticker := time.NewTicker(time.Duration(sensorIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sample()
		case <-ctx.Done():
			wg.Wait()
			return
		}
	}
}

func publishLoop(ctx context.Context, e outputEntry, latest *snapshot, logger *zap.Logger) {
	ticker := time.NewTicker(time.Duration(e.IntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			readings := latest.get()
			if len(readings) == 0 {
				continue
			}
			if err := e.Out.Publish(readings); err != nil {
				logger.Error("publish failed", zap.String("output", e.Type), zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
