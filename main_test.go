package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ericogr/plantpot-to-mqtt/pkg/config"
	"github.com/ericogr/plantpot-to-mqtt/pkg/sensor"
	"go.uber.org/zap/zaptest"
)

func TestComputeSensorInterval(t *testing.T) {
	// no enabled channels -> fallback to global sample rate
	cfg := config.Config{SampleRate: 128}
	if got := computeSensorInterval(cfg); got != 10 {
		t.Fatalf("fallback interval: got %d want 10", got)
	}

	// one enabled channel (default sample rate 128)
	cfg.Soil = []config.SoilConfig{{Channel: 0, Enabled: true}}
	if got := computeSensorInterval(cfg); got != 10 {
		t.Fatalf("one channel interval: got %d want 10", got)
	}

	// two enabled channels at 128 -> ~20ms
	cfg.Soil = []config.SoilConfig{{Channel: 0, Enabled: true}, {Channel: 1, Enabled: true}}
	if got := computeSensorInterval(cfg); got != 20 {
		t.Fatalf("two channel interval: got %d want 20", got)
	}

	// mixed sample rates: 128 and 250 -> expect 10 + 6 = 16
	cfg.Soil = []config.SoilConfig{{Channel: 0, Enabled: true, SampleRate: 128}, {Channel: 1, Enabled: true, SampleRate: 250}}
	if got := computeSensorInterval(cfg); got != 16 {
		t.Fatalf("mixed interval: got %d want 16", got)
	}

	// dht bounds the rate
	cfg.DHT.Enabled = true
	if got := computeSensorInterval(cfg); got != 2000 {
		t.Fatalf("dht interval: got %d want 2000", got)
	}
}

func TestInitOutputsSetsInterval(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}}}
	entries, err := initOutputs(&cfg, 123, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("initOutputs: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries len: %d", len(entries))
	}
	if cfg.Outputs[0].IntervalMs != 123 {
		t.Fatalf("cfg output interval not set, got %d", cfg.Outputs[0].IntervalMs)
	}
	if entries[0].IntervalMs != 123 {
		t.Fatalf("entry interval not set, got %d", entries[0].IntervalMs)
	}
}

func TestInitOutputsRejectsBadOutputs(t *testing.T) {
	for _, oc := range []config.OutputConfig{{Type: "carrier-pigeon"}, {Type: "influx"}, {Type: "backend"}} {
		cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}, oc}}
		if _, err := initOutputs(&cfg, 100, nil, zaptest.NewLogger(t)); err == nil {
			t.Fatalf("%s: expected error", oc.Type)
		}
	}
}

type countingSensor struct {
	mu sync.Mutex
	n  int
}

func (c *countingSensor) Read() ([]sensor.Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return []sensor.Reading{{Key: "soil0", Kind: sensor.KindMoisture, Value: float64(c.n)}}, nil
}

func (c *countingSensor) Close() error { return nil }

type recordingOutput struct {
	mu    sync.Mutex
	calls [][]sensor.Reading
}

func (r *recordingOutput) Publish(readings []sensor.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, readings)
	return nil
}

func (r *recordingOutput) Close() error { return nil }

func TestRunPublishesLatestSnapshot(t *testing.T) {
	src := &countingSensor{}
	out := &recordingOutput{}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	run(ctx, src, []outputEntry{{Type: "test", Out: out, IntervalMs: 20}}, 5, zaptest.NewLogger(t))

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.calls) < 2 {
		t.Fatalf("publishes: %d", len(out.calls))
	}
	last := out.calls[len(out.calls)-1]
	if len(last) != 1 || last[0].Value <= 1 {
		t.Fatalf("last publish should carry a fresh sample: %+v", last)
	}
}
