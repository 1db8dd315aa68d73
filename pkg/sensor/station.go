package sensor

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/ericogr/plantpot-to-mqtt/pkg/config"
	"go.uber.org/zap"
)

// Station samples one optional temperature/humidity sensor and any number
// of soil moisture probes as a single Sensor.
type Station struct {
	th      *TemperatureHumiditySensor
	thName  string
	soils   []soilProbe
	closers []io.Closer
	log     *zap.Logger
	now     func() time.Time
}

type soilProbe struct {
	key    string
	name   string
	sensor *SoilMoistureSensor
}

type StationOption func(*Station)

func WithLogger(l *zap.Logger) StationOption {
	return func(s *Station) { s.log = l }
}

// WithTemperatureHumidity attaches th. A non-empty name prefixes its keys.
func WithTemperatureHumidity(name string, th *TemperatureHumiditySensor) StationOption {
	return func(s *Station) {
		s.th = th
		s.thName = name
	}
}

func WithSoil(key, name string, sm *SoilMoistureSensor) StationOption {
	return func(s *Station) { s.soils = append(s.soils, soilProbe{key: key, name: name, sensor: sm}) }
}

// WithCloser registers a resource released by Close, e.g. a shared ADC.
func WithCloser(c io.Closer) StationOption {
	return func(s *Station) { s.closers = append(s.closers, c) }
}

func NewStation(opts ...StationOption) *Station {
	s := &Station{log: zap.L(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// New builds a Station from configuration, on real hardware or simulated
// drivers depending on cfg.SensorType.
func New(cfg config.Config, logger *zap.Logger) (*Station, error) {
	probes, _, _ := soilChannelSettings(cfg)
	opts := []StationOption{WithLogger(logger)}

	switch cfg.SensorType {
	case config.SensorTypeSimulation:
		if cfg.DHT.Enabled {
			opts = append(opts, WithTemperatureHumidity(cfg.DHT.Name, NewTemperatureHumiditySensor(NewFakeDHT())))
		}
		for _, p := range probes {
			opts = append(opts, WithSoil(soilKey(p), p.Name, newSoil(NewFakeAnalog(p.WetRaw, p.DryRaw), p)))
		}
	case config.SensorTypeReal:
		var th *TemperatureHumiditySensor
		if cfg.DHT.Enabled {
			model, err := ParseDHTModel(cfg.DHT.Model)
			if err != nil {
				return nil, err
			}
			d, err := NewDHT(cfg.DHT.Pin, model)
			if err != nil {
				return nil, err
			}
			th = NewTemperatureHumiditySensor(d)
			opts = append(opts, WithTemperatureHumidity(cfg.DHT.Name, th))
		}
		if len(probes) > 0 {
			adc, err := NewADS1115(cfg)
			if err != nil {
				if th != nil {
					_ = th.Close()
				}
				return nil, err
			}
			opts = append(opts, WithCloser(adc))
			for _, p := range probes {
				opts = append(opts, WithSoil(soilKey(p), p.Name, newSoil(adc, p)))
			}
		}
	default:
		return nil, fmt.Errorf("unknown sensor type %q", cfg.SensorType)
	}

	st := NewStation(opts...)
	if err := st.Begin(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func newSoil(r AnalogReader, p config.SoilConfig) *SoilMoistureSensor {
	return NewSoilMoistureSensor(r, p.Channel, WithCalibration(p.DryRaw, p.WetRaw), WithClamp(p.Clamp))
}

func (s *Station) Begin() error {
	if s.th == nil {
		return nil
	}
	return s.th.Begin()
}

func (s *Station) thKey(kind string) string {
	if s.thName == "" {
		return kind
	}
	return s.thName + "_" + kind
}

func (s *Station) Entities() []Entity {
	var out []Entity
	if s.th != nil {
		out = append(out,
			Entity{Key: s.thKey(KindTemperature), Kind: KindTemperature, Name: s.thKey(KindTemperature)},
			Entity{Key: s.thKey(KindHumidity), Kind: KindHumidity, Name: s.thKey(KindHumidity)},
		)
	}
	for _, p := range s.soils {
		name := p.name
		if name == "" {
			name = p.key
		}
		out = append(out, Entity{Key: p.key, Kind: KindMoisture, Name: name})
	}
	return out
}

// Read samples every attached sensor. Failed sensors are left out of the
// result and reported in the joined error.
func (s *Station) Read() ([]Reading, error) {
	now := s.now()
	out := make([]Reading, 0, 2+len(s.soils))
	var errs []error

	if s.th != nil {
		if err := s.th.Read(); err != nil {
			s.log.Warn("temperature/humidity read failed", zap.Error(err))
			errs = append(errs, err)
		}
		if t := s.th.Temperature(); !math.IsNaN(t) {
			out = append(out, Reading{Key: s.thKey(KindTemperature), Kind: KindTemperature, Value: t, Timestamp: now})
		}
		if h := s.th.Humidity(); !math.IsNaN(h) {
			out = append(out, Reading{Key: s.thKey(KindHumidity), Kind: KindHumidity, Value: h, Timestamp: now})
		}
	}

	for _, p := range s.soils {
		raw, pct, err := p.sensor.Sample()
		if err != nil {
			s.log.Warn("soil moisture read failed", zap.String("sensor", p.key), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", p.key, err))
			continue
		}
		out = append(out, Reading{Key: p.key, Kind: KindMoisture, Raw: raw, Value: float64(pct), Timestamp: now})
	}
	return out, errors.Join(errs...)
}

func (s *Station) Close() error {
	var errs []error
	if s.th != nil {
		errs = append(errs, s.th.Close())
	}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
