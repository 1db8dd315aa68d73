package sensor

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// TemperatureHumiditySensor caches the last humidity and temperature
// returned by its driver. It owns the driver and releases it on Close.
type TemperatureHumiditySensor struct {
	driver      DigitalDriver
	temperature float64
	humidity    float64
}

func NewTemperatureHumiditySensor(driver DigitalDriver) *TemperatureHumiditySensor {
	return &TemperatureHumiditySensor{driver: driver, temperature: math.NaN(), humidity: math.NaN()}
}

// Begin must be called once before the first Read.
func (s *TemperatureHumiditySensor) Begin() error {
	if err := s.driver.Begin(); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	return nil
}

// Read samples humidity then temperature. Both cached values are replaced
// with what the driver returned even when the read fails.
func (s *TemperatureHumiditySensor) Read() error {
	h, herr := s.driver.ReadHumidity()
	if herr != nil {
		h = math.NaN()
	}
	t, terr := s.driver.ReadTemperature()
	if terr != nil {
		t = math.NaN()
	}
	s.humidity = h
	s.temperature = t

	if err := errors.Join(herr, terr); err != nil {
		return fmt.Errorf("%w: %w", ErrReadFailure, err)
	}
	if math.IsNaN(h) || math.IsNaN(t) {
		return fmt.Errorf("%w: driver returned NaN", ErrReadFailure)
	}
	return nil
}

func (s *TemperatureHumiditySensor) Temperature() float64 { return s.temperature }

func (s *TemperatureHumiditySensor) Humidity() float64 { return s.humidity }

func (s *TemperatureHumiditySensor) Close() error {
	if c, ok := s.driver.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
