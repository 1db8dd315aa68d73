package sensor

import (
	"errors"
	"time"
)

// Reading kinds.
const (
	KindTemperature = "temperature"
	KindHumidity    = "humidity"
	KindMoisture    = "moisture"
)

var (
	// ErrReadFailure marks a sample the hardware could not deliver (no
	// response, bad checksum, NaN sentinel from the driver, ADC error).
	ErrReadFailure = errors.New("sensor read failure")
	// ErrDivisionByZero is returned when a soil sensor's dry and wet
	// calibration values are equal.
	ErrDivisionByZero = errors.New("calibration range is empty")
)

type Reading struct {
	Key       string    `json:"key"`
	Kind      string    `json:"kind"`
	Raw       int       `json:"raw"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Entity describes one publishable value of a Sensor.
type Entity struct {
	Key  string
	Kind string
	Name string
}

type Sensor interface {
	Read() ([]Reading, error)
	Close() error
}

// DigitalDriver is the single-wire temperature/humidity driver capability.
type DigitalDriver interface {
	Begin() error
	ReadHumidity() (float64, error)
	ReadTemperature() (float64, error)
}

// AnalogReader returns one raw analog-to-digital conversion for a pin.
type AnalogReader interface {
	ReadRaw(pin int) (int, error)
}
