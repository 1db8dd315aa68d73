package sensor

import "fmt"

// Default calibration: raw reading at 0% and 100% of the output range.
const (
	DefaultWetRaw = 0
	DefaultDryRaw = 2200
)

type SoilMoistureSensor struct {
	reader AnalogReader
	pin    int
	dryRaw int
	wetRaw int
	clamp  bool
}

type SoilOption func(*SoilMoistureSensor)

func WithCalibration(dryRaw, wetRaw int) SoilOption {
	return func(s *SoilMoistureSensor) {
		s.dryRaw = dryRaw
		s.wetRaw = wetRaw
	}
}

// WithClamp limits remapped values to [0, 100].
func WithClamp(clamp bool) SoilOption {
	return func(s *SoilMoistureSensor) { s.clamp = clamp }
}

func NewSoilMoistureSensor(reader AnalogReader, pin int, opts ...SoilOption) *SoilMoistureSensor {
	s := &SoilMoistureSensor{reader: reader, pin: pin, dryRaw: DefaultDryRaw, wetRaw: DefaultWetRaw}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *SoilMoistureSensor) Pin() int { return s.pin }

// Humidity reads one analog sample and remaps it from [wet, dry] to [0, 100].
func (s *SoilMoistureSensor) Humidity() (int, error) {
	_, pct, err := s.Sample()
	return pct, err
}

// Sample is Humidity that also returns the raw conversion.
func (s *SoilMoistureSensor) Sample() (raw, percent int, err error) {
	raw, err = s.reader.ReadRaw(s.pin)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: pin %d: %w", ErrReadFailure, s.pin, err)
	}
	percent, err = s.Remap(raw)
	return raw, percent, err
}

func (s *SoilMoistureSensor) Remap(raw int) (int, error) {
	if s.dryRaw == s.wetRaw {
		return 0, fmt.Errorf("pin %d: dry=%d wet=%d: %w", s.pin, s.dryRaw, s.wetRaw, ErrDivisionByZero)
	}
	v := Remap(raw, s.wetRaw, s.dryRaw, 0, 100)
	if s.clamp {
		v = min(max(v, 0), 100)
	}
	return v, nil
}

// Remap linearly maps x from [inMin, inMax] to [outMin, outMax] in integer
// arithmetic. It does not clamp and panics if inMin == inMax.
func Remap(x, inMin, inMax, outMin, outMax int) int {
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}
