package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/plantpot-to-mqtt/pkg/config"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01
)

// ADS1115 is an AnalogReader backed by a single-ended ADS1115 conversion.
// The pin passed to ReadRaw is the ADC input channel (0-3).
type ADS1115 struct {
	dev         *i2c.Dev
	bus         i2c.BusCloser
	sampleRate  int
	sampleRates map[int]int
}

func NewADS1115(cfg config.Config) (*ADS1115, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2C.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	_, _, rates := soilChannelSettings(cfg)
	dev := &i2c.Dev{Addr: uint16(cfg.I2C.Address), Bus: bus}
	return &ADS1115{dev: dev, bus: bus, sampleRate: cfg.SampleRate, sampleRates: rates}, nil
}

func (s *ADS1115) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

func (s *ADS1115) ReadRaw(channel int) (int, error) {
	sr := s.sampleRate
	if v, ok := s.sampleRates[channel]; ok {
		sr = v
	}
	msb, lsb, err := s.configForChannel(channel, sr)
	if err != nil {
		return 0, err
	}
	if err := s.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	time.Sleep(time.Duration(ConversionDelayMs(sr)) * time.Millisecond)
	readBuf := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	return int(int16(readBuf[0])<<8 | int16(readBuf[1])), nil
}

// ConversionDelayMs is the wait after starting a single-shot conversion at
// the given rate: one sample period rounded up, plus 2ms margin.
func ConversionDelayMs(sampleRate int) int {
	if sampleRate <= 0 {
		sampleRate = 128
	}
	return (1000+sampleRate-1)/sampleRate + 2
}

func (s *ADS1115) configForChannel(channel, sampleRate int) (byte, byte, error) {
	var mux byte
	switch channel {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, 0, fmt.Errorf("invalid channel %d", channel)
	}
	// PGA: use ±4.096V -> bits 001
	pga := byte(0x1)
	var dr byte
	switch sampleRate {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 128:
		dr = 0x4
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		dr = 0x4
	}
	var cfg uint16 = 0x8000 // OS = 1 (start single conversion)
	cfg |= uint16(mux) << 12
	cfg |= uint16(pga) << 9
	cfg |= 1 << 8 // single-shot mode
	cfg |= uint16(dr) << 5
	// comparator disabled (bits 1:0 = 11)
	cfg |= 0x3
	return byte(cfg >> 8), byte(cfg & 0xFF), nil
}
