package sensor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

type DHTModel int

const (
	DHT11 DHTModel = iota
	DHT22
)

const (
	// DHTMinInterval is the sensor's minimum sampling period. Reads inside
	// the window reuse the previous frame.
	DHTMinInterval  = 2 * time.Second
	dhtPulseTimeout = time.Millisecond
	dhtFrameBits    = 40
)

var (
	ErrTimeout  = errors.New("dht: timeout waiting for sensor")
	ErrChecksum = errors.New("dht: checksum mismatch")
)

func ParseDHTModel(s string) (DHTModel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dht11":
		return DHT11, nil
	case "dht22", "am2302":
		return DHT22, nil
	}
	return 0, fmt.Errorf("unknown dht model %q", s)
}

func (m DHTModel) String() string {
	if m == DHT22 {
		return "dht22"
	}
	return "dht11"
}

// startSignal is how long the host holds the line low to wake the sensor.
func (m DHTModel) startSignal() time.Duration {
	if m == DHT22 {
		return 1100 * time.Microsecond
	}
	return 20 * time.Millisecond
}

// decode converts a checked frame to relative humidity (%) and temperature (°C).
func (m DHTModel) decode(f [5]byte) (humidity, temperature float64) {
	if m == DHT22 {
		humidity = float64(uint16(f[0])<<8|uint16(f[1])) / 10
		temperature = float64(uint16(f[2]&0x7f)<<8|uint16(f[3])) / 10
		if f[2]&0x80 != 0 {
			temperature = -temperature
		}
		return
	}
	humidity = float64(f[0]) + float64(f[1])/10
	temperature = float64(f[2]) + float64(f[3]&0x0f)/10
	if f[3]&0x80 != 0 {
		temperature = -temperature
	}
	return
}

// DHT drives a DHT11/DHT22 on one GPIO pin by timing the single-wire
// protocol from user space.
type DHT struct {
	pin   gpio.PinIO
	model DHTModel

	frame    [5]byte
	frameErr error
	lastRead time.Time
}

func NewDHT(pinName string, model DHTModel) (*DHT, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	p := gpioreg.ByName(pinName)
	if p == nil {
		return nil, fmt.Errorf("unknown gpio pin %q", pinName)
	}
	return newDHT(p, model), nil
}

func newDHT(pin gpio.PinIO, model DHTModel) *DHT {
	return &DHT{pin: pin, model: model}
}

func (d *DHT) Begin() error {
	d.lastRead = time.Time{}
	if err := d.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("dht %s: idle line: %w", d.pin.Name(), err)
	}
	return nil
}

func (d *DHT) ReadHumidity() (float64, error) {
	if err := d.sample(); err != nil {
		return 0, err
	}
	h, _ := d.model.decode(d.frame)
	return h, nil
}

func (d *DHT) ReadTemperature() (float64, error) {
	if err := d.sample(); err != nil {
		return 0, err
	}
	_, t := d.model.decode(d.frame)
	return t, nil
}

func (d *DHT) Close() error {
	return d.pin.Halt()
}

func (d *DHT) sample() error {
	if !d.lastRead.IsZero() && time.Since(d.lastRead) < DHTMinInterval {
		return d.frameErr
	}
	d.lastRead = time.Now()
	frame, err := d.transact()
	if err != nil {
		d.frameErr = fmt.Errorf("dht %s: %w", d.pin.Name(), err)
		return d.frameErr
	}
	d.frame, d.frameErr = frame, nil
	return nil
}

func (d *DHT) transact() ([5]byte, error) {
	var frame [5]byte
	if err := d.pin.Out(gpio.Low); err != nil {
		return frame, fmt.Errorf("start signal: %w", err)
	}
	time.Sleep(d.model.startSignal())
	if err := d.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return frame, fmt.Errorf("release line: %w", err)
	}

	// host release, sensor response low, sensor response high
	for _, l := range []gpio.Level{gpio.High, gpio.Low, gpio.High} {
		if _, err := d.levelDuration(l); err != nil {
			return frame, err
		}
	}

	lows := make([]time.Duration, dhtFrameBits)
	highs := make([]time.Duration, dhtFrameBits)
	for i := 0; i < dhtFrameBits; i++ {
		var err error
		if lows[i], err = d.levelDuration(gpio.Low); err != nil {
			return frame, fmt.Errorf("bit %d: %w", i, err)
		}
		if highs[i], err = d.levelDuration(gpio.High); err != nil {
			return frame, fmt.Errorf("bit %d: %w", i, err)
		}
	}
	return frameFromPulses(lows, highs)
}

// levelDuration returns how long the line stays at l.
func (d *DHT) levelDuration(l gpio.Level) (time.Duration, error) {
	start := time.Now()
	for d.pin.Read() == l {
		if time.Since(start) > dhtPulseTimeout {
			return 0, ErrTimeout
		}
	}
	return time.Since(start), nil
}

// frameFromPulses decodes 40 bits. A bit is 1 when its high pulse is longer
// than the low pulse preceding it (~70µs vs ~50µs), 0 otherwise (~26µs).
func frameFromPulses(lows, highs []time.Duration) ([5]byte, error) {
	var f [5]byte
	if len(lows) != dhtFrameBits || len(highs) != dhtFrameBits {
		return f, fmt.Errorf("dht: got %d/%d pulses, want %d", len(lows), len(highs), dhtFrameBits)
	}
	for i := 0; i < dhtFrameBits; i++ {
		f[i/8] <<= 1
		if highs[i] > lows[i] {
			f[i/8] |= 1
		}
	}
	if f[4] != f[0]+f[1]+f[2]+f[3] {
		return f, fmt.Errorf("%w: %#x %#x %#x %#x sum %#x", ErrChecksum, f[0], f[1], f[2], f[3], f[4])
	}
	return f, nil
}
