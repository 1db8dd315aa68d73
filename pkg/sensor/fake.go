package sensor

import (
	"math/rand"
	"sync"
)

// FakeDHT simulates a DHT driver with a bounded random walk.
type FakeDHT struct {
	mu          sync.Mutex
	temperature float64
	humidity    float64
}

func NewFakeDHT() *FakeDHT {
	return &FakeDHT{temperature: 21.0, humidity: 55.0}
}

func (f *FakeDHT) Begin() error { return nil }

func (f *FakeDHT) ReadHumidity() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.humidity = walk(f.humidity, 1.0, 20, 90)
	return f.humidity, nil
}

func (f *FakeDHT) ReadTemperature() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.temperature = walk(f.temperature, 0.2, 5, 40)
	return f.temperature, nil
}

// FakeAnalog returns uniformly random raw values in [lo, hi].
type FakeAnalog struct {
	mu     sync.Mutex
	lo, hi int
}

func NewFakeAnalog(lo, hi int) *FakeAnalog {
	if lo > hi {
		lo, hi = hi, lo
	}
	return &FakeAnalog{lo: lo, hi: hi}
}

func (f *FakeAnalog) ReadRaw(int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lo + rand.Intn(f.hi-f.lo+1), nil
}

func walk(v, step, lo, hi float64) float64 {
	v += (rand.Float64()*2 - 1) * step
	return min(max(v, lo), hi)
}
