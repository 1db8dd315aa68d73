package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseKeyIntMap(t *testing.T) {
	tests := []struct {
		in   string
		want map[int]int
		ok   bool
	}{
		{"", map[int]int{}, true},
		{"0=2200,1=2150", map[int]int{0: 2200, 1: 2150}, true},
		{"0=8, 2=16", map[int]int{0: 8, 2: 16}, true},
		{"bad", nil, false},
		{"0=x", nil, false},
	}
	for _, tt := range tests {
		got, err := parseKeyIntMap(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("parseKeyIntMap(%q) ok=%v err=%v", tt.in, tt.ok, err)
		}
		if tt.ok && !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("parseKeyIntMap(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseKeyBoolMap(t *testing.T) {
	tests := []struct {
		in   string
		want map[int]bool
		ok   bool
	}{
		{"", map[int]bool{}, true},
		{"0=true,1=false", map[int]bool{0: true, 1: false}, true},
		{"0=true, 2=true", map[int]bool{0: true, 2: true}, true},
		{"bad", nil, false},
	}
	for _, tt := range tests {
		got, err := parseKeyBoolMap(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("parseKeyBoolMap(%q) ok=%v err=%v", tt.in, tt.ok, err)
		}
		if tt.ok && !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("parseKeyBoolMap(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("defaults changed by Load:\n got %+v\nwant %+v", cfg, DefaultConfig())
	}
	if cfg.Soil[0].DryRaw != 2200 || cfg.Soil[0].WetRaw != 0 {
		t.Fatalf("default calibration: %+v", cfg.Soil[0])
	}
}

func TestLoadSoilFlags(t *testing.T) {
	cfg, err := Load([]string{
		"--soil-channels", "0,2",
		"--soil-dry", "2=3000",
		"--soil-wet", "2=1000",
		"--soil-clamp", "0=true",
		"--soil-sample-rates", "2=250",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []SoilConfig{
		{Channel: 0, Enabled: true, DryRaw: 2200, WetRaw: 0, Clamp: true},
		{Channel: 2, Enabled: true, DryRaw: 3000, WetRaw: 1000, SampleRate: 250},
	}
	if !reflect.DeepEqual(cfg.Soil, want) {
		t.Fatalf("soil = %+v; want %+v", cfg.Soil, want)
	}
}

func TestLoadFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	js := `{
		"sensor_type": "simulation",
		"interval_ms": 2000,
		"soil": [{"channel": 1, "enabled": true}],
		"outputs": [{"type": "console"}, {"type": "mqtt", "mqtt": {"server": "tcp://broker:1883"}}]
	}`
	if err := os.WriteFile(path, []byte(js), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load([]string{"-c", path, "--mqtt-topic", "pots/%s", "--output-intervals", "console=500", "--no-dht"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SensorType != SensorTypeSimulation || cfg.DHT.Enabled {
		t.Fatalf("sensor settings: %+v", cfg)
	}
	if cfg.Soil[0].DryRaw != 2200 {
		t.Fatalf("missing calibration not defaulted: %+v", cfg.Soil[0])
	}
	if cfg.Outputs[0].IntervalMs != 500 || cfg.Outputs[1].IntervalMs != 2000 {
		t.Fatalf("intervals: %d %d", cfg.Outputs[0].IntervalMs, cfg.Outputs[1].IntervalMs)
	}
	m := cfg.Outputs[1].MQTT
	if m.Server != "tcp://broker:1883" || m.StateTopic != "pots/%s" {
		t.Fatalf("mqtt: %+v", m)
	}
}

func TestLoadCreatesMQTTOutput(t *testing.T) {
	cfg, err := Load([]string{"--mqtt-server", "tcp://h:1883"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Outputs) != 2 || cfg.Outputs[1].Type != "mqtt" || cfg.Outputs[1].MQTT.Server != "tcp://h:1883" {
		t.Fatalf("outputs: %+v", cfg.Outputs)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"sensor type", func(c *Config) { c.SensorType = "mock" }},
		{"dht model", func(c *Config) { c.DHT.Model = "dht33" }},
		{"dht pin", func(c *Config) { c.DHT.Pin = "" }},
		{"channel range", func(c *Config) { c.Soil = []SoilConfig{{Channel: 4}} }},
		{"duplicate channel", func(c *Config) { c.Soil = []SoilConfig{{Channel: 1}, {Channel: 1}} }},
		{"zero interval", func(c *Config) { c.IntervalMs = 0 }},
		{"negative output interval", func(c *Config) { c.Outputs = []OutputConfig{{Type: "console", IntervalMs: -5}} }},
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mod(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func TestLoadRejectsNonPositiveIntervals(t *testing.T) {
	for _, args := range [][]string{
		{"--interval-ms", "0", "--outputs", "console", "--sensor-type", "simulation"},
		{"--output-intervals", "console=-5"},
	} {
		if _, err := Load(args); err == nil {
			t.Fatalf("Load(%v): expected error", args)
		}
	}
}

func TestLoadFileSoilReplacesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	js := `{"soil": [{"channel": 1, "dry_raw": 2000}, {"channel": 2, "enabled": true}]}`
	if err := os.WriteFile(path, []byte(js), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []SoilConfig{
		{Channel: 1, DryRaw: 2000},
		{Channel: 2, Enabled: true, DryRaw: 2200},
	}
	if !reflect.DeepEqual(cfg.Soil, want) {
		t.Fatalf("soil = %+v; want %+v", cfg.Soil, want)
	}
	if !reflect.DeepEqual(cfg.Outputs, DefaultConfig().Outputs) {
		t.Fatalf("outputs not kept from defaults: %+v", cfg.Outputs)
	}
}
