package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// defaultDryRaw is the raw reading of a dry probe on the reference board.
const defaultDryRaw = 2200

const (
	SensorTypeReal       = "real"
	SensorTypeSimulation = "simulation"
)

type I2CConfig struct {
	Bus     string `json:"bus"`
	Address int    `json:"address"`
}

type DHTConfig struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name,omitempty"`
	Pin     string `json:"pin"`
	Model   string `json:"model"`
}

type SoilConfig struct {
	Channel    int    `json:"channel"`
	Enabled    bool   `json:"enabled"`
	Name       string `json:"name,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	DryRaw     int    `json:"dry_raw"`
	WetRaw     int    `json:"wet_raw"`
	Clamp      bool   `json:"clamp,omitempty"`
}

type MQTTConfig struct {
	Server            string `json:"server"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	ClientID          string `json:"client_id"`
	StateTopic        string `json:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty"`
	DiscoveryName     string `json:"discovery_name,omitempty"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty"`
}

type PrometheusConfig struct {
	Listen string `json:"listen"`
	Path   string `json:"path"`
}

type InfluxConfig struct {
	URL         string `json:"url"`
	Token       string `json:"token"`
	Org         string `json:"org"`
	Bucket      string `json:"bucket"`
	Measurement string `json:"measurement"`
}

type BackendConfig struct {
	URL           string `json:"url"`
	APIKey        string `json:"api_key"`
	MinIntervalMs int    `json:"min_interval_ms,omitempty"` // minimum spacing between two posts
}

type OutputConfig struct {
	Type       string            `json:"type"`
	IntervalMs int               `json:"interval_ms,omitempty"`
	MQTT       *MQTTConfig       `json:"mqtt,omitempty"`
	Prometheus *PrometheusConfig `json:"prometheus,omitempty"`
	Influx     *InfluxConfig     `json:"influx,omitempty"`
	Backend    *BackendConfig    `json:"backend,omitempty"`
}

type Config struct {
	I2C        I2CConfig      `json:"i2c"`
	SampleRate int            `json:"sample_rate"`
	DHT        DHTConfig      `json:"dht"`
	Soil       []SoilConfig   `json:"soil"`
	Outputs    []OutputConfig `json:"outputs"`
	SensorType string         `json:"sensor_type"`
	IntervalMs int            `json:"interval_ms"`
	PotLabel   string         `json:"pot_label"`
	LogLevel   string         `json:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		I2C:        I2CConfig{Bus: "1", Address: 0x48},
		SampleRate: 128,
		DHT:        DHTConfig{Enabled: true, Pin: "GPIO4", Model: "dht11"},
		Soil:       []SoilConfig{{Channel: 0, Enabled: true, DryRaw: defaultDryRaw, WetRaw: 0}},
		Outputs:    []OutputConfig{{Type: "console", IntervalMs: 5000}},
		SensorType: SensorTypeReal,
		IntervalMs: 5000,
		PotLabel:   "pot-1",
		LogLevel:   "info",
	}
}

// Load reads configuration from a JSON file (optional) and flags in args.
// Flags override values present in the JSON file.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("plantpot", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", "", "Path to JSON config file")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus (e.g., '1' -> /dev/i2c-1)")
	flagI2CAddStr := fs.String("i2c-address", "", "ADS1115 I2C address (decimal or 0x hex)")
	flagSampleRate := fs.Int("sample-rate", -1, "ADS1115 sample rate (SPS)")
	flagDHTPin := fs.String("dht-pin", "", "DHT data pin (e.g., GPIO4)")
	flagDHTModel := fs.String("dht-model", "", "DHT model: dht11|dht22")
	flagNoDHT := fs.Bool("no-dht", false, "Disable the temperature/humidity sensor")
	flagSoilChannels := fs.String("soil-channels", "", "Comma-separated ADS1115 channels with soil probes e.g. 0,1")
	flagSoilDry := fs.String("soil-dry", "", "Per-channel dry calibration e.g. 0=2200,1=2150")
	flagSoilWet := fs.String("soil-wet", "", "Per-channel wet calibration e.g. 0=0,1=900")
	flagSoilClamp := fs.String("soil-clamp", "", "Per-channel clamping to 0..100 e.g. 0=true")
	flagSoilRates := fs.String("soil-sample-rates", "", "Per-channel sample rates e.g. 0=128,1=250")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt,prometheus,influx,backend)")
	flagOutputIntervals := fs.String("output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=5000")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic, %s is replaced by the reading key")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagInterval := fs.Int("interval-ms", -1, "Default publish interval in ms")
	flagPotLabel := fs.String("pot-label", "", "Label of the pot this node is attached to")
	flagLogLevel := fs.String("log-level", "", "Log level (debug,info,warn,error)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		// slices from the file replace the defaults instead of merging into them
		defSoil, defOutputs := cfg.Soil, cfg.Outputs
		cfg.Soil, cfg.Outputs = nil, nil
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
		if cfg.Soil == nil {
			cfg.Soil = defSoil
		}
		if cfg.Outputs == nil {
			cfg.Outputs = defOutputs
		}
		for i := range cfg.Soil {
			if cfg.Soil[i].DryRaw == 0 && cfg.Soil[i].WetRaw == 0 {
				cfg.Soil[i].DryRaw = defaultDryRaw
			}
		}
	}

	if *flagI2CBus != "" {
		cfg.I2C.Bus = *flagI2CBus
	}
	if *flagI2CAddStr != "" {
		v, err := parseIntOrHex(*flagI2CAddStr)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.I2C.Address = v
	}
	if *flagSampleRate != -1 {
		cfg.SampleRate = *flagSampleRate
	}
	if *flagDHTPin != "" {
		cfg.DHT.Pin = *flagDHTPin
	}
	if *flagDHTModel != "" {
		cfg.DHT.Model = *flagDHTModel
	}
	if *flagNoDHT {
		cfg.DHT.Enabled = false
	}
	if *flagSoilChannels != "" {
		chs, err := parseChannels(*flagSoilChannels)
		if err != nil {
			return cfg, err
		}
		cfg.Soil = mergeSoilChannels(cfg.Soil, chs)
	}
	if err := applySoilFlags(&cfg, *flagSoilDry, *flagSoilWet, *flagSoilClamp, *flagSoilRates); err != nil {
		return cfg, err
	}
	if *flagInterval != -1 {
		cfg.IntervalMs = *flagInterval
	}
	if *flagOutputs != "" {
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p, IntervalMs: cfg.IntervalMs})
		}
		cfg.Outputs = outs
	}
	if *flagOutputIntervals != "" {
		for _, p := range parseCSV(*flagOutputIntervals) {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
			if err != nil {
				continue
			}
			for i := range cfg.Outputs {
				if cfg.Outputs[i].Type == strings.TrimSpace(kv[0]) {
					cfg.Outputs[i].IntervalMs = v
				}
			}
		}
	}
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" {
		// apply to every mqtt output; create one if none exists
		idx := make([]int, 0)
		for i := range cfg.Outputs {
			if strings.EqualFold(cfg.Outputs[i].Type, "mqtt") {
				idx = append(idx, i)
			}
		}
		if len(idx) == 0 {
			cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: "mqtt", IntervalMs: cfg.IntervalMs})
			idx = append(idx, len(cfg.Outputs)-1)
		}
		for _, i := range idx {
			m := cfg.Outputs[i].MQTT
			if m == nil {
				m = &MQTTConfig{}
				cfg.Outputs[i].MQTT = m
			}
			setIfNotEmpty(&m.Server, *flagMQTTServer)
			setIfNotEmpty(&m.Username, *flagMQTTUser)
			setIfNotEmpty(&m.Password, *flagMQTTPass)
			setIfNotEmpty(&m.ClientID, *flagClientID)
			setIfNotEmpty(&m.StateTopic, *flagTopic)
		}
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagPotLabel != "" {
		cfg.PotLabel = *flagPotLabel
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}

	for i := range cfg.Outputs {
		if cfg.Outputs[i].IntervalMs == 0 {
			cfg.Outputs[i].IntervalMs = cfg.IntervalMs
		}
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return errors.New("sample-rate must be > 0")
	}
	if c.IntervalMs <= 0 {
		return errors.New("interval-ms must be > 0")
	}
	for _, o := range c.Outputs {
		if o.IntervalMs <= 0 {
			return fmt.Errorf("output %s: interval must be > 0, got %d", o.Type, o.IntervalMs)
		}
	}
	if c.SensorType != SensorTypeReal && c.SensorType != SensorTypeSimulation {
		return fmt.Errorf("sensor-type must be %s or %s, got %q", SensorTypeReal, SensorTypeSimulation, c.SensorType)
	}
	switch strings.ToLower(c.DHT.Model) {
	case "", "dht11", "dht22", "am2302":
	default:
		return fmt.Errorf("unknown dht model %q", c.DHT.Model)
	}
	if c.DHT.Enabled && c.DHT.Pin == "" && c.SensorType == SensorTypeReal {
		return errors.New("dht pin is required")
	}
	seen := map[int]bool{}
	for _, s := range c.Soil {
		if s.Channel < 0 || s.Channel > 3 {
			return fmt.Errorf("invalid soil channel %d", s.Channel)
		}
		if seen[s.Channel] {
			return fmt.Errorf("duplicate soil channel %d", s.Channel)
		}
		seen[s.Channel] = true
	}
	return nil
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// mergeSoilChannels enables exactly the given channels, keeping existing
// calibration for channels already configured.
func mergeSoilChannels(existing []SoilConfig, channels []int) []SoilConfig {
	byCh := make(map[int]SoilConfig, len(existing))
	for _, s := range existing {
		byCh[s.Channel] = s
	}
	out := make([]SoilConfig, 0, len(channels))
	for _, ch := range channels {
		s, ok := byCh[ch]
		if !ok {
			s = SoilConfig{Channel: ch, DryRaw: defaultDryRaw, WetRaw: 0}
		}
		s.Enabled = true
		out = append(out, s)
	}
	return out
}

func applySoilFlags(cfg *Config, dry, wet, clamp, rates string) error {
	dryMap, err := parseKeyIntMap(dry)
	if err != nil {
		return fmt.Errorf("soil-dry: %w", err)
	}
	wetMap, err := parseKeyIntMap(wet)
	if err != nil {
		return fmt.Errorf("soil-wet: %w", err)
	}
	clampMap, err := parseKeyBoolMap(clamp)
	if err != nil {
		return fmt.Errorf("soil-clamp: %w", err)
	}
	rateMap, err := parseKeyIntMap(rates)
	if err != nil {
		return fmt.Errorf("soil-sample-rates: %w", err)
	}
	for i := range cfg.Soil {
		ch := cfg.Soil[i].Channel
		if v, ok := dryMap[ch]; ok {
			cfg.Soil[i].DryRaw = v
		}
		if v, ok := wetMap[ch]; ok {
			cfg.Soil[i].WetRaw = v
		}
		if v, ok := clampMap[ch]; ok {
			cfg.Soil[i].Clamp = v
		}
		if v, ok := rateMap[ch]; ok {
			cfg.Soil[i].SampleRate = v
		}
	}
	return nil
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	return strconv.Atoi(s)
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseChannels(s string) ([]int, error) {
	parts := parseCSV(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid channel '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseKeyMap splits "k=v,k=v" into channel keys and raw values.
func parseKeyMap(s string, conv func(string) error) (map[int]string, error) {
	out := map[int]string{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid entry '%s', want channel=value", p)
		}
		k, err := strconv.Atoi(strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid channel '%s': %w", kv[0], err)
		}
		v := strings.TrimSpace(kv[1])
		if err := conv(v); err != nil {
			return nil, fmt.Errorf("invalid value for channel %d: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func parseKeyIntMap(s string) (map[int]int, error) {
	raw, err := parseKeyMap(s, func(v string) error { _, err := strconv.Atoi(v); return err })
	if err != nil {
		return nil, err
	}
	out := make(map[int]int, len(raw))
	for k, v := range raw {
		out[k], _ = strconv.Atoi(v)
	}
	return out, nil
}

func parseKeyBoolMap(s string) (map[int]bool, error) {
	raw, err := parseKeyMap(s, func(v string) error { _, err := strconv.ParseBool(v); return err })
	if err != nil {
		return nil, err
	}
	out := make(map[int]bool, len(raw))
	for k, v := range raw {
		out[k], _ = strconv.ParseBool(v)
	}
	return out, nil
}
