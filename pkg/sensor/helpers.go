package sensor

import (
	"strconv"

	"github.com/ericogr/plantpot-to-mqtt/pkg/config"
)

// soilChannelSettings extracts the enabled soil probes and their per-channel
// sample rates from the config.
func soilChannelSettings(cfg config.Config) (probes []config.SoilConfig, channels []int, sampleRates map[int]int) {
	sampleRates = make(map[int]int)
	for _, c := range cfg.Soil {
		if c.SampleRate != 0 {
			sampleRates[c.Channel] = c.SampleRate
		}
		if c.Enabled {
			probes = append(probes, c)
			channels = append(channels, c.Channel)
		}
	}
	return
}

func soilKey(c config.SoilConfig) string {
	if c.Name != "" {
		return c.Name
	}
	return "soil" + strconv.Itoa(c.Channel)
}
