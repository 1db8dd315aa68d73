// Package backend posts pot readings to the plant management API, which
// stores them as ambient conditions and answers with an irrigation hint.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ericogr/plantpot-to-mqtt/pkg/config"
	"github.com/ericogr/plantpot-to-mqtt/pkg/output"
	"github.com/ericogr/plantpot-to-mqtt/pkg/sensor"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	apiKeyHeader         = "X-IoT-API-Key"
	DefaultMinIntervalMs = 60000
	requestTimeout       = 10 * time.Second
)

type sensorData struct {
	PotLabel    string   `json:"pot_label"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Moisture    *float64 `json:"moisture"`
	Light       *float64 `json:"light"`
}

type irrigationResponse struct {
	Irrigation struct {
		NeedsWatering bool    `json:"needs_watering"`
		WaterAmountMl float64 `json:"water_amount_ml"`
	} `json:"irrigation"`
}

type BackendOutput struct {
	client   *http.Client
	url      string
	apiKey   string
	potLabel string
	limit    *rate.Limiter
	log      *zap.Logger
}

func NewBackend(cfg config.BackendConfig, potLabel string, logger *zap.Logger) (output.Output, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("backend: url is required")
	}
	if cfg.MinIntervalMs <= 0 {
		cfg.MinIntervalMs = DefaultMinIntervalMs
	}
	return &BackendOutput{
		client:   &http.Client{Timeout: requestTimeout},
		url:      cfg.URL,
		apiKey:   cfg.APIKey,
		potLabel: potLabel,
		limit:    rate.NewLimiter(rate.Every(time.Duration(cfg.MinIntervalMs)*time.Millisecond), 1),
		log:      logger,
	}, nil
}

// Publish sends one aggregated record. Calls arriving less than the
// configured minimum interval after the last successful post are dropped.
func (b *BackendOutput) Publish(readings []sensor.Reading) error {
	data, ok := aggregate(b.potLabel, readings)
	if !ok {
		return nil
	}
	// the token is only spent by a successful post, so failures retry on the next publish
	if b.limit.Tokens() < 1 {
		b.log.Debug("backend publish skipped by rate limit")
		return nil
	}
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set(apiKeyHeader, b.apiKey)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend post: unexpected status %s", resp.Status)
	}
	b.limit.Allow()

	var ir irrigationResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		b.log.Debug("backend response not decoded", zap.Error(err))
		return nil
	}
	if ir.Irrigation.NeedsWatering {
		b.log.Info("backend requests watering",
			zap.String("pot", b.potLabel),
			zap.Float64("amountMl", ir.Irrigation.WaterAmountMl),
		)
	}
	return nil
}

func (b *BackendOutput) Close() error { return nil }

// aggregate folds readings into one record; moisture is the mean of all
// soil probes. ok is false when there is nothing to send.
func aggregate(potLabel string, readings []sensor.Reading) (sensorData, bool) {
	d := sensorData{PotLabel: potLabel}
	var moistureSum float64
	var moistureN int
	for _, r := range readings {
		v := r.Value
		switch r.Kind {
		case sensor.KindTemperature:
			d.Temperature = &v
		case sensor.KindHumidity:
			d.Humidity = &v
		case sensor.KindMoisture:
			moistureSum += v
			moistureN++
		}
	}
	if moistureN > 0 {
		m := moistureSum / float64(moistureN)
		d.Moisture = &m
	}
	ok := d.Temperature != nil || d.Humidity != nil || d.Moisture != nil
	return d, ok
}
