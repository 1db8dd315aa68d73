package prometheus

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ericogr/plantpot-to-mqtt/pkg/config"
	"github.com/ericogr/plantpot-to-mqtt/pkg/output"
	"github.com/ericogr/plantpot-to-mqtt/pkg/sensor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	DefaultListen = ":9110"
	DefaultPath   = "/metrics"
)

// PrometheusOutput exposes the latest readings as gauges over HTTP.
type PrometheusOutput struct {
	registry *prometheus.Registry
	value    *prometheus.GaugeVec
	raw      *prometheus.GaugeVec
	updated  *prometheus.GaugeVec
	srv      *http.Server
	log      *zap.Logger
}

func NewPrometheus(cfg config.PrometheusConfig, potLabel string, logger *zap.Logger) (output.Output, error) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	p := newPrometheusOutput(potLabel, logger)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, p.Handler())
	p.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := p.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("prometheus server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving prometheus metrics", zap.String("listen", ln.Addr().String()), zap.String("path", cfg.Path))
	return p, nil
}

func newPrometheusOutput(potLabel string, logger *zap.Logger) *PrometheusOutput {
	constLabels := prometheus.Labels{"pot": potLabel}
	p := &PrometheusOutput{
		registry: prometheus.NewRegistry(),
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "plantpot_sensor_value",
			Help:        "Last sensor value (°C for temperature, % for humidity and soil moisture).",
			ConstLabels: constLabels,
		}, []string{"kind", "sensor"}),
		raw: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "plantpot_sensor_raw",
			Help:        "Last raw analog conversion of soil moisture probes.",
			ConstLabels: constLabels,
		}, []string{"sensor"}),
		updated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "plantpot_sensor_last_reading_timestamp_seconds",
			Help:        "Unix time of the last reading per sensor.",
			ConstLabels: constLabels,
		}, []string{"sensor"}),
		log: logger,
	}
	p.registry.MustRegister(p.value, p.raw, p.updated)
	return p
}

func (p *PrometheusOutput) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusOutput) Publish(readings []sensor.Reading) error {
	for _, r := range readings {
		p.value.WithLabelValues(r.Kind, r.Key).Set(r.Value)
		if r.Kind == sensor.KindMoisture {
			p.raw.WithLabelValues(r.Key).Set(float64(r.Raw))
		}
		p.updated.WithLabelValues(r.Key).Set(float64(r.Timestamp.Unix()))
	}
	return nil
}

func (p *PrometheusOutput) Close() error {
	if p.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.srv.Shutdown(ctx)
}
