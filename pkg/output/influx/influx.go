package influx

import (
	"context"
	"fmt"
	"time"

	"github.com/ericogr/plantpot-to-mqtt/pkg/config"
	"github.com/ericogr/plantpot-to-mqtt/pkg/output"
	"github.com/ericogr/plantpot-to-mqtt/pkg/sensor"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	DefaultMeasurement = "plantpot"
	writeTimeout       = 10 * time.Second
)

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type InfluxOutput struct {
	client      influxdb2.Client
	writer      pointWriter
	measurement string
	pot         string
}

func NewInflux(cfg config.InfluxConfig, potLabel string) (output.Output, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx: url and bucket are required")
	}
	if cfg.Measurement == "" {
		cfg.Measurement = DefaultMeasurement
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxOutput{
		client:      client,
		writer:      client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: cfg.Measurement,
		pot:         potLabel,
	}, nil
}

func (o *InfluxOutput) Publish(readings []sensor.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := o.writer.WritePoint(ctx, o.points(readings)...); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

func (o *InfluxOutput) points(readings []sensor.Reading) []*write.Point {
	out := make([]*write.Point, 0, len(readings))
	for _, r := range readings {
		fields := map[string]interface{}{"value": r.Value}
		if r.Kind == sensor.KindMoisture {
			fields["raw"] = r.Raw
		}
		tags := map[string]string{"pot": o.pot, "kind": r.Kind, "sensor": r.Key}
		out = append(out, influxdb2.NewPoint(o.measurement, tags, fields, r.Timestamp))
	}
	return out
}

func (o *InfluxOutput) Close() error {
	if o.client != nil {
		o.client.Close()
	}
	return nil
}
