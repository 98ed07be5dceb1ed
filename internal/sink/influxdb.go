package sink

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/InfluxCommunity/influxdb3-go/v2/influxdb3"
)

// InfluxConfig holds InfluxDB 3 connection settings.
type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Database    string `yaml:"database"`
	Measurement string `yaml:"measurement"`
}

// InfluxWriter writes one point per row.
type InfluxWriter struct {
	client      *influxdb3.Client
	measurement string
}

func NewInflux(cfg InfluxConfig) (*InfluxWriter, error) {
	client, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     cfg.URL,
		Token:    cfg.Token,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create InfluxDB client: %w", err)
	}
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = "bus_frames"
	}
	return &InfluxWriter{client: client, measurement: measurement}, nil
}

func pointTags(r Row) map[string]string {
	return map[string]string{
		"run_id":  r.RunID.String(),
		"source":  r.Source,
		"kind":    string(r.Kind),
		"channel": strconv.Itoa(int(r.Channel)),
		"id":      fmt.Sprintf("0x%X", r.ID),
	}
}

func pointFields(r Row) map[string]any {
	return map[string]any{
		"id_decimal": int64(r.ID),
		"dlc":        int64(r.DLC),
		"length":     int64(len(r.Data)),
		"data_hex":   hex.EncodeToString(r.Data),
		"flags":      int64(r.Flags),
	}
}

func (w *InfluxWriter) Write(ctx context.Context, rows []Row) error {
	points := make([]*influxdb3.Point, 0, len(rows))
	for _, r := range rows {
		points = append(points, influxdb3.NewPoint(w.measurement, pointTags(r), pointFields(r), r.Time))
	}
	if err := w.client.WritePoints(ctx, points); err != nil {
		return fmt.Errorf("failed to write points: %w", err)
	}
	return nil
}

func (w *InfluxWriter) Close() error {
	if w.client == nil {
		return nil
	}
	err := w.client.Close()
	w.client = nil
	return err
}
