// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package storage provides InfluxDB persistence for merge run history.
package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/soothill/frigate-mac-merger/pkg/interfaces"
	"github.com/soothill/frigate-mac-merger/pkg/logger"
	"github.com/soothill/frigate-mac-merger/pkg/metrics"
)

// InfluxDBStorage persists merge run summaries and per-device merge
// events to InfluxDB.
type InfluxDBStorage struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string
	org      string
}

// NewInfluxDBStorage creates a new InfluxDB storage client
func NewInfluxDBStorage(url, token, org, bucket string) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(url, token)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	if health.Status != "pass" {
		client.Close()
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", message)
	}

	logger.Info().Str("url", url).Str("status", string(health.Status)).Msg("Connected to InfluxDB")

	writeAPI := client.WriteAPI(org, bucket)

	// Handle async write errors
	go func() {
		for err := range writeAPI.Errors() {
			metrics.RunHistoryWriteErrors.Inc()
			logger.Error().Err(err).Msg("InfluxDB write error")
		}
	}()

	return &InfluxDBStorage{
		client:   client,
		writeAPI: writeAPI,
		bucket:   bucket,
		org:      org,
	}, nil
}

// WriteRun writes a merge run summary to InfluxDB
func (s *InfluxDBStorage) WriteRun(run *interfaces.RunRecord) error {
	// Validate input
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if run.Trigger == "" {
		return fmt.Errorf("trigger cannot be empty")
	}
	if run.Timestamp.IsZero() {
		return fmt.Errorf("timestamp cannot be zero")
	}

	p := influxdb2.NewPoint(
		"merge_run",
		map[string]string{
			"trigger": run.Trigger,
		},
		map[string]interface{}{
			"scanned":     run.Scanned,
			"cameras":     run.Cameras,
			"mappings":    run.Mappings,
			"updated":     run.Updated,
			"skipped":     run.Skipped,
			"unmatched":   run.Unmatched,
			"duration_ms": run.Duration.Milliseconds(),
		},
		run.Timestamp,
	)

	s.writeAPI.WritePoint(p)
	metrics.RunHistoryWritesTotal.Inc()
	return nil
}

// WriteEvent writes a per-device merge event to InfluxDB
func (s *InfluxDBStorage) WriteEvent(event *interfaces.MergeEvent) error {
	// Validate input
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.DeviceID == "" {
		return fmt.Errorf("device ID cannot be empty")
	}
	if event.Timestamp.IsZero() {
		return fmt.Errorf("timestamp cannot be zero")
	}

	p := influxdb2.NewPoint(
		"merge_event",
		map[string]string{
			"device_id": event.DeviceID,
		},
		map[string]interface{}{
			"device": event.Device,
			"ip":     event.IP,
			"mac":    event.MAC,
		},
		event.Timestamp,
	)

	s.writeAPI.WritePoint(p)
	metrics.RunHistoryWritesTotal.Inc()
	return nil
}

// Flush forces all pending writes to complete
func (s *InfluxDBStorage) Flush() {
	s.writeAPI.Flush()
}

// Close closes the InfluxDB client and flushes pending writes
func (s *InfluxDBStorage) Close() {
	logger.Info().Msg("Closing InfluxDB connection")
	s.writeAPI.Flush()
	s.client.Close()
}

// Health checks that the InfluxDB backend is reachable
func (s *InfluxDBStorage) Health(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("InfluxDB health check failed: %w", err)
	}
	if health.Status != "pass" {
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return fmt.Errorf("InfluxDB unhealthy: %s", message)
	}
	return nil
}

// QueryLastRun retrieves the most recent merge run summary
func (s *InfluxDBStorage) QueryLastRun(ctx context.Context) (*interfaces.RunRecord, error) {
	queryAPI := s.client.QueryAPI(s.org)

	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "merge_run")
			|> last()
	`, s.bucket)

	result, err := queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() {
		_ = result.Close()
	}()

	run := &interfaces.RunRecord{}

	for result.Next() {
		record := result.Record()

		if trigger, ok := record.ValueByKey("trigger").(string); ok {
			run.Trigger = trigger
		}

		run.Timestamp = record.Time()

		val, ok := record.Value().(int64)
		if !ok {
			continue
		}

		switch record.Field() {
		case "scanned":
			run.Scanned = int(val)
		case "cameras":
			run.Cameras = int(val)
		case "mappings":
			run.Mappings = int(val)
		case "updated":
			run.Updated = int(val)
		case "skipped":
			run.Skipped = int(val)
		case "unmatched":
			run.Unmatched = int(val)
		case "duration_ms":
			run.Duration = time.Duration(val) * time.Millisecond
		}
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("query parsing failed: %w", result.Err())
	}

	return run, nil
}
