// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the Frigate MAC Merger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MergeRunsTotal tracks the total number of merge pipeline runs
	MergeRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frigate_merger_runs_total",
		Help: "Total number of merge pipeline runs",
	})

	// MergeRunErrors tracks the number of merge runs that failed outright
	MergeRunErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frigate_merger_run_errors_total",
		Help: "Total number of merge pipeline runs that failed before completing",
	})

	// DevicesScanned tracks the number of registry devices seen in the last run
	DevicesScanned = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frigate_merger_devices_scanned",
		Help: "Number of device registry entries scanned in the last run",
	})

	// CamerasFound tracks the number of Frigate camera devices in the last run
	CamerasFound = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frigate_merger_cameras_found",
		Help: "Number of Frigate camera devices found in the last run",
	})

	// MappingsBuilt tracks the number of IP-to-MAC mappings in the last run
	MappingsBuilt = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frigate_merger_ip_mac_mappings",
		Help: "Number of IP-to-MAC mappings built from other integrations in the last run",
	})

	// DevicesUpdated tracks the total number of registry updates applied
	DevicesUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frigate_merger_devices_updated_total",
		Help: "Total number of Frigate devices updated with a MAC address",
	})

	// UnmatchedCameras tracks cameras left without a MAC in the last run
	UnmatchedCameras = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frigate_merger_unmatched_cameras",
		Help: "Number of Frigate cameras with no matching MAC source in the last run",
	})

	// RegistryWriteErrors tracks rejected device registry updates
	RegistryWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frigate_merger_registry_write_errors_total",
		Help: "Total number of device registry updates rejected by the host",
	})

	// RunDuration tracks how long a full scan-and-merge run takes
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "frigate_merger_run_duration_seconds",
		Help:    "Duration of a full scan-and-merge run in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// HostReconnects tracks reconnections to the host WebSocket API
	HostReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frigate_merger_host_reconnects_total",
		Help: "Total number of reconnections to the host WebSocket API",
	})

	// HostCommandErrors tracks failed host API commands
	HostCommandErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frigate_merger_host_command_errors_total",
		Help: "Total number of failed host API commands",
	})

	// RunHistoryWritesTotal tracks run summaries written to InfluxDB
	RunHistoryWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frigate_merger_influxdb_writes_total",
		Help: "Total number of run history writes to InfluxDB",
	})

	// RunHistoryWriteErrors tracks failed run summary writes to InfluxDB
	RunHistoryWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frigate_merger_influxdb_write_errors_total",
		Help: "Total number of failed run history writes to InfluxDB",
	})
)
