// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces

import (
	"context"
	"time"
)

// RunRecord summarizes one completed merge run.
// This is redeclared here to avoid circular dependencies.
type RunRecord struct {
	Timestamp time.Time
	Trigger   string // "startup", "manual", or "rescan"
	Scanned   int    // Device registry entries examined
	Cameras   int    // Frigate camera devices found
	Mappings  int    // IP-to-MAC mappings built
	Updated   int    // Devices that received a MAC connection
	Skipped   int    // Cameras that already carried the matched MAC
	Unmatched int    // Cameras with no matching MAC source
	Duration  time.Duration
}

// MergeEvent records one device registry update applied during a run.
// This is redeclared here to avoid circular dependencies.
type MergeEvent struct {
	Timestamp time.Time
	DeviceID  string
	Device    string
	IP        string
	MAC       string
}

// RunStorage defines the interface for persisting merge run history.
// Implementations should tolerate the backend being temporarily down;
// run history is an audit trail, never required for correctness.
type RunStorage interface {
	// WriteRun writes a run summary to storage
	WriteRun(run *RunRecord) error

	// WriteEvent writes a per-device merge event to storage
	WriteEvent(event *MergeEvent) error

	// Flush ensures all pending writes are completed
	Flush()

	// Close gracefully shuts down the storage connection
	Close()

	// Health checks if the storage backend is healthy
	Health(ctx context.Context) error
}
