// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package interfaces defines abstract interfaces for core system components.
// This package promotes loose coupling and testability by allowing
// dependency injection and easy mocking in tests.
package interfaces

import (
	"context"

	"github.com/soothill/frigate-mac-merger/registry"
)

// RegistryClient defines the interface for reading and updating the host
// platform's registries. The production implementation speaks the host's
// WebSocket API; tests substitute an in-memory fake.
type RegistryClient interface {
	// ListDevices returns every device registry entry
	ListDevices(ctx context.Context) ([]registry.DeviceRecord, error)

	// ListEntities returns every entity registry entry
	ListEntities(ctx context.Context) ([]registry.EntityRecord, error)

	// ListConfigEntries returns every config entry
	ListConfigEntries(ctx context.Context) ([]registry.ConfigEntryRecord, error)

	// ListStates returns the current state of every entity
	ListStates(ctx context.Context) ([]registry.StateRecord, error)

	// Snapshot fetches all four registries in one pass
	Snapshot(ctx context.Context) (*registry.Snapshot, error)

	// UpdateDevice applies an additive update to a device registry entry
	UpdateDevice(ctx context.Context, deviceID string, update registry.DeviceUpdate) error

	// Health checks that the host API is reachable and authenticated
	Health(ctx context.Context) error

	// Close shuts down the connection to the host
	Close()
}
