// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package merger implements the scan-and-merge pipeline.
//
// Each run takes a fresh snapshot of the host registries, classifies
// every device as a Frigate camera needing a MAC or as a MAC source
// exposing one, joins the two sides on IP address, and writes the
// discovered MAC into each matched camera's registry entry so the host
// merges the device records.
//
// Runs are one-shot and stateless: nothing is cached between
// invocations, failures are contained per device, and re-running against
// an unchanged registry performs no writes.
package merger

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/soothill/frigate-mac-merger/pkg/errors"
	"github.com/soothill/frigate-mac-merger/pkg/interfaces"
	"github.com/soothill/frigate-mac-merger/pkg/logger"
	"github.com/soothill/frigate-mac-merger/pkg/metrics"
	"github.com/soothill/frigate-mac-merger/registry"
)

// DefaultSourceDomains are the camera integrations whose config entries
// seed the name-to-IP map.
var DefaultSourceDomains = []string{"hikvision_isapi", "unifiprotect", "reolink"}

// MergeEvent records one device registry update applied during a run.
type MergeEvent struct {
	Timestamp time.Time
	DeviceID  string
	Device    string
	IP        string
	MAC       string
}

// RunSummary reports the outcome of one pipeline run.
type RunSummary struct {
	Trigger   string        `json:"trigger"`
	Scanned   int           `json:"scanned"`
	Cameras   int           `json:"cameras"`
	Mappings  int           `json:"mappings"`
	Updated   int           `json:"updated"`
	Skipped   int           `json:"skipped"`
	Unmatched int           `json:"unmatched"`
	Duration  time.Duration `json:"duration"`
	Events    []MergeEvent  `json:"-"`
}

// Pipeline runs the scan -> match -> update sequence against the host.
type Pipeline struct {
	client        interfaces.RegistryClient
	sourceDomains []string

	mu sync.Mutex // one run at a time
}

// NewPipeline creates a pipeline using the given registry client. An
// empty sourceDomains falls back to DefaultSourceDomains.
func NewPipeline(client interfaces.RegistryClient, sourceDomains []string) *Pipeline {
	if len(sourceDomains) == 0 {
		sourceDomains = DefaultSourceDomains
	}
	return &Pipeline{
		client:        client,
		sourceDomains: sourceDomains,
	}
}

// UpdateSourceDomains replaces the source domain list. Takes effect on
// the next run; waits for any in-flight run to finish first.
func (p *Pipeline) UpdateSourceDomains(sourceDomains []string) {
	if len(sourceDomains) == 0 {
		sourceDomains = DefaultSourceDomains
	}
	p.mu.Lock()
	p.sourceDomains = sourceDomains
	p.mu.Unlock()
}

// Run executes one full scan-and-merge pass. The trigger label ("startup",
// "manual", "rescan") only annotates logs, metrics, and run history.
//
// Returns ErrRunInProgress if another run is executing; a snapshot
// failure aborts the run, while per-device failures are logged and
// skipped.
func (p *Pipeline) Run(ctx context.Context, trigger string) (*RunSummary, error) {
	if !p.mu.TryLock() {
		return nil, apperrors.ErrRunInProgress
	}
	defer p.mu.Unlock()

	metrics.MergeRunsTotal.Inc()
	start := time.Now()

	logger.Info().Str("trigger", trigger).Msg("Starting Frigate MAC merge run")

	snap, err := p.client.Snapshot(ctx)
	if err != nil {
		metrics.MergeRunErrors.Inc()
		logger.Error().Err(err).Msg("Failed to snapshot host registries")
		return nil, err
	}

	res := scan(snap, p.sourceDomains)

	summary := &RunSummary{
		Trigger:   trigger,
		Scanned:   res.scanned,
		Cameras:   res.cameras,
		Mappings:  len(res.ipToMAC),
		Skipped:   res.skipped,
		Unmatched: len(res.noIP),
	}

	p.matchAndUpdate(ctx, res, summary)

	summary.Duration = time.Since(start)
	p.observe(summary)
	p.logSummary(summary)

	return summary, nil
}

// matchAndUpdate looks up each camera's IP in the MAC source map and
// applies the registry update on a hit. Idempotent: a camera already
// carrying the matched MAC is counted as skipped, and the host registry
// de-duplicates connection tuples on its side as well.
func (p *Pipeline) matchAndUpdate(ctx context.Context, res *scanResult, summary *RunSummary) {
	for _, cand := range res.needsMAC {
		name := cand.device.DisplayName()

		mac, ok := res.ipToMAC[cand.ip]
		if !ok {
			summary.Unmatched++
			logger.Warn().
				Str("device", name).
				Str("ip", cand.ip).
				Msg("Could not find MAC address for Frigate camera. " +
					"Make sure the camera is configured in another integration")
			continue
		}

		if cand.device.HasMACConnection(mac) {
			summary.Skipped++
			logger.Debug().
				Str("device", name).
				Str("mac", mac).
				Msg("Frigate device already has this MAC address")
			continue
		}

		update := registry.DeviceUpdate{
			AddIdentifiers: []registry.Identifier{{Domain: registry.ConnectionTypeMAC, ID: mac}},
			AddConnections: []registry.Connection{{Type: registry.ConnectionTypeMAC, Value: mac}},
		}

		if err := p.client.UpdateDevice(ctx, cand.device.ID, update); err != nil {
			metrics.RegistryWriteErrors.Inc()
			logger.Error().Err(err).
				Str("device", name).
				Str("mac", mac).
				Msg("Failed to update Frigate device registry entry")
			continue
		}

		summary.Updated++
		summary.Events = append(summary.Events, MergeEvent{
			Timestamp: time.Now(),
			DeviceID:  cand.device.ID,
			Device:    name,
			IP:        cand.ip,
			MAC:       mac,
		})
		logger.Info().
			Str("device", name).
			Str("ip", cand.ip).
			Str("mac", mac).
			Msg("Updated Frigate device with MAC address")
	}
}

func (p *Pipeline) observe(summary *RunSummary) {
	metrics.DevicesScanned.Set(float64(summary.Scanned))
	metrics.CamerasFound.Set(float64(summary.Cameras))
	metrics.MappingsBuilt.Set(float64(summary.Mappings))
	metrics.UnmatchedCameras.Set(float64(summary.Unmatched))
	metrics.DevicesUpdated.Add(float64(summary.Updated))
	metrics.RunDuration.Observe(summary.Duration.Seconds())
}

func (p *Pipeline) logSummary(summary *RunSummary) {
	logger.Info().
		Str("trigger", summary.Trigger).
		Int("scanned", summary.Scanned).
		Int("cameras", summary.Cameras).
		Int("mappings", summary.Mappings).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Int("unmatched", summary.Unmatched).
		Dur("duration", summary.Duration).
		Msg("Merge run complete")

	switch {
	case summary.Cameras == 0:
		logger.Warn().Msg("No Frigate cameras found. Make sure the Frigate integration is set up")
	case summary.Mappings == 0 && summary.Updated == 0 && summary.Skipped < summary.Cameras:
		logger.Warn().
			Int("cameras", summary.Cameras).
			Msg("Found Frigate cameras but no MAC addresses from other integrations. " +
				"Make sure your camera integrations are configured")
	}
}
