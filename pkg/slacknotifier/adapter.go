// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package slacknotifier

import (
	"context"
	"fmt"
)

// MergeAlertAdapter wraps a Notifier with alert helpers for merge run
// outcomes.
type MergeAlertAdapter struct {
	notifier *Notifier
}

// NewMergeAlertAdapter creates a new adapter.
func NewMergeAlertAdapter(notifier *Notifier) *MergeAlertAdapter {
	return &MergeAlertAdapter{notifier: notifier}
}

// SendRunFailure sends an alert when a merge run fails outright
func (a *MergeAlertAdapter) SendRunFailure(ctx context.Context, trigger string, err error) error {
	return a.notifier.SendAlert(ctx, "danger", "⚠️ Merge Run Failed",
		fmt.Sprintf("Merge run (trigger: %s) failed: %v\nFrigate devices may still be missing MAC addresses.", trigger, err))
}

// SendUnmatchedCameras sends an alert when cameras could not be matched to a MAC
func (a *MergeAlertAdapter) SendUnmatchedCameras(ctx context.Context, unmatched int) error {
	return a.notifier.SendAlert(ctx, "warning", "⚠️ Unmatched Frigate Cameras",
		fmt.Sprintf("%d Frigate camera(s) have no matching MAC source device.\nCheck that the camera integrations are loaded and device names line up.", unmatched))
}

// SendDevicesMerged sends a confirmation when devices were updated
func (a *MergeAlertAdapter) SendDevicesMerged(ctx context.Context, updated int) error {
	return a.notifier.SendAlert(ctx, "good", "✅ Frigate Devices Merged",
		fmt.Sprintf("Added MAC addresses to %d Frigate device(s). Home Assistant will merge the device records.", updated))
}

// SendRunHistoryFailure sends an alert when run history could not be persisted
func (a *MergeAlertAdapter) SendRunHistoryFailure(ctx context.Context, err error) error {
	return a.notifier.SendAlert(ctx, "danger", "⚠️ Run History Write Failure",
		fmt.Sprintf("Failed to write merge run history to InfluxDB: %v", err))
}

// IsEnabled returns whether Slack notifications are enabled
func (a *MergeAlertAdapter) IsEnabled() bool {
	return a.notifier.IsEnabled()
}
