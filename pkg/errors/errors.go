// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package errors provides structured error types for the Frigate MAC Merger.
//
// This package defines custom error types that provide better error handling,
// inspection, and debugging capabilities compared to plain string errors.
//
// # Benefits of Structured Errors
//
//   - Type-safe error inspection with errors.As() and errors.Is()
//   - Context-rich error messages with operation and underlying error details
//   - Consistent error formatting across the application
//   - Better error wrapping and unwrapping support
//   - Enhanced logging with structured error fields
//
// # Example Usage
//
//	err := errors.NewTransportError("device_registry/list", fmt.Errorf("connection reset"))
//	if errors.IsTransportError(err) {
//	    log.Printf("Host call failed: %v", err)
//	}
//
//	var transportErr *errors.TransportError
//	if errors.As(err, &transportErr) {
//	    log.Printf("Failed command: %s", transportErr.Command)
//	}
package errors

import (
	"errors"
	"fmt"
)

// ExtractionError represents a failure to derive an IP or MAC address
// from a device's URL, name, or config entry data.
type ExtractionError struct {
	Kind   string // What was being extracted (e.g., "ip", "mac")
	Device string // Device name or ID involved
	Err    error  // Underlying error
}

func (e *ExtractionError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("extract %s (device=%s): %v", e.Kind, e.Device, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("extract %s failed", e.Kind)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError creates a new extraction error.
func NewExtractionError(kind, device string, err error) *ExtractionError {
	return &ExtractionError{Kind: kind, Device: device, Err: err}
}

// IsExtractionError checks if an error is an ExtractionError.
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}

// RegistryError represents an error reading from or writing to the host
// device registry.
type RegistryError struct {
	Op       string // Operation being performed (e.g., "update", "list")
	DeviceID string // Device ID involved in the operation (if applicable)
	Err      error  // Underlying error
}

func (e *RegistryError) Error() string {
	if e.DeviceID != "" {
		return fmt.Sprintf("registry %s (device=%s): %v", e.Op, e.DeviceID, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("registry %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("registry %s failed", e.Op)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// NewRegistryError creates a new registry error.
func NewRegistryError(op string, deviceID string, err error) *RegistryError {
	return &RegistryError{Op: op, DeviceID: deviceID, Err: err}
}

// IsRegistryError checks if an error is a RegistryError.
func IsRegistryError(err error) bool {
	var re *RegistryError
	return errors.As(err, &re)
}

// TransportError represents a failure of the WebSocket connection to the
// host platform, including authentication and command dispatch failures.
type TransportError struct {
	Command string // Host API command being sent (e.g., "config/device_registry/list")
	Err     error  // Underlying error
}

func (e *TransportError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("transport %s: %v", e.Command, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return "transport failure"
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error.
func NewTransportError(command string, err error) *TransportError {
	return &TransportError{Command: command, Err: err}
}

// IsTransportError checks if an error is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string // Configuration field that caused the error
	Value string // Invalid value (optional, may be redacted for sensitive fields)
	Err   error  // Underlying error or description
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config error in field %q (value=%q): %v", e.Field, e.Value, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("config error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config error in field %q", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error.
func NewConfigError(field string, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ValidationError represents a data validation error.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   any    // Invalid value
	Reason  string // Why validation failed
	Details error  // Additional details (optional)
}

func (e *ValidationError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("validation error: field %q with value %v: %s (%v)", e.Field, e.Value, e.Reason, e.Details)
	}
	return fmt.Sprintf("validation error: field %q with value %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Details
}

// NewValidationError creates a new validation error.
func NewValidationError(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotificationError represents an error sending notifications.
type NotificationError struct {
	Type string // Notification type (e.g., "slack", "email")
	Err  error  // Underlying error
}

func (e *NotificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notification %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("notification %s failed", e.Type)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// NewNotificationError creates a new notification error.
func NewNotificationError(notifType string, err error) *NotificationError {
	return &NotificationError{Type: notifType, Err: err}
}

// IsNotificationError checks if an error is a NotificationError.
func IsNotificationError(err error) bool {
	var ne *NotificationError
	return errors.As(err, &ne)
}

// Sentinel errors for common conditions
var (
	// ErrNoIPAddress indicates no IPv4 address could be extracted
	ErrNoIPAddress = errors.New("no IP address found")

	// ErrNoMACAddress indicates no MAC address is present on a device
	ErrNoMACAddress = errors.New("no MAC address found")

	// ErrNoMatch indicates no MAC source shares the camera's IP
	ErrNoMatch = errors.New("no matching device for IP")

	// ErrRunInProgress indicates a merge run is already executing
	ErrRunInProgress = errors.New("merge run already in progress")

	// ErrNotConnected indicates the host connection is not established
	ErrNotConnected = errors.New("not connected to host")

	// ErrAuthFailed indicates the host rejected the access token
	ErrAuthFailed = errors.New("host authentication failed")

	// ErrCommandFailed indicates the host returned an unsuccessful result
	ErrCommandFailed = errors.New("host command failed")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timeout")

	// ErrCircuitBreakerOpen indicates the circuit breaker is open
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
