// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExtractionError(t *testing.T) {
	baseErr := fmt.Errorf("no dotted quad in name")
	err := NewExtractionError("ip", "Front Door", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "extract") || !strings.Contains(errMsg, "ip") || !strings.Contains(errMsg, "Front Door") {
		t.Errorf("Error() = %q, want message containing 'extract', 'ip', and 'Front Door'", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsExtractionError(err) {
		t.Error("IsExtractionError() should return true for ExtractionError")
	}

	var ee *ExtractionError
	if !errors.As(err, &ee) {
		t.Error("errors.As() should extract ExtractionError")
	}
	if ee.Kind != "ip" {
		t.Errorf("ExtractionError.Kind = %q, want %q", ee.Kind, "ip")
	}
}

func TestRegistryError(t *testing.T) {
	baseErr := fmt.Errorf("update rejected")
	err := NewRegistryError("update", "device-123", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "registry") || !strings.Contains(errMsg, "update") || !strings.Contains(errMsg, "device-123") {
		t.Errorf("Error() = %q, want message containing 'registry', 'update', and 'device-123'", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsRegistryError(err) {
		t.Error("IsRegistryError() should return true for RegistryError")
	}

	var re *RegistryError
	if !errors.As(err, &re) {
		t.Error("errors.As() should extract RegistryError")
	}
	if re.Op != "update" {
		t.Errorf("RegistryError.Op = %q, want %q", re.Op, "update")
	}
	if re.DeviceID != "device-123" {
		t.Errorf("RegistryError.DeviceID = %q, want %q", re.DeviceID, "device-123")
	}
}

func TestTransportError(t *testing.T) {
	baseErr := fmt.Errorf("connection reset")
	err := NewTransportError("config/device_registry/list", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "transport") || !strings.Contains(errMsg, "config/device_registry/list") {
		t.Errorf("Error() = %q, want message containing 'transport' and the command", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsTransportError(err) {
		t.Error("IsTransportError() should return true for TransportError")
	}

	var te *TransportError
	if !errors.As(err, &te) {
		t.Error("errors.As() should extract TransportError")
	}
	if te.Command != "config/device_registry/list" {
		t.Errorf("TransportError.Command = %q, want %q", te.Command, "config/device_registry/list")
	}
}

func TestConfigError(t *testing.T) {
	baseErr := fmt.Errorf("invalid format")
	err := NewConfigError("homeassistant.url", "invalid://url", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "config") || !strings.Contains(errMsg, "homeassistant.url") {
		t.Errorf("Error() = %q, want message containing 'config' and 'homeassistant.url'", errMsg)
	}

	if !IsConfigError(err) {
		t.Error("IsConfigError() should return true for ConfigError")
	}

	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Error("errors.As() should extract ConfigError")
	}
	if ce.Field != "homeassistant.url" {
		t.Errorf("ConfigError.Field = %q, want %q", ce.Field, "homeassistant.url")
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("mac", "zz:zz:zz", "not a valid hardware address")

	errMsg := err.Error()
	if !strings.Contains(errMsg, "validation") || !strings.Contains(errMsg, "mac") {
		t.Errorf("Error() = %q, want message containing 'validation' and 'mac'", errMsg)
	}

	if !IsValidationError(err) {
		t.Error("IsValidationError() should return true for ValidationError")
	}
}

func TestNotificationError(t *testing.T) {
	baseErr := fmt.Errorf("webhook returned 500")
	err := NewNotificationError("slack", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "notification") || !strings.Contains(errMsg, "slack") {
		t.Errorf("Error() = %q, want message containing 'notification' and 'slack'", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsNotificationError(err) {
		t.Error("IsNotificationError() should return true for NotificationError")
	}
}

func TestSentinelErrors(t *testing.T) {
	wrapped := fmt.Errorf("camera Front Door: %w", ErrNoMatch)
	if !errors.Is(wrapped, ErrNoMatch) {
		t.Error("errors.Is() should match wrapped sentinel ErrNoMatch")
	}

	if errors.Is(ErrNoIPAddress, ErrNoMACAddress) {
		t.Error("distinct sentinels should not match each other")
	}
}

func TestIsHelpersRejectOtherTypes(t *testing.T) {
	plain := errors.New("plain error")

	if IsExtractionError(plain) {
		t.Error("IsExtractionError() should return false for plain error")
	}
	if IsRegistryError(plain) {
		t.Error("IsRegistryError() should return false for plain error")
	}
	if IsTransportError(plain) {
		t.Error("IsTransportError() should return false for plain error")
	}
	if IsConfigError(plain) {
		t.Error("IsConfigError() should return false for plain error")
	}
}
