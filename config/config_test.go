// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	"os"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: Config{
				HomeAssistant: HomeAssistantConfig{
					URL:            "http://homeassistant.local:8123",
					Token:          "test-token",
					RequestTimeout: 10 * time.Second,
				},
				Merger: MergerConfig{
					StartupDelay:  15 * time.Second,
					SourceDomains: []string{"hikvision_isapi"},
				},
				Logging: LoggingConfig{
					Level: "info",
				},
			},
			wantErr: false,
		},
		{
			name: "missing homeassistant url",
			config: Config{
				HomeAssistant: HomeAssistantConfig{
					Token:          "test-token",
					RequestTimeout: 10 * time.Second,
				},
				Logging: LoggingConfig{
					Level: "info",
				},
			},
			wantErr: true,
		},
		{
			name: "missing homeassistant token",
			config: Config{
				HomeAssistant: HomeAssistantConfig{
					URL:            "http://homeassistant.local:8123",
					RequestTimeout: 10 * time.Second,
				},
				Logging: LoggingConfig{
					Level: "info",
				},
			},
			wantErr: true,
		},
		{
			name: "plain http to non-local host",
			config: Config{
				HomeAssistant: HomeAssistantConfig{
					URL:            "http://ha.example.com:8123",
					Token:          "test-token",
					RequestTimeout: 10 * time.Second,
				},
				Logging: LoggingConfig{
					Level: "info",
				},
			},
			wantErr: true,
		},
		{
			name: "https to non-local host",
			config: Config{
				HomeAssistant: HomeAssistantConfig{
					URL:            "https://ha.example.com:8123",
					Token:          "test-token",
					RequestTimeout: 10 * time.Second,
				},
				Logging: LoggingConfig{
					Level: "info",
				},
			},
			wantErr: false,
		},
		{
			name: "request timeout too small",
			config: Config{
				HomeAssistant: HomeAssistantConfig{
					URL:            "http://192.168.1.10:8123",
					Token:          "test-token",
					RequestTimeout: 500 * time.Millisecond,
				},
				Logging: LoggingConfig{
					Level: "info",
				},
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			config: Config{
				HomeAssistant: HomeAssistantConfig{
					URL:            "http://192.168.1.10:8123",
					Token:          "test-token",
					RequestTimeout: 10 * time.Second,
				},
				Logging: LoggingConfig{
					Level: "invalid",
				},
			},
			wantErr: true,
		},
		{
			name: "influxdb url without token",
			config: Config{
				HomeAssistant: HomeAssistantConfig{
					URL:            "http://192.168.1.10:8123",
					Token:          "test-token",
					RequestTimeout: 10 * time.Second,
				},
				InfluxDB: InfluxDBConfig{
					URL: "http://localhost:8086",
				},
				Logging: LoggingConfig{
					Level: "info",
				},
			},
			wantErr: true,
		},
		{
			name: "rescan interval below one minute",
			config: Config{
				HomeAssistant: HomeAssistantConfig{
					URL:            "http://192.168.1.10:8123",
					Token:          "test-token",
					RequestTimeout: 10 * time.Second,
				},
				Merger: MergerConfig{
					RescanInterval: 30 * time.Second,
				},
				Logging: LoggingConfig{
					Level: "info",
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("nonexistent-config.yaml")
	if err == nil {
		t.Error("Load() should fail when file doesn't exist")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	// Create a temporary invalid YAML file
	tmpfile, err := os.CreateTemp("", "invalid-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	content := []byte("invalid: yaml: content:\n  - missing\n  closing")
	if _, writeErr := tmpfile.Write(content); writeErr != nil {
		t.Fatal(writeErr)
	}
	_ = tmpfile.Close()

	_, err = Load(tmpfile.Name())
	if err == nil {
		t.Error("Load() should fail with invalid YAML")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	// Create a temporary valid config file
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	content := []byte(`homeassistant:
  url: "http://homeassistant.local:8123"
  token: "test-token"
  request_timeout: 20s
merger:
  startup_delay: 30s
  rescan_interval: 6h
  source_domains:
    - hikvision_isapi
    - axis
logging:
  level: "info"
`)
	if _, writeErr := tmpfile.Write(content); writeErr != nil {
		t.Fatal(writeErr)
	}
	_ = tmpfile.Close()

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HomeAssistant.URL != "http://homeassistant.local:8123" {
		t.Errorf("HomeAssistant.URL = %v, want http://homeassistant.local:8123", cfg.HomeAssistant.URL)
	}
	if cfg.HomeAssistant.RequestTimeout != 20*time.Second {
		t.Errorf("HomeAssistant.RequestTimeout = %v, want 20s", cfg.HomeAssistant.RequestTimeout)
	}
	if cfg.Merger.StartupDelay != 30*time.Second {
		t.Errorf("Merger.StartupDelay = %v, want 30s", cfg.Merger.StartupDelay)
	}
	if cfg.Merger.RescanInterval != 6*time.Hour {
		t.Errorf("Merger.RescanInterval = %v, want 6h", cfg.Merger.RescanInterval)
	}
	if len(cfg.Merger.SourceDomains) != 2 || cfg.Merger.SourceDomains[1] != "axis" {
		t.Errorf("Merger.SourceDomains = %v, want [hikvision_isapi axis]", cfg.Merger.SourceDomains)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	// Create a temporary config file
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	content := []byte(`homeassistant:
  url: "http://homeassistant.local:8123"
  token: "file-token"
logging:
  level: "info"
`)
	if _, writeErr := tmpfile.Write(content); writeErr != nil {
		t.Fatal(writeErr)
	}
	_ = tmpfile.Close()

	// Set environment variables to override
	_ = os.Setenv("HASS_URL", "http://192.168.1.2:8123")
	_ = os.Setenv("HASS_TOKEN", "env-token")
	_ = os.Setenv("LOG_LEVEL", "debug")
	_ = os.Setenv("MERGER_STARTUP_DELAY", "1m")
	_ = os.Setenv("MERGER_RESCAN_INTERVAL", "12h")

	defer func() {
		_ = os.Unsetenv("HASS_URL")
		_ = os.Unsetenv("HASS_TOKEN")
		_ = os.Unsetenv("LOG_LEVEL")
		_ = os.Unsetenv("MERGER_STARTUP_DELAY")
		_ = os.Unsetenv("MERGER_RESCAN_INTERVAL")
	}()

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify environment variables override file values
	if cfg.HomeAssistant.URL != "http://192.168.1.2:8123" {
		t.Errorf("HomeAssistant.URL = %v, want http://192.168.1.2:8123", cfg.HomeAssistant.URL)
	}
	if cfg.HomeAssistant.Token != "env-token" {
		t.Errorf("HomeAssistant.Token = %v, want env-token", cfg.HomeAssistant.Token)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
	if cfg.Merger.StartupDelay != time.Minute {
		t.Errorf("Merger.StartupDelay = %v, want 1m", cfg.Merger.StartupDelay)
	}
	if cfg.Merger.RescanInterval != 12*time.Hour {
		t.Errorf("Merger.RescanInterval = %v, want 12h", cfg.Merger.RescanInterval)
	}
}

func TestLoad_Defaults(t *testing.T) {
	// Create a minimal config file
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	content := []byte(`homeassistant:
  url: "http://homeassistant.local:8123"
  token: "test-token"
`)
	if _, writeErr := tmpfile.Write(content); writeErr != nil {
		t.Fatal(writeErr)
	}
	_ = tmpfile.Close()

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify defaults are applied
	if cfg.HomeAssistant.RequestTimeout != 10*time.Second {
		t.Errorf("Default RequestTimeout = %v, want 10s", cfg.HomeAssistant.RequestTimeout)
	}
	if cfg.Merger.StartupDelay != 15*time.Second {
		t.Errorf("Default StartupDelay = %v, want 15s", cfg.Merger.StartupDelay)
	}
	if cfg.Merger.RescanInterval != 0 {
		t.Errorf("Default RescanInterval = %v, want 0", cfg.Merger.RescanInterval)
	}
	want := []string{"hikvision_isapi", "unifiprotect", "reolink"}
	if len(cfg.Merger.SourceDomains) != len(want) {
		t.Fatalf("Default SourceDomains = %v, want %v", cfg.Merger.SourceDomains, want)
	}
	for i, domain := range want {
		if cfg.Merger.SourceDomains[i] != domain {
			t.Errorf("Default SourceDomains[%d] = %v, want %v", i, cfg.Merger.SourceDomains[i], domain)
		}
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Default log level = %v, want info", cfg.Logging.Level)
	}
}

func TestInfluxDBConfig_Enabled(t *testing.T) {
	cfg := InfluxDBConfig{}
	if cfg.Enabled() {
		t.Error("Enabled() should be false when URL is empty")
	}
	cfg.URL = "http://localhost:8086"
	if !cfg.Enabled() {
		t.Error("Enabled() should be true when URL is set")
	}
}
