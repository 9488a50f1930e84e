// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package config provides configuration management for the Frigate MAC Merger.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Merger        MergerConfig        `yaml:"merger"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// HomeAssistantConfig holds connection settings for the host platform
type HomeAssistantConfig struct {
	URL            string        `yaml:"url" validate:"required,url"`
	Token          string        `yaml:"token" validate:"required,min=8"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// MergerConfig holds merge pipeline settings
type MergerConfig struct {
	StartupDelay   time.Duration `yaml:"startup_delay"`
	RescanInterval time.Duration `yaml:"rescan_interval"`
	SourceDomains  []string      `yaml:"source_domains" validate:"dive,required"`
}

// InfluxDBConfig holds optional run-history storage settings. The
// entire block is disabled when url is empty.
type InfluxDBConfig struct {
	URL          string `yaml:"url" validate:"omitempty,url"`
	Token        string `yaml:"token" validate:"required_with=URL"`
	Organization string `yaml:"organization" validate:"required_with=URL"`
	Bucket       string `yaml:"bucket" validate:"required_with=URL"`
}

// Enabled reports whether run history storage is configured.
func (c *InfluxDBConfig) Enabled() bool {
	return c.URL != ""
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error fatal panic"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url" validate:"omitempty,url"`
}

var validate = validator.New()

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides and defaults
	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	// Validate configuration
	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvironmentOverrides() {
	if url := os.Getenv("HASS_URL"); url != "" {
		c.HomeAssistant.URL = url
	}
	if token := os.Getenv("HASS_TOKEN"); token != "" {
		c.HomeAssistant.Token = token
	}
	if url := os.Getenv("INFLUXDB_URL"); url != "" {
		c.InfluxDB.URL = url
	}
	if token := os.Getenv("INFLUXDB_TOKEN"); token != "" {
		c.InfluxDB.Token = token
	}
	if org := os.Getenv("INFLUXDB_ORG"); org != "" {
		c.InfluxDB.Organization = org
	}
	if bucket := os.Getenv("INFLUXDB_BUCKET"); bucket != "" {
		c.InfluxDB.Bucket = bucket
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if webhook := os.Getenv("SLACK_WEBHOOK_URL"); webhook != "" {
		c.Notifications.SlackWebhookURL = webhook
	}
	if delay := os.Getenv("MERGER_STARTUP_DELAY"); delay != "" {
		duration, parseErr := time.ParseDuration(delay)
		if parseErr == nil {
			c.Merger.StartupDelay = duration
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse MERGER_STARTUP_DELAY '%s': %v\n", delay, parseErr)
		}
	}
	if interval := os.Getenv("MERGER_RESCAN_INTERVAL"); interval != "" {
		duration, parseErr := time.ParseDuration(interval)
		if parseErr == nil {
			c.Merger.RescanInterval = duration
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse MERGER_RESCAN_INTERVAL '%s': %v\n", interval, parseErr)
		}
	}
}

// setDefaults sets default values for configuration fields if not provided
func (c *Config) setDefaults() {
	if c.HomeAssistant.RequestTimeout == 0 {
		c.HomeAssistant.RequestTimeout = 10 * time.Second
	}
	if c.Merger.StartupDelay == 0 {
		// Other integrations need time to register their devices first.
		c.Merger.StartupDelay = 15 * time.Second
	}
	if len(c.Merger.SourceDomains) == 0 {
		c.Merger.SourceDomains = []string{"hikvision_isapi", "unifiprotect", "reolink"}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}

	if validateErr := c.validateHomeAssistant(); validateErr != nil {
		return validateErr
	}

	if validateErr := c.validateMerger(); validateErr != nil {
		return validateErr
	}

	return nil
}

// validateHomeAssistant validates the host connection configuration
func (c *Config) validateHomeAssistant() error {
	parsedURL, parseErr := url.Parse(c.HomeAssistant.URL)
	if parseErr != nil {
		return fmt.Errorf("homeassistant.url is not a valid URL: %w", parseErr)
	}

	switch parsedURL.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("homeassistant.url must use http, https, ws, or wss (got %s)", parsedURL.Scheme)
	}

	// Check for HTTPS in production-like URLs (not localhost/RFC1918)
	if securityErr := validateURLSecurity(parsedURL); securityErr != nil {
		return securityErr
	}

	if c.HomeAssistant.RequestTimeout < time.Second {
		return fmt.Errorf("homeassistant.request_timeout must be at least 1 second")
	}
	if c.HomeAssistant.RequestTimeout > time.Minute {
		return fmt.Errorf("homeassistant.request_timeout must not exceed 1 minute")
	}

	return nil
}

// validateURLSecurity checks if the URL uses TLS for non-local connections
func validateURLSecurity(parsedURL *url.URL) error {
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "ws" {
		return nil
	}

	hostname := strings.ToLower(parsedURL.Hostname())
	isLocal := hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasSuffix(hostname, ".local") ||
		strings.HasPrefix(hostname, "192.168.") ||
		strings.HasPrefix(hostname, "10.") ||
		strings.HasPrefix(hostname, "172.")

	if !isLocal {
		return fmt.Errorf("homeassistant.url must use HTTPS for non-local connections (got %s). Using plain HTTP transmits the access token in plaintext and is a security risk", parsedURL.Scheme)
	}

	return nil
}

// validateMerger validates the merge pipeline configuration
func (c *Config) validateMerger() error {
	if c.Merger.StartupDelay < 0 {
		return fmt.Errorf("merger.startup_delay must not be negative")
	}
	if c.Merger.StartupDelay > 10*time.Minute {
		return fmt.Errorf("merger.startup_delay must not exceed 10 minutes")
	}
	if c.Merger.RescanInterval != 0 && c.Merger.RescanInterval < time.Minute {
		return fmt.Errorf("merger.rescan_interval must be at least 1 minute when set")
	}
	if c.Merger.RescanInterval > 24*time.Hour {
		return fmt.Errorf("merger.rescan_interval must not exceed 24 hours")
	}

	return nil
}
