// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soothill/frigate-mac-merger/config"
	"github.com/soothill/frigate-mac-merger/merger"
	"github.com/soothill/frigate-mac-merger/pkg/slacknotifier"
	"github.com/soothill/frigate-mac-merger/registry"
	"golang.org/x/time/rate"
)

// stubRegistry is a minimal registry client for handler tests.
type stubRegistry struct {
	snap    *registry.Snapshot
	snapErr error
}

func (s *stubRegistry) ListDevices(_ context.Context) ([]registry.DeviceRecord, error) {
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	return s.snap.Devices, nil
}

func (s *stubRegistry) ListEntities(_ context.Context) ([]registry.EntityRecord, error) {
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	return s.snap.Entities, nil
}

func (s *stubRegistry) ListConfigEntries(_ context.Context) ([]registry.ConfigEntryRecord, error) {
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	return s.snap.ConfigEntries, nil
}

func (s *stubRegistry) ListStates(_ context.Context) ([]registry.StateRecord, error) {
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	return s.snap.States, nil
}

func (s *stubRegistry) Snapshot(_ context.Context) (*registry.Snapshot, error) {
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	return s.snap, nil
}

func (s *stubRegistry) UpdateDevice(_ context.Context, _ string, _ registry.DeviceUpdate) error {
	return nil
}

func (s *stubRegistry) Health(_ context.Context) error { return s.snapErr }

func (s *stubRegistry) Close() {}

// newTestApp builds an App with a disabled notifier around the given
// registry client.
func newTestApp(client *stubRegistry) *App {
	notifier := slacknotifier.New("")
	return &App{
		pipeline: merger.NewPipeline(client, nil),
		notifier: notifier,
		alerts:   slacknotifier.NewMergeAlertAdapter(notifier),
	}
}

func TestHealthCheckHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	healthCheckHandler(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthCheckHandler() status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if w.Body.String() != "OK" {
		t.Errorf("healthCheckHandler() body = %s, want OK", w.Body.String())
	}
}

func TestMergeHandler_MethodNotAllowed(t *testing.T) {
	app := newTestApp(&stubRegistry{snap: &registry.Snapshot{}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/merge", nil)
	w := httptest.NewRecorder()

	app.mergeHandler(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("mergeHandler() status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestMergeHandler_EmptyRegistry(t *testing.T) {
	app := newTestApp(&stubRegistry{snap: &registry.Snapshot{}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/merge", nil)
	w := httptest.NewRecorder()

	app.mergeHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("mergeHandler() status = %d, want %d", w.Code, http.StatusOK)
	}

	var summary merger.RunSummary
	if err := json.NewDecoder(w.Body).Decode(&summary); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if summary.Trigger != "manual" {
		t.Errorf("Trigger = %q, want manual", summary.Trigger)
	}
	if summary.Scanned != 0 || summary.Updated != 0 {
		t.Errorf("Counts = %+v, want all zero for empty registry", summary)
	}
}

func TestMergeHandler_HostUnreachable(t *testing.T) {
	app := newTestApp(&stubRegistry{snapErr: errors.New("dial failed")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/merge", nil)
	w := httptest.NewRecorder()

	app.mergeHandler(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("mergeHandler() status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestPerformGracefulShutdown(t *testing.T) {
	// Create a test HTTP server
	mux := http.NewServeMux()
	mux.HandleFunc("/test", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("test"))
	})

	server := &http.Server{
		Addr:    "localhost:0", // Random port
		Handler: mux,
	}

	// Start server in background
	go func() {
		_ = server.ListenAndServe()
	}()

	// Give server time to start
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	// This tests the HTTP server shutdown portion
	shutdownComplete := make(chan struct{})
	go func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			t.Errorf("Server shutdown error: %v", err)
		}
		cancel()
		close(shutdownComplete)
	}()

	// Wait for shutdown to complete
	select {
	case <-shutdownComplete:
		// Success
	case <-time.After(3 * time.Second):
		t.Error("Shutdown did not complete in time")
	}

	// Verify context was canceled
	select {
	case <-ctx.Done():
		// Expected
	default:
		t.Error("Context should be canceled after shutdown")
	}
}

func TestMain_ConfigFileHandling(t *testing.T) {
	// Test config file creation and loading
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test-config.yaml")

	// Create a minimal test config file
	configContent := `
homeassistant:
  url: "http://homeassistant.local:8123"
  token: "test-token"
  request_timeout: 10s

merger:
  startup_delay: 15s
  source_domains:
    - hikvision_isapi
    - unifiprotect

logging:
  level: "info"

notifications:
  slack_webhook_url: ""
`

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	// Load the config
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load test config: %v", err)
	}

	// Verify config values
	if cfg.HomeAssistant.URL != "http://homeassistant.local:8123" {
		t.Errorf("HomeAssistant URL = %s, want http://homeassistant.local:8123", cfg.HomeAssistant.URL)
	}

	if cfg.HomeAssistant.Token != "test-token" {
		t.Errorf("HomeAssistant token = %s, want test-token", cfg.HomeAssistant.Token)
	}

	if len(cfg.Merger.SourceDomains) != 2 {
		t.Errorf("SourceDomains = %v, want 2 entries", cfg.Merger.SourceDomains)
	}
}

func TestRateLimitMiddleware_WithinLimit(t *testing.T) {
	// Create a rate limiter that allows 10 requests per second with burst of 20
	limiter := rate.NewLimiter(10, 20)

	// Create a test handler
	testHandler := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}

	// Wrap with rate limiting
	rateLimitedHandler := rateLimitMiddleware(limiter, testHandler)

	// Make a request within the limit
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	rateLimitedHandler(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("rateLimitMiddleware() status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if w.Body.String() != "OK" {
		t.Errorf("rateLimitMiddleware() body = %s, want OK", w.Body.String())
	}
}

func TestRateLimitMiddleware_ExceedLimit(t *testing.T) {
	// Create a rate limiter with very low limits: 1 request per second, burst of 1
	limiter := rate.NewLimiter(1, 1)

	// Create a test handler
	testHandler := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}

	// Wrap with rate limiting
	rateLimitedHandler := rateLimitMiddleware(limiter, testHandler)

	// First request should succeed
	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	w1 := httptest.NewRecorder()
	rateLimitedHandler(w1, req1)

	if w1.Code != http.StatusOK {
		t.Errorf("First request: status = %d, want %d", w1.Code, http.StatusOK)
	}

	// Second request should be rate limited (burst is exhausted)
	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	w2 := httptest.NewRecorder()
	rateLimitedHandler(w2, req2)

	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("Second request: status = %d, want %d", w2.Code, http.StatusTooManyRequests)
	}

	if !strings.Contains(w2.Body.String(), "Rate limit exceeded") {
		t.Errorf("Second request: body = %s, want to contain 'Rate limit exceeded'", w2.Body.String())
	}
}

func TestRateLimitMiddleware_BurstCapacity(t *testing.T) {
	// Create a rate limiter with burst capacity
	limiter := rate.NewLimiter(1, 5) // 1 per second, burst of 5

	// Create a test handler
	testHandler := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}

	// Wrap with rate limiting
	rateLimitedHandler := rateLimitMiddleware(limiter, testHandler)

	// First 5 requests should succeed (within burst)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		rateLimitedHandler(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Request %d: status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}

	// 6th request should be rate limited
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	rateLimitedHandler(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Request 6: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}
