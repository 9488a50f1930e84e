// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soothill/frigate-mac-merger/config"
	"github.com/soothill/frigate-mac-merger/hass"
	"github.com/soothill/frigate-mac-merger/merger"
	apperrors "github.com/soothill/frigate-mac-merger/pkg/errors"
	"github.com/soothill/frigate-mac-merger/pkg/interfaces"
	"github.com/soothill/frigate-mac-merger/pkg/logger"
	"github.com/soothill/frigate-mac-merger/pkg/metrics"
	"github.com/soothill/frigate-mac-merger/pkg/slacknotifier"
	"github.com/soothill/frigate-mac-merger/storage"
	"golang.org/x/time/rate"
)

const (
	signalChannelSize     = 1
	mergeRequestTimeout   = 60 * time.Second
	alertContextTimeout   = 5 * time.Second
	readinessCheckTimeout = 2 * time.Second
	shutdownTimeout       = 5 * time.Second
	flushTimeout          = 10 * time.Second
)

// App represents the main application
type App struct {
	cfg           *config.Config
	metricsPort   string
	server        *http.Server
	client        *hass.Client
	pipeline      *merger.Pipeline
	runHistory    interfaces.RunStorage // nil when InfluxDB is not configured
	notifier      *slacknotifier.Notifier
	alerts        *slacknotifier.MergeAlertAdapter
	configWatcher *config.Watcher
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	metricsPort := flag.String("metrics-port", "9090", "Port for Prometheus metrics endpoint")
	healthCheck := flag.Bool("health-check", false, "Perform health check and exit")
	validateConfig := flag.Bool("validate-config", false, "Validate configuration file and exit")
	flag.Parse()

	if *healthCheck {
		os.Exit(performHealthCheck(*configPath))
	}

	if *validateConfig {
		os.Exit(performConfigValidation(*configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Initialize("error")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(cfg.Logging.Level)

	logger.Info().Msg("Starting Frigate MAC Merger")
	logger.Info().Dur("startup_delay", cfg.Merger.StartupDelay).
		Dur("rescan_interval", cfg.Merger.RescanInterval).
		Strs("source_domains", cfg.Merger.SourceDomains).
		Msg("Configuration loaded")

	configChan := make(chan *config.Config)
	configWatcher := config.NewWatcher(*configPath, configChan)

	application, err := New(cfg, *metricsPort, configWatcher)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create application")
	}

	application.Run(configChan)
}

// New creates a new application instance
func New(cfg *config.Config, metricsPort string, configWatcher *config.Watcher) (*App, error) {
	app := &App{
		cfg:           cfg,
		metricsPort:   metricsPort,
		configWatcher: configWatcher,
	}

	if err := app.initializeComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeComponents initializes all application components
func (a *App) initializeComponents() error {
	// Initialize Slack notifier
	a.notifier = slacknotifier.New(a.cfg.Notifications.SlackWebhookURL)
	if a.notifier.IsEnabled() {
		logger.Info().Msg("Slack notifications enabled")
	} else {
		logger.Info().Msg("Slack notifications disabled (no webhook URL configured)")
	}
	a.alerts = slacknotifier.NewMergeAlertAdapter(a.notifier)

	// Initialize optional InfluxDB run history
	if a.cfg.InfluxDB.Enabled() {
		influxDB, err := storage.NewInfluxDBStorage(
			a.cfg.InfluxDB.URL,
			a.cfg.InfluxDB.Token,
			a.cfg.InfluxDB.Organization,
			a.cfg.InfluxDB.Bucket,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize InfluxDB: %w", err)
		}
		a.runHistory = influxDB
	} else {
		logger.Info().Msg("Run history disabled (no InfluxDB URL configured)")
	}

	// Initialize Home Assistant client and merge pipeline
	client, err := hass.NewClient(
		a.cfg.HomeAssistant.URL,
		a.cfg.HomeAssistant.Token,
		a.cfg.HomeAssistant.RequestTimeout,
	)
	if err != nil {
		if a.runHistory != nil {
			a.runHistory.Close()
		}
		return fmt.Errorf("failed to create Home Assistant client: %w", err)
	}
	a.client = client
	a.pipeline = merger.NewPipeline(client, a.cfg.Merger.SourceDomains)

	// Create rate limiters for HTTP endpoints
	healthLimiter := rate.NewLimiter(10, 20)
	readyLimiter := rate.NewLimiter(10, 20)
	mergeLimiter := rate.NewLimiter(rate.Every(10*time.Second), 2)

	// Setup HTTP handlers
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", rateLimitMiddleware(healthLimiter, healthCheckHandler))
	mux.HandleFunc("/ready", rateLimitMiddleware(readyLimiter, func(w http.ResponseWriter, r *http.Request) {
		readinessCheckHandler(w, r, a.client)
	}))
	mux.HandleFunc("/api/v1/merge", rateLimitMiddleware(mergeLimiter, a.mergeHandler))

	a.server = &http.Server{
		Addr:    "localhost:" + a.metricsPort,
		Handler: mux,
	}

	return nil
}

// Run starts the application and blocks until shutdown
func (a *App) Run(configChan <-chan *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	a.ctx = ctx
	a.cancel = cancel
	defer a.cancel()

	a.configWatcher.Start(ctx)
	defer a.configWatcher.Stop()

	a.startMetricsServer()
	a.setupSignalHandler()
	setupDebugSignalHandlers(a)
	a.startConfigWatcher(configChan)
	a.runMainLoop(ctx)
}

// startMetricsServer starts the HTTP server for metrics, health checks,
// and the manual merge trigger
func (a *App) startMetricsServer() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Info().Str("addr", a.server.Addr).Msg("Starting metrics and health check server (localhost only)")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// setupSignalHandler sets up graceful shutdown on interrupt signals
func (a *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, signalChannelSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		a.performGracefulShutdown()
	}()
}

// runMainLoop waits out the startup delay, performs the initial merge
// run, then services the optional rescan ticker until shutdown
func (a *App) runMainLoop(ctx context.Context) {
	logger.Info().Dur("delay", a.cfg.Merger.StartupDelay).
		Msg("Waiting for camera integrations to register their devices")

	startupTimer := time.NewTimer(a.cfg.Merger.StartupDelay)
	defer startupTimer.Stop()

	select {
	case <-ctx.Done():
		a.performCleanup()
		return
	case <-startupTimer.C:
		a.MergeOnce(ctx, "startup")
	}

	if a.cfg.Merger.RescanInterval == 0 {
		logger.Info().Msg("Rescans disabled, waiting for manual triggers")
		<-ctx.Done()
		a.performCleanup()
		return
	}

	rescanTicker := time.NewTicker(a.cfg.Merger.RescanInterval)
	defer rescanTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down")
			a.performCleanup()
			return
		case <-rescanTicker.C:
			if ctx.Err() != nil {
				return
			}
			a.MergeOnce(ctx, "rescan")
		}
	}
}

// MergeOnce performs a single merge run and handles run history and alerts.
func (a *App) MergeOnce(ctx context.Context, trigger string) {
	summary, err := a.pipeline.Run(ctx, trigger)
	if err != nil {
		if errors.Is(err, apperrors.ErrRunInProgress) {
			logger.Warn().Str("trigger", trigger).Msg("Merge run already in progress, skipping")
			return
		}
		logger.Error().Err(err).Str("trigger", trigger).Msg("Merge run failed")
		if a.alerts.IsEnabled() {
			alertCtx, alertCancel := context.WithTimeout(context.Background(), alertContextTimeout)
			defer alertCancel()
			if notifyErr := a.alerts.SendRunFailure(alertCtx, trigger, err); notifyErr != nil {
				logger.Error().Err(notifyErr).Msg("Failed to send run failure alert")
			}
		}
		return
	}

	a.recordRun(summary)
	a.sendRunAlerts(summary)
}

// recordRun persists the run summary and its merge events
func (a *App) recordRun(summary *merger.RunSummary) {
	if a.runHistory == nil {
		return
	}

	run := &interfaces.RunRecord{
		Timestamp: time.Now(),
		Trigger:   summary.Trigger,
		Scanned:   summary.Scanned,
		Cameras:   summary.Cameras,
		Mappings:  summary.Mappings,
		Updated:   summary.Updated,
		Skipped:   summary.Skipped,
		Unmatched: summary.Unmatched,
		Duration:  summary.Duration,
	}

	if err := a.runHistory.WriteRun(run); err != nil {
		logger.Error().Err(err).Msg("Failed to write run history")
		metrics.RunHistoryWriteErrors.Inc()
		if a.alerts.IsEnabled() {
			alertCtx, alertCancel := context.WithTimeout(context.Background(), alertContextTimeout)
			defer alertCancel()
			if notifyErr := a.alerts.SendRunHistoryFailure(alertCtx, err); notifyErr != nil {
				logger.Error().Err(notifyErr).Msg("Failed to send run history failure alert")
			}
		}
		return
	}

	for _, event := range summary.Events {
		record := &interfaces.MergeEvent{
			Timestamp: event.Timestamp,
			DeviceID:  event.DeviceID,
			Device:    event.Device,
			IP:        event.IP,
			MAC:       event.MAC,
		}
		if err := a.runHistory.WriteEvent(record); err != nil {
			logger.Error().Err(err).Str("device_id", event.DeviceID).
				Msg("Failed to write merge event")
			metrics.RunHistoryWriteErrors.Inc()
		}
	}
}

// sendRunAlerts notifies on merged devices and unmatched cameras
func (a *App) sendRunAlerts(summary *merger.RunSummary) {
	if !a.alerts.IsEnabled() {
		return
	}

	alertCtx, alertCancel := context.WithTimeout(context.Background(), alertContextTimeout)
	defer alertCancel()

	if summary.Updated > 0 {
		if err := a.alerts.SendDevicesMerged(alertCtx, summary.Updated); err != nil {
			logger.Error().Err(err).Msg("Failed to send merge notification")
		}
	}
	if summary.Unmatched > 0 {
		if err := a.alerts.SendUnmatchedCameras(alertCtx, summary.Unmatched); err != nil {
			logger.Error().Err(err).Msg("Failed to send unmatched cameras alert")
		}
	}
}

// mergeHandler triggers a merge run over HTTP and returns the summary as JSON
func (a *App) mergeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), mergeRequestTimeout)
	defer cancel()

	summary, err := a.pipeline.Run(ctx, "manual")
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrRunInProgress):
			http.Error(w, "Merge run already in progress", http.StatusConflict)
		default:
			logger.Error().Err(err).Msg("Manual merge run failed")
			http.Error(w, "Merge run failed: host unreachable", http.StatusBadGateway)
		}
		return
	}

	a.recordRun(summary)
	a.sendRunAlerts(summary)

	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(summary); encodeErr != nil {
		logger.Error().Err(encodeErr).Msg("Failed to write merge response")
	}
}

// DumpApplicationState dumps current application state to logs
func (a *App) DumpApplicationState() {
	logger.Info().Msg("=== APPLICATION STATE DUMP (SIGUSR1) ===")

	logger.Info().
		Str("hass_url", a.cfg.HomeAssistant.URL).
		Strs("source_domains", a.cfg.Merger.SourceDomains).
		Dur("rescan_interval", a.cfg.Merger.RescanInterval).
		Bool("run_history", a.runHistory != nil).
		Bool("slack_alerts", a.notifier.IsEnabled()).
		Msg("Application state")

	healthCtx, healthCancel := context.WithTimeout(context.Background(), readinessCheckTimeout)
	defer healthCancel()
	if err := a.client.Health(healthCtx); err != nil {
		logger.Warn().Err(err).Msg("Home Assistant connection unhealthy")
	} else {
		logger.Info().Msg("Home Assistant connection healthy")
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info().
		Uint64("alloc_mb", m.Alloc/1024/1024).
		Uint64("total_alloc_mb", m.TotalAlloc/1024/1024).
		Uint32("num_gc", m.NumGC).
		Int("num_goroutines", runtime.NumGoroutine()).
		Msg("Runtime statistics")

	logger.Info().Msg("=== END STATE DUMP ===")
}

// DumpGoroutineStackTraces dumps all goroutine stack traces to logs
func DumpGoroutineStackTraces() {
	logger.Info().Msg("=== GOROUTINE STACK TRACES (SIGUSR2) ===")
	logger.Info().Int("num_goroutines", runtime.NumGoroutine()).Msg("Current goroutine count")

	buf := make([]byte, 1024*1024) // 1MB buffer
	stackLen := runtime.Stack(buf, true)
	logger.Info().Str("stack_traces", string(buf[:stackLen])).Msg("Full stack trace")

	logger.Info().Msg("=== END STACK TRACES ===")
}

// performGracefulShutdown handles graceful shutdown of all components
func (a *App) performGracefulShutdown() {
	logger.Info().Msg("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server stopped")
	}

	a.configWatcher.Stop()
	a.cancel()
}

// performCleanup flushes run history and waits for goroutines to finish
func (a *App) performCleanup() {
	if a.runHistory != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), flushTimeout)
		defer flushCancel()

		flushDone := make(chan struct{})
		go func() {
			a.runHistory.Flush()
			a.runHistory.Close()
			close(flushDone)
		}()

		select {
		case <-flushDone:
			logger.Info().Msg("Run history flush completed")
		case <-flushCtx.Done():
			logger.Warn().Msg("Run history flush timeout - some history may be lost")
		}
	}

	a.client.Close()

	logger.Info().Msg("Waiting for goroutines to finish...")
	a.wg.Wait()
	logger.Info().Msg("All goroutines finished, exiting")
}

// UpdateConfig updates the application's configuration.
func (a *App) UpdateConfig(newCfg *config.Config) {
	a.cfg = newCfg
	logger.Info().Msg("Application configuration updated")

	// Reconfigure components that depend on dynamic config values
	a.notifier.UpdateWebhookURL(a.cfg.Notifications.SlackWebhookURL)
	a.pipeline.UpdateSourceDomains(a.cfg.Merger.SourceDomains)
	logger.Info().Strs("source_domains", a.cfg.Merger.SourceDomains).Msg("Source domains updated")
}

// startConfigWatcher starts a goroutine to listen for config file changes and reloads
func (a *App) startConfigWatcher(configChan <-chan *config.Config) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				logger.Info().Msg("Config watcher goroutine shutting down")
				return
			case newCfg := <-configChan:
				a.UpdateConfig(newCfg)
			}
		}
	}()
}

// rateLimitMiddleware wraps an HTTP handler with rate limiting
func rateLimitMiddleware(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rate limit exceeded")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// healthCheckHandler handles health check requests
func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("OK")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write health check response")
	}
}

// readinessCheckHandler handles readiness check requests
func readinessCheckHandler(w http.ResponseWriter, _ *http.Request, client *hass.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), readinessCheckTimeout)
	defer cancel()

	if err := client.Health(ctx); err != nil {
		logger.Warn().Err(err).Msg("Readiness check failed: Home Assistant unreachable")
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, writeErr := w.Write([]byte("NOT READY: Home Assistant unreachable")); writeErr != nil {
			logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("READY")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
	}
}

// performHealthCheck performs a health check and returns exit code
func performHealthCheck(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: could not load config: %v\n", err)
		return 1
	}

	client, err := hass.NewClient(
		cfg.HomeAssistant.URL,
		cfg.HomeAssistant.Token,
		cfg.HomeAssistant.RequestTimeout,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: could not create client: %v\n", err)
		return 1
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Health(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: Home Assistant is unreachable: %v\n", err)
		return 1
	}

	fmt.Println("Health check passed: Home Assistant is reachable")
	return 0
}

// performConfigValidation validates the configuration file and returns exit code
func performConfigValidation(configPath string) int {
	logger.Initialize("info")
	logger.Info().Str("path", configPath).Msg("Validating configuration file")

	if err := config.ValidateWithSchema(configPath); err != nil {
		logger.Error().Err(err).Msg("Configuration schema validation failed")
		fmt.Fprintf(os.Stderr, "\n❌ Configuration validation FAILED\n")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration validation failed")
		fmt.Fprintf(os.Stderr, "\n❌ Configuration validation FAILED\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		return 1
	}

	fmt.Println("\n✅ Configuration validation PASSED")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Home Assistant URL: %s\n", cfg.HomeAssistant.URL)
	fmt.Printf("  Request Timeout: %s\n", cfg.HomeAssistant.RequestTimeout)
	fmt.Printf("  Startup Delay: %s\n", cfg.Merger.StartupDelay)
	if cfg.Merger.RescanInterval > 0 {
		fmt.Printf("  Rescan Interval: %s\n", cfg.Merger.RescanInterval)
	} else {
		fmt.Println("  Rescan Interval: disabled")
	}
	fmt.Printf("  Source Domains: %v\n", cfg.Merger.SourceDomains)
	fmt.Printf("  Log Level: %s\n", cfg.Logging.Level)

	if cfg.InfluxDB.Enabled() {
		fmt.Printf("  Run History: InfluxDB at %s (org %s, bucket %s)\n",
			cfg.InfluxDB.URL, cfg.InfluxDB.Organization, cfg.InfluxDB.Bucket)
	} else {
		fmt.Println("  Run History: Disabled")
	}

	if cfg.Notifications.SlackWebhookURL != "" {
		fmt.Println("  Slack Notifications: Enabled")
	} else {
		fmt.Println("  Slack Notifications: Disabled")
	}

	fmt.Println("\nAll validation checks passed. Configuration is ready for use.")
	return 0
}
