package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"dyson-go-home/internal/discovery"
	"dyson-go-home/internal/dyson"
	"dyson-go-home/internal/dyson/devicesim"
	"dyson-go-home/internal/entity"
	"dyson-go-home/internal/integration"
	"dyson-go-home/internal/store"
	"dyson-go-home/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Backend struct {
		Type string `yaml:"type"` // "sim"
		Sim  struct {
			Devices []struct {
				Serial string `yaml:"serial"`
				Host   string `yaml:"host"`
			} `yaml:"devices"`
			AnnounceInterval string `yaml:"announce_interval"`
		} `yaml:"sim"`
	} `yaml:"backend"`
	Discovery struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"discovery"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) validate() error {
	switch c.Backend.Type {
	case "sim":
	default:
		return fmt.Errorf("unknown backend type: %q (supported: sim)", c.Backend.Type)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	// Create configured logger.
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("dyson-go-home starting", "version", version)

	// Open store
	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Device backend + discoverer
	factory, disc, runBackend := createBackend(cfg, logger)
	if !cfg.Discovery.Enabled {
		disc = nil
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	if runBackend != nil {
		go runBackend(runCtx)
	}

	// Integration wiring: event bus, entity registry, refresh sink.
	events := integration.NewEventBus(logger)
	registry := entity.NewRegistry()
	refresher, mqttStop := initMQTT(registry, events, cfg, logger)

	manager := integration.New(factory, disc, events, logger,
		newPlatforms(refresher, registry, logger)...)

	// Set up every persisted entry. Devices that are not ready are retried
	// in the background with backoff.
	entries, err := db.ListEntries()
	if err != nil {
		logger.Error("list entries", "err", err)
		os.Exit(1)
	}
	for _, entry := range entries {
		go setUpWithRetry(runCtx, manager, entry, logger)
	}
	logger.Info("config entries loaded", "count", len(entries))

	// Start web server
	webOpts := []web.ServerOption{
		web.WithVersion(version),
		web.WithRetrySetup(func(entry *store.Entry) {
			go setUpWithRetry(runCtx, manager, entry, logger)
		}),
	}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}

	webServer, err := web.NewServer(manager, db, logger, webOpts...)
	if err != nil {
		logger.Error("create web server", "err", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	runCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	manager.Shutdown(shutdownCtx)
	mqttStop.Stop()

	logger.Info("goodbye")
}

// setUpWithRetry runs entry setup, retrying transient failures with
// doubling backoff. Permanent failures are logged once and abandoned.
func setUpWithRetry(ctx context.Context, manager *integration.Manager, entry *store.Entry, logger *slog.Logger) {
	delay := 30 * time.Second
	const maxDelay = 10 * time.Minute
	for {
		err := manager.SetUpEntry(ctx, entry)
		if err == nil {
			return
		}
		if !errors.Is(err, integration.ErrNotReady) {
			logger.Error("entry setup failed", "entry_id", entry.ID, "serial", entry.Serial, "err", err)
			return
		}
		logger.Warn("device not ready, will retry", "serial", entry.Serial, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay < maxDelay {
			delay *= 2
		}
	}
}

// createBackend builds the device factory and discoverer for the configured
// backend. The returned run function, if non-nil, drives background backend
// work until its context is cancelled.
func createBackend(cfg *Config, logger *slog.Logger) (dyson.Factory, discovery.Discoverer, func(context.Context)) {
	// Only the simulator backend exists in-tree; real appliances need an
	// external device-control library bound behind dyson.Factory.
	backend := devicesim.New()
	announcer := devicesim.NewAnnouncer()
	for _, d := range cfg.Backend.Sim.Devices {
		backend.SetReachable(d.Serial, d.Host)
	}

	interval := 30 * time.Second
	if cfg.Backend.Sim.AnnounceInterval != "" {
		if parsed, err := time.ParseDuration(cfg.Backend.Sim.AnnounceInterval); err == nil {
			interval = parsed
		} else {
			logger.Warn("invalid announce_interval, using default", "value", cfg.Backend.Sim.AnnounceInterval)
		}
	}

	run := func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				announcer.AnnounceAll(backend)
			}
		}
	}
	logger.Info("using simulator backend", "devices", len(cfg.Backend.Sim.Devices))
	return backend.Factory, announcer, run
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Backend.Type == "" {
		cfg.Backend.Type = "sim"
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "dyson-home.db"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "dyson"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
