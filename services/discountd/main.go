// Package discountd wires the fee discount ledger, its audit journal and the
// admin HTTP API into a single daemon.
package discountd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cpswap/config"
	"cpswap/core/events"
	"cpswap/core/state"
	"cpswap/native/discount"
	"cpswap/observability"
	"cpswap/observability/logging"
	telemetry "cpswap/observability/otel"
	"cpswap/services/discountd/audit"
	"cpswap/services/discountd/middleware"
	"cpswap/services/discountd/replay"
	"cpswap/services/discountd/server"
	"cpswap/storage"
)

const serviceName = "discountd"

// Version is stamped at build time.
var Version = "dev"

// Main parses flags, assembles the daemon and serves until SIGINT or SIGTERM.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./discountd.toml", "path to discountd config (toml or yaml)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.SetupWithOptions(serviceName, cfg.Environment, logging.Options{
		Level: logging.ParseLevel(cfg.Logging.Level),
		File:  logFile(cfg.Logging),
	})
	defer func() { _ = logCloser.Close() }()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		Endpoint:       strings.TrimSpace(cfg.Telemetry.Endpoint),
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:        cfg.Telemetry.Metrics,
		Traces:         cfg.Telemetry.Traces,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	daemon, err := Build(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := daemon.Close(); err != nil {
			logger.Warn("discountd: shutdown", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("discountd: starting",
		"environment", cfg.Environment,
		"storage", cfg.StorageBackend,
		"authority", cfg.AuthorityMode,
		"audit_driver", cfg.Audit.Driver)
	return daemon.Server.Run(ctx)
}

// Daemon holds the assembled components so callers can release them.
type Daemon struct {
	Engine  *discount.Engine
	Journal *audit.Store
	Server  *server.Server

	db storage.Database
}

// Build opens storage and the audit journal and constructs the HTTP server
// from cfg. The caller owns the returned Daemon and must Close it.
func Build(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("discountd: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	schedule, err := cfg.Schedule()
	if err != nil {
		return nil, fmt.Errorf("fee schedule: %w", err)
	}
	authority, err := cfg.Authority()
	if err != nil {
		return nil, fmt.Errorf("authority: %w", err)
	}
	if _, permissive := authority.(discount.PermissiveAuthority); permissive {
		logger.Warn("discountd: permissive authority enabled; any caller may rewrite discounts")
	}

	db, err := storage.Open(cfg.StorageBackend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	journal, err := audit.Open(cfg.Audit.Driver, cfg.Audit.DSN)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open audit journal: %w", err)
	}
	journal.SetLogger(logger)
	guard, err := replay.New(db)
	if err != nil {
		_ = journal.Close()
		_ = db.Close()
		return nil, fmt.Errorf("replay guard: %w", err)
	}

	engine := discount.NewEngine(state.NewManager(db), authority, schedule)
	engine.SetLogger(logger)
	engine.SetEmitter(events.Fanout{journal, observability.EventCounter{}})

	srv, err := server.New(server.Config{
		ListenAddress:   cfg.ListenAddress,
		SignatureMaxAge: cfg.SignatureMaxAge.Duration,
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
			TrustProxyHeaders: cfg.RateLimit.TrustProxyHeaders,
		},
		Auth: middleware.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.AuthSecret(),
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew.Duration,
		},
		Replay: guard,
	}, engine, journal, logger)
	if err != nil {
		_ = journal.Close()
		_ = db.Close()
		return nil, fmt.Errorf("build server: %w", err)
	}
	return &Daemon{Engine: engine, Journal: journal, Server: srv, db: db}, nil
}

// Close releases the journal and the state database.
func (d *Daemon) Close() error {
	if d == nil {
		return nil
	}
	return errors.Join(d.Journal.Close(), d.db.Close())
}

func logFile(cfg config.LoggingConfig) *logging.FileConfig {
	if strings.TrimSpace(cfg.File) == "" {
		return nil
	}
	return &logging.FileConfig{
		Path:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}
