// Command brockd serves health and Prometheus metrics for one ledger instance
// and follows its event outbox.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/brock/internal/config"
	"github.com/dyluth/brock/internal/metrics"
	"github.com/dyluth/brock/internal/monitor"
	"github.com/dyluth/brock/internal/watch"
	"github.com/dyluth/brock/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// 1. Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// 2. Build logger
	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 3. Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, prometheus.NewRegistry(), logger); err != nil {
		logger.Error("brockd stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("brockd stopped")
}

// loadConfig reads BROCK_CONFIG (default brock.yml). BROCK_INSTANCE and
// BROCK_REDIS_URL override the file and are enough on their own.
func loadConfig() (*config.BrockConfig, error) {
	path := os.Getenv("BROCK_CONFIG")
	if path == "" {
		path = config.DefaultFileName
	}

	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || os.Getenv("BROCK_INSTANCE") == "" {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg = &config.BrockConfig{Version: "1.0"}
	}

	if v := os.Getenv("BROCK_INSTANCE"); v != "" {
		cfg.Instance = v
	}
	if v := os.Getenv("BROCK_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("BROCK_ADDR"); v != "" {
		if cfg.Server == nil {
			cfg.Server = &config.ServerConfig{}
		}
		cfg.Server.Addr = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.BrockConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Log.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel())

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("instance", cfg.Instance)), nil
}

// run connects to the ledger, starts the health server and follows events
// until ctx is cancelled.
func run(ctx context.Context, cfg *config.BrockConfig, reg *prometheus.Registry, logger *zap.Logger) error {
	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return fmt.Errorf("invalid redis_url: %w", err)
	}

	client, err := ledger.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return fmt.Errorf("failed to create ledger client: %w", err)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("redis not accessible: %w", err)
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("brock", reg, logger)

	health := monitor.NewHealthServer(cfg.Server.Addr, client, reg, logger)
	if err := health.Start(); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := health.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health server shutdown failed", zap.Error(err))
		}
	}()

	follower := monitor.NewFollower(client, collector, logger)
	follower.OnEvent(func(e *ledger.Event) {
		logger.Info(watch.Describe(e),
			zap.String("event_type", string(e.Type)),
			zap.String("stream_id", e.StreamID),
		)
	})

	logger.Info("brockd started",
		zap.String("redis_url", cfg.RedisURL),
		zap.String("addr", cfg.Server.Addr),
	)
	return follower.Run(ctx)
}
