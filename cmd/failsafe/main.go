package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/failsafe/internal/api"
	"github.com/FairForge/failsafe/internal/backup"
	"github.com/FairForge/failsafe/internal/config"
	"github.com/FairForge/failsafe/internal/drtest"
	"github.com/FairForge/failsafe/internal/failover"
	"github.com/FairForge/failsafe/internal/notify"
	"github.com/FairForge/failsafe/internal/probe"
	"github.com/FairForge/failsafe/internal/replication"
	"github.com/FairForge/failsafe/internal/status"
)

func main() {
	cfg, err := config.Load(os.Getenv("FAILSAFE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer func() { _ = logger.Sync() }()

	// Recovery status store
	var store status.Store
	switch cfg.Status.Mode {
	case "postgres":
		pg, err := status.NewPostgresStore(context.Background(), cfg.Status.DSN)
		if err != nil {
			logger.Fatal("status store", zap.Error(err))
		}
		defer func() { _ = pg.Close() }()
		store = pg
		logger.Info("using postgres status store")
	case "file", "":
		fs, err := status.NewFileStore(cfg.Status.Path)
		if err != nil {
			logger.Fatal("status store", zap.Error(err))
		}
		store = fs
		logger.Info("using file status store", zap.String("path", cfg.Status.Path))
	default:
		logger.Fatal("invalid status.mode", zap.String("mode", cfg.Status.Mode))
	}
	store = status.NewRetryWriter(store, 3, 500*time.Millisecond, logger)

	attempts, err := failover.NewFileAttemptLog(cfg.Status.AttemptLog)
	if err != nil {
		logger.Fatal("attempt log", zap.Error(err))
	}

	// Notification sinks
	sinks := []notify.Sink{notify.NewLogSink(logger)}
	for _, wh := range cfg.Notify.Webhooks {
		sinks = append(sinks, notify.NewWebhookSink(wh.URL, wh.Secret, wh.Headers))
	}
	dispatcher := notify.NewDispatcher(
		cfg.Notify.SystemID, cfg.Notify.Environment, cfg.Notify.RatePerMin, logger, sinks...)

	// Backup catalog
	var catalog backup.Catalog
	switch cfg.Backup.Mode {
	case "s3":
		catalog, err = backup.NewS3Catalog(context.Background(),
			cfg.Backup.Bucket, cfg.Backup.Prefix, cfg.Backup.Region)
		if err != nil {
			logger.Fatal("backup catalog", zap.Error(err))
		}
		logger.Info("using s3 backup catalog", zap.String("bucket", cfg.Backup.Bucket))
	case "local", "":
		catalog = backup.NewDirCatalog(cfg.Backup.Dir)
		logger.Info("using local backup catalog", zap.String("dir", cfg.Backup.Dir))
	default:
		logger.Fatal("invalid backup.mode", zap.String("mode", cfg.Backup.Mode))
	}

	// Replication monitor; DSN optional for deployments without a standby DB
	var provider replication.StatusProvider
	if cfg.Replication.PrimaryDSN != "" {
		pgProvider, err := replication.NewPostgresProvider(cfg.Replication.PrimaryDSN)
		if err != nil {
			logger.Fatal("replication provider", zap.Error(err))
		}
		defer func() { _ = pgProvider.Close() }()
		provider = pgProvider
	}
	replicationMonitor := replication.NewMonitor(
		provider, cfg.Replication.MaxLag, cfg.Replication.QueryTimeout, logger)

	prober := probe.NewProber(
		cfg.Monitor.ServiceName, cfg.Monitor.ProbeTimeout, cfg.Monitor.DegradedThreshold, logger)

	orchestrator := failover.NewOrchestrator(
		failover.OrchestratorConfig{
			PrimaryEndpoint:   cfg.Monitor.PrimaryEndpoint,
			SecondaryEndpoint: cfg.Monitor.SecondaryEndpoint,
			RTOTarget:         cfg.Failover.RTOTarget,
			StepTimeout:       cfg.Failover.StepTimeout,
			VerifyRetries:     cfg.Failover.VerifyRetries,
			VerifyDelay:       cfg.Failover.VerifyDelay,
		},
		failover.NewCommandController(cfg.Failover.StopPrimaryCmd, cfg.Failover.PromoteSecondaryCmd, logger),
		failover.NewCommandRouter(cfg.Failover.UpdateRoutingCmd, logger),
		prober, store, dispatcher, attempts, logger,
	)

	loop := failover.NewMonitorLoop(
		failover.MonitorConfig{
			PrimaryEndpoint:   cfg.Monitor.PrimaryEndpoint,
			SecondaryEndpoint: cfg.Monitor.SecondaryEndpoint,
			CheckInterval:     cfg.Monitor.CheckInterval,
			FailoverThreshold: cfg.Monitor.FailoverThreshold,
		},
		prober, orchestrator, store, logger,
	)

	runner := drtest.NewRunner(
		drtest.RunnerConfig{
			PrimaryEndpoint:   cfg.Monitor.PrimaryEndpoint,
			SecondaryEndpoint: cfg.Monitor.SecondaryEndpoint,
			RTOTarget:         cfg.Failover.RTOTarget,
			RPOTarget:         cfg.Failover.RPOTarget,
			ReportDir:         cfg.Status.ReportDir,
		},
		prober, replicationMonitor, backup.NewVerifier(logger), catalog, store, dispatcher, logger,
	)

	server := api.NewServer(cfg, logger, loop, runner, store, attempts, dispatcher)

	// Handle shutdown gracefully
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down...")
		loop.Stop()
		dispatcher.Flush()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
		os.Exit(0)
	}()

	logger.Info("failsafe controller started",
		zap.Int("port", cfg.Server.Port),
		zap.String("primary", cfg.Monitor.PrimaryEndpoint),
		zap.String("secondary", cfg.Monitor.SecondaryEndpoint))

	if err := server.Start(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
