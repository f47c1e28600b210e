package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/corpushq/corpus/pkg/config"
	"github.com/corpushq/corpus/pkg/datastores"
	"github.com/corpushq/corpus/pkg/lease"
	"github.com/corpushq/corpus/pkg/observability"
	"github.com/corpushq/corpus/pkg/orgs"
	"github.com/corpushq/corpus/pkg/storage/postgres"
)

var runOnce = flag.Bool("run-once", false, "Run one sweep and exit")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting corpus-reconciler")

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	conns, err := postgres.NewConnectionManager(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer conns.Close()

	redisClient, err := postgres.NewRedisClient(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}
	defer redisClient.Close()

	s3Client, err := postgres.NewS3Client(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to create S3 client")
		os.Exit(1)
	}

	leases := lease.NewManager(redisClient.GetClient(), cfg.Storage.LeaseTTL)
	orgService := orgs.NewPostgresService(conns.Primary(), cfg.Storage, metrics)
	svc := datastores.NewService(conns.Primary(), conns.Replica(), s3Client, orgService, leases, logger, metrics)

	sweep := func() {
		report, err := svc.Sweep(context.Background(), cfg.Reconciler.Grace)
		if err != nil {
			logger.WithError(err).Error("sweep failed")
			return
		}
		logger.WithFields(map[string]interface{}{
			"stuck_finished":  report.StuckFinished,
			"orphans_removed": report.OrphansRemoved,
		}).Info("sweep finished")
	}

	if *runOnce {
		sweep()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Reconciler.Schedule, sweep); err != nil {
		logger.WithError(err).Error("failed to schedule sweep")
		os.Exit(1)
	}
	c.Start()
	logger.Infof("sweep scheduled: %s (grace %s)", cfg.Reconciler.Schedule, cfg.Reconciler.Grace)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	<-c.Stop().Done()
}
