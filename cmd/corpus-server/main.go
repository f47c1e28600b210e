package main

import (
	"context"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/corpushq/corpus/pkg/config"
	"github.com/corpushq/corpus/pkg/datasources"
	"github.com/corpushq/corpus/pkg/datastores"
	"github.com/corpushq/corpus/pkg/lease"
	"github.com/corpushq/corpus/pkg/middleware"
	"github.com/corpushq/corpus/pkg/observability"
	"github.com/corpushq/corpus/pkg/orgs"
	"github.com/corpushq/corpus/pkg/storage/postgres"
	"github.com/corpushq/corpus/pkg/tasks"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting corpus-server")

	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize tracing")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	conns, err := postgres.NewConnectionManager(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer conns.Close()

	if err := postgres.InitSchema(ctx, conns.Primary()); err != nil {
		logger.WithError(err).Error("failed to initialize schema")
		os.Exit(1)
	}

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
	dispatcher := tasks.NewRedisDispatcher(redisClient.GetClient(), cfg.Storage, metrics, logger)
	orgService := orgs.NewPostgresService(conns.Primary(), cfg.Storage, metrics)
	datasourceService := datasources.NewService(conns.Primary(), orgService, dispatcher, leases, metrics)
	datastoreService := datastores.NewService(conns.Primary(), conns.Replica(), s3Client, orgService, leases, logger, metrics)

	router := mux.NewRouter()
	router.Use(middleware.Chain(
		middleware.RequestID,
		middleware.Recovery(logger),
		middleware.Logging(logger),
	))
	datastores.NewHandler(datastoreService, datasourceService, logger).RegisterRoutes(router)

	done := make(chan struct{})
	metrics.CollectDBStats(done, 0, conns.Stats)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := newHealthServer(cfg.Server.Host+":"+cfg.Server.HealthPort, metrics, conns, redisClient, s3Client)

	go func() {
		logger.Infof("health/metrics server listening on :%s", cfg.Server.HealthPort)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.Infof("API server listening on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	}()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		close(done)
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return otelProviders.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return redisClient.Close()
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}
}

// newHealthServer serves liveness, readiness, and Prometheus metrics on a
// port separate from the API
func newHealthServer(addr string, metrics *observability.Metrics, conns *postgres.ConnectionManager, redisClient *postgres.RedisClient, s3Client *postgres.S3Client) *http.Server {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		if err := conns.HealthCheck(ctx); err != nil {
			http.Error(w, "postgres: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(ctx); err != nil {
			http.Error(w, "redis: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err := s3Client.HealthCheck(ctx); err != nil {
			http.Error(w, "s3: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	r.Handle("/metrics", metrics.Handler())

	return &http.Server{Addr: addr, Handler: r}
}
