// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing setup, and graceful shutdown management.
//
// # Logging
//
// Logger wraps log/slog with a JSON handler and chainable field helpers:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("datastore_id", id).Info("datastore deleted")
//
// Request-scoped loggers are carried on the context; FromContext stamps the
// request ID and requesting organization ID onto every line.
//
// # Metrics
//
// NewMetrics registers counters and histograms for sync triggers, queue
// dispatches, datastore deletions, usage recomputation, and the reconciler
// sweep. Handler exposes them for Prometheus scraping on the health port.
//
// # Tracing
//
// InitOTel wires an OTLP gRPC trace exporter when enabled. The S3 client and
// the deletion coordinator start spans on their hot paths.
package observability
