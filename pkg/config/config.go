package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/corpushq/corpus/pkg/observability"
	"github.com/corpushq/corpus/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Observability configuration
	Observability ObservabilityConfig

	// Reconciler configuration
	Reconciler ReconcilerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// ReconcilerConfig holds the orphan sweep settings
type ReconcilerConfig struct {
	// Schedule is a cron expression for sweep runs
	Schedule string
	// Grace is how long a row may sit in 'deleting' before the sweep
	// finishes the deletion for it
	Grace time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
		Reconciler:    loadReconcilerConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CORPUS_HOST", "0.0.0.0"),
		Port:            getEnv("CORPUS_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CORPUS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CORPUS_WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:     getEnvDuration("CORPUS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CORPUS_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CORPUS_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("CORPUS_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("CORPUS_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("CORPUS_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("CORPUS_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("CORPUS_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// S3 config
	if s3Endpoint := getEnv("CORPUS_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("CORPUS_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("CORPUS_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("CORPUS_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("CORPUS_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("CORPUS_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	// Redis config
	if redisURL := getEnv("CORPUS_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("CORPUS_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("CORPUS_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("CORPUS_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("CORPUS_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Queue config
	if queueName := getEnv("CORPUS_QUEUE_NAME", ""); queueName != "" {
		cfg.QueueName = queueName
	}
	if retries := getEnvInt("CORPUS_DISPATCH_RETRIES", 0); retries > 0 {
		cfg.DispatchRetries = retries
	}

	// Lease and cache config
	if leaseTTL := getEnvDuration("CORPUS_LEASE_TTL", 0); leaseTTL > 0 {
		cfg.LeaseTTL = leaseTTL
	}
	if cacheTTL := getEnvDuration("CORPUS_USAGE_CACHE_TTL", 0); cacheTTL > 0 {
		cfg.UsageCacheTTL = cacheTTL
	}

	return cfg
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("CORPUS_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CORPUS_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CORPUS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CORPUS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CORPUS_OTEL_SERVICE_NAME", "corpus"),
		OTelServiceVersion: getEnv("CORPUS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CORPUS_OTEL_INSECURE", true),
	}
}

// loadReconcilerConfig loads reconciler configuration from environment
func loadReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Schedule: getEnv("CORPUS_RECONCILER_SCHEDULE", "*/15 * * * *"),
		Grace:    getEnvDuration("CORPUS_RECONCILER_GRACE", 15*time.Minute),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.S3Endpoint == "" || c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3 configuration is required")
	}
	if c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.Storage.QueueName == "" {
		return fmt.Errorf("queue name is required")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
