package storage

import "time"

// Config for the relational, object, and queue backends
type Config struct {
	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	// S3 config
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Queue config
	QueueName        string
	DispatchRetries  int
	DispatchInterval time.Duration

	// Lease config
	LeaseTTL time.Duration

	// Usage snapshot cache
	UsageCacheSize int
	UsageCacheTTL  time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		S3Region:         "us-east-1",
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		QueueName:        "load-datasource",
		DispatchRetries:  3,
		DispatchInterval: 250 * time.Millisecond,
		LeaseTTL:         30 * time.Second,
		UsageCacheSize:   1024,
		UsageCacheTTL:    30 * time.Second,
	}
}
