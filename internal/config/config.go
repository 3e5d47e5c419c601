// Package config loads campusd settings from the environment, optionally
// seeded from a .env file.
package config

import "time"

// Config holds all campusd configuration.
type Config struct {
	Log    LogConfig
	Server ServerConfig
	Store  StoreConfig
	Engine EngineConfig
	Retry  RetryConfig
	Notify NotifyConfig
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error (default: info)
	Level string `env:"CAMPUS_LOG_LEVEL" default:"info"`

	// Pretty switches to console output (default: false)
	Pretty bool `env:"CAMPUS_LOG_PRETTY" default:"false"`
}

// ServerConfig holds the admin HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address (default: :8080)
	Addr string `env:"CAMPUS_HTTP_ADDR" default:":8080"`

	// RequestTimeout bounds synchronous enrollments (default: 5s)
	RequestTimeout time.Duration `env:"CAMPUS_REQUEST_TIMEOUT" default:"5s"`
}

// StoreConfig selects the registrar backend.
type StoreConfig struct {
	// Backend is memory, redis or postgres (default: memory)
	Backend string `env:"CAMPUS_STORE" default:"memory"`

	// RedisURL is a redis:// URL, required for the redis backend
	RedisURL string `env:"REDIS_URL" default:"redis://localhost:6379/0"`

	// DatabaseURL is a PostgreSQL DSN, required for the postgres backend
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns caps the PostgreSQL pool (default: 10)
	MaxConns int `env:"CAMPUS_DB_MAX_CONNS" default:"10"`
}

// EngineConfig holds pool, batch and queue settings.
type EngineConfig struct {
	Workers             int           `env:"CAMPUS_WORKERS" default:"16"`
	ChunkSize           int           `env:"CAMPUS_CHUNK_SIZE" default:"100"`
	MaxConcurrentChunks int           `env:"CAMPUS_MAX_CONCURRENT_CHUNKS" default:"4"`
	PollInterval        time.Duration `env:"CAMPUS_QUEUE_POLL_INTERVAL" default:"100ms"`
	ShutdownGrace       time.Duration `env:"CAMPUS_SHUTDOWN_GRACE" default:"30s"`
}

// RetryConfig holds enrollment retry backoff settings.
type RetryConfig struct {
	// Policy is exponential or linear (default: exponential)
	Policy    string        `env:"CAMPUS_RETRY_POLICY" default:"exponential"`
	BaseDelay time.Duration `env:"CAMPUS_RETRY_BASE_DELAY" default:"100ms"`
	MaxDelay  time.Duration `env:"CAMPUS_RETRY_MAX_DELAY" default:"5s"`
}

// NotifyConfig holds notification settings.
type NotifyConfig struct {
	// Channel is the Redis pub/sub channel; used with the redis backend
	Channel string        `env:"CAMPUS_NOTIFY_CHANNEL" default:"campus:enrollments"`
	Timeout time.Duration `env:"CAMPUS_NOTIFY_TIMEOUT" default:"10s"`
}
