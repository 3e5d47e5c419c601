package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/campus-records/pkg/enrollment"
	"github.com/Sternrassler/campus-records/pkg/logging"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Load reads the given .env files (missing files are ignored; none means
// ".env"), then the environment, applies defaults and validates the result.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := os.Getenv(envName)
		if alt := field.Tag.Get("envAlt"); value == "" && alt != "" {
			value = os.Getenv(alt)
		}
		if value == "" {
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("CAMPUS_LOG_LEVEL: %v", err))
	}
	if c.Server.Addr == "" {
		errs = append(errs, "CAMPUS_HTTP_ADDR is required")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "CAMPUS_REQUEST_TIMEOUT must be positive")
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, "REDIS_URL is required for the redis store")
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres store")
		}
		if c.Store.MaxConns <= 0 {
			errs = append(errs, "CAMPUS_DB_MAX_CONNS must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("CAMPUS_STORE (%q) must be memory, redis or postgres", c.Store.Backend))
	}

	if c.Engine.Workers <= 0 {
		errs = append(errs, "CAMPUS_WORKERS must be positive")
	}
	if c.Engine.ChunkSize <= 0 {
		errs = append(errs, "CAMPUS_CHUNK_SIZE must be positive")
	}
	if c.Engine.MaxConcurrentChunks <= 0 {
		errs = append(errs, "CAMPUS_MAX_CONCURRENT_CHUNKS must be positive")
	}
	if c.Engine.PollInterval <= 0 {
		errs = append(errs, "CAMPUS_QUEUE_POLL_INTERVAL must be positive")
	}
	if c.Engine.ShutdownGrace <= 0 {
		errs = append(errs, "CAMPUS_SHUTDOWN_GRACE must be positive")
	}

	if _, err := enrollment.ParseBackoffPolicy(c.Retry.Policy); err != nil {
		errs = append(errs, fmt.Sprintf("CAMPUS_RETRY_POLICY: %v", err))
	}
	if c.Retry.BaseDelay <= 0 {
		errs = append(errs, "CAMPUS_RETRY_BASE_DELAY must be positive")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, fmt.Sprintf("CAMPUS_RETRY_MAX_DELAY (%v) must be >= CAMPUS_RETRY_BASE_DELAY (%v)",
			c.Retry.MaxDelay, c.Retry.BaseDelay))
	}
	if c.Notify.Timeout <= 0 {
		errs = append(errs, "CAMPUS_NOTIFY_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// RetryConfig converts the retry settings for the enrollment package.
func (c *Config) RetryConfig() enrollment.RetryConfig {
	policy, _ := enrollment.ParseBackoffPolicy(c.Retry.Policy)
	rc := enrollment.DefaultRetryConfig()
	rc.Policy = policy
	rc.BaseDelay = c.Retry.BaseDelay
	rc.MaxDelay = c.Retry.MaxDelay
	return rc
}
