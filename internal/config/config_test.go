package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/campus-records/pkg/enrollment"
)

// noEnvFile points Load at a file that does not exist.
func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(noEnvFile(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Store.Backend != BackendMemory {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, BackendMemory)
	}
	if cfg.Engine.Workers != 16 {
		t.Errorf("Engine.Workers = %d, want 16", cfg.Engine.Workers)
	}
	if cfg.Engine.PollInterval != 100*time.Millisecond {
		t.Errorf("Engine.PollInterval = %v, want 100ms", cfg.Engine.PollInterval)
	}
	if cfg.Engine.ShutdownGrace != 30*time.Second {
		t.Errorf("Engine.ShutdownGrace = %v, want 30s", cfg.Engine.ShutdownGrace)
	}
	if cfg.Retry.Policy != "exponential" {
		t.Errorf("Retry.Policy = %q, want exponential", cfg.Retry.Policy)
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	t.Setenv("CAMPUS_WORKERS", "4")
	t.Setenv("CAMPUS_CHUNK_SIZE", "25")
	t.Setenv("CAMPUS_SHUTDOWN_GRACE", "2s")
	t.Setenv("CAMPUS_RETRY_POLICY", "linear")
	t.Setenv("CAMPUS_LOG_PRETTY", "true")

	cfg, err := Load(noEnvFile(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Engine.Workers != 4 {
		t.Errorf("Engine.Workers = %d, want 4", cfg.Engine.Workers)
	}
	if cfg.Engine.ChunkSize != 25 {
		t.Errorf("Engine.ChunkSize = %d, want 25", cfg.Engine.ChunkSize)
	}
	if cfg.Engine.ShutdownGrace != 2*time.Second {
		t.Errorf("Engine.ShutdownGrace = %v, want 2s", cfg.Engine.ShutdownGrace)
	}
	if !cfg.Log.Pretty {
		t.Error("Log.Pretty = false, want true")
	}
	if rc := cfg.RetryConfig(); rc.Policy != enrollment.BackoffLinear {
		t.Errorf("RetryConfig().Policy = %q, want linear", rc.Policy)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campus.env")
	content := "CAMPUS_HTTP_ADDR=:9191\nCAMPUS_MAX_CONCURRENT_CHUNKS=8\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("CAMPUS_MAX_CONCURRENT_CHUNKS", "2")
	// Unset so the file value applies; t.Setenv restores it afterwards.
	t.Setenv("CAMPUS_HTTP_ADDR", "")
	os.Unsetenv("CAMPUS_HTTP_ADDR")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":9191" {
		t.Errorf("Server.Addr = %q, want %q from file", cfg.Server.Addr, ":9191")
	}
	if cfg.Engine.MaxConcurrentChunks != 2 {
		t.Errorf("Engine.MaxConcurrentChunks = %d, want 2 from environment", cfg.Engine.MaxConcurrentChunks)
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("CAMPUS_WORKERS", "many")

	_, err := Load(noEnvFile(t))
	if err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
	if !strings.Contains(err.Error(), "CAMPUS_WORKERS") {
		t.Errorf("error %q does not name CAMPUS_WORKERS", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(noEnvFile(t))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "sqlite" },
			wantErr: []string{"CAMPUS_STORE"},
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Store.Backend = BackendPostgres; c.Store.DatabaseURL = "" },
			wantErr: []string{"DATABASE_URL"},
		},
		{
			name: "multiple problems reported together",
			mutate: func(c *Config) {
				c.Engine.Workers = 0
				c.Retry.Policy = "random"
				c.Log.Level = "loud"
			},
			wantErr: []string{"CAMPUS_WORKERS", "CAMPUS_RETRY_POLICY", "CAMPUS_LOG_LEVEL"},
		},
		{
			name:    "max delay below base",
			mutate:  func(c *Config) { c.Retry.MaxDelay = time.Millisecond },
			wantErr: []string{"CAMPUS_RETRY_MAX_DELAY"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()

			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() error = nil")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Validate() error %q missing %q", err, want)
				}
			}
		})
	}
}
