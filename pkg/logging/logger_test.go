package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Level = %s, want %s", cfg.Level, LevelInfo)
	}
	if cfg.Pretty {
		t.Error("Pretty = true, want false")
	}
	if cfg.Service != "campusd" {
		t.Errorf("Service = %q, want %q", cfg.Service, "campusd")
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name    string
		level   LogLevel
		emit    func(zerolog.Logger)
		written bool
	}{
		{"info at info", LevelInfo, func(l zerolog.Logger) { l.Info().Msg("hello") }, true},
		{"debug at info", LevelInfo, func(l zerolog.Logger) { l.Debug().Msg("hello") }, false},
		{"debug at debug", LevelDebug, func(l zerolog.Logger) { l.Debug().Msg("hello") }, true},
		{"warn at error", LevelError, func(l zerolog.Logger) { l.Warn().Msg("hello") }, false},
		{"error at warn", LevelWarn, func(l zerolog.Logger) { l.Error().Msg("hello") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := Setup(Config{Level: tt.level, Output: buf})

			tt.emit(logger)

			if got := strings.Contains(buf.String(), "hello"); got != tt.written {
				t.Errorf("written = %v, want %v (output %q)", got, tt.written, buf.String())
			}
		})
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func TestSetup_ServiceField(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf, Service: "campusd-test"})

	logger := NewLogger("gate")
	logger.Info().Msg("ready")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["service"] != "campusd-test" {
		t.Errorf("service = %v, want campusd-test", entry["service"])
	}
	if entry["component"] != "gate" {
		t.Errorf("component = %v, want gate", entry["component"])
	}
	log.Logger = zerolog.Nop()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"", LevelInfo, false},
		{"DEBUG", LevelDebug, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLevel_Internal(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"invalid", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
