package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"DEBUG":   "DEBUG",
		"info":    "INFO",
		"INFO":    "INFO",
		"":        "INFO",
		"warn":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"ERROR":   "ERROR",
		"invalid": "INFO",
	}
	for input, want := range cases {
		if got := ParseLevel(input).String(); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestSetupWriter(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		check  func(t *testing.T, writer interface{})
	}{
		{
			name:   "stdout output",
			config: Config{Output: "stdout"},
			check: func(t *testing.T, writer interface{}) {
				if writer != os.Stdout {
					t.Error("Expected os.Stdout")
				}
			},
		},
		{
			name:   "stderr output",
			config: Config{Output: "stderr"},
			check: func(t *testing.T, writer interface{}) {
				if writer != os.Stderr {
					t.Error("Expected os.Stderr")
				}
			},
		},
		{
			name:   "default output",
			config: Config{Output: ""},
			check: func(t *testing.T, writer interface{}) {
				if writer != os.Stdout {
					t.Error("Expected os.Stdout as default")
				}
			},
		},
		{
			name:   "file output without filename",
			config: Config{Output: "file"},
			check: func(t *testing.T, writer interface{}) {
				if writer != os.Stdout {
					t.Error("Expected os.Stdout when filename is empty")
				}
			},
		},
		{
			name: "file output with filename rotates via lumberjack",
			config: Config{
				Output:     "file",
				Filename:   filepath.Join(t.TempDir(), "daemon.log"),
				MaxSize:    10,
				MaxBackups: 2,
				MaxAge:     7,
				Compress:   true,
			},
			check: func(t *testing.T, writer interface{}) {
				lj, ok := writer.(*lumberjack.Logger)
				if !ok {
					t.Fatalf("expected *lumberjack.Logger, got %T", writer)
				}
				if lj.MaxSize != 10 || lj.MaxBackups != 2 || lj.MaxAge != 7 || !lj.Compress {
					t.Errorf("lumberjack.Logger fields not propagated: %+v", lj)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := SetupWriter(tt.config)
			tt.check(t, writer)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}

	logger := NewLogger(cfg)
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}
	logger.Info("test message", "key", "value")
}

func TestNewLoggerTextFormat(t *testing.T) {
	logger := NewLogger(Config{Level: "debug", Format: "text", Output: "stdout"})
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level to be enabled")
	}
}
