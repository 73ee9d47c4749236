package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ScruffR/uCamIII/internal/config"
	"github.com/ScruffR/uCamIII/internal/ledger"
)

func TestInitLedgerDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	rec, closeFn, err := initLedger(context.Background(), config.Default().Ledger, logger)
	if err != nil {
		t.Fatalf("initLedger failed: %v", err)
	}
	defer closeFn()

	if _, ok := rec.(ledger.Noop); !ok {
		t.Errorf("Expected Noop recorder, got %T", rec)
	}
}

func TestInitLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := initLogger(config.LoggingConfig{Level: tt.level, Format: "json", Output: "stderr"})
			if !logger.Enabled(context.Background(), tt.want) {
				t.Errorf("Expected level %v to be enabled", tt.want)
			}
			if tt.want > slog.LevelDebug && logger.Enabled(context.Background(), tt.want-1) {
				t.Errorf("Expected level below %v to be disabled", tt.want)
			}
		})
	}
}

func TestInitLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	logger := initLogger(config.LoggingConfig{Level: "info", Format: "text", Output: path})
	logger.Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("Expected log file to contain output")
	}
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := config.Load("../../configs/config.yaml")
	if err != nil {
		t.Fatalf("Failed to load sample config: %v", err)
	}
	if cfg.Receiver.WireEncoding != config.EncodingHex {
		t.Errorf("Expected hex encoding, got %s", cfg.Receiver.WireEncoding)
	}
}
