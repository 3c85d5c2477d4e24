package observability

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestServiceLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.InfoLevel)
	requestCore, requestLogs := observer.New(zapcore.InfoLevel)
	log := ServiceLogger(zap.New(fallbackCore))

	log(context.Background(), "cart.created", map[string]any{"cartID": "c1"})
	log(WithLogger(context.Background(), zap.New(requestCore)), "cart.add_line_failed", map[string]any{"cartID": "c1"})

	if fallbackLogs.Len() != 1 {
		t.Fatalf("expected one fallback entry, got %d", fallbackLogs.Len())
	}
	entry := fallbackLogs.All()[0]
	if entry.Message != "cart.created" || entry.ContextMap()["cartID"] != "c1" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if requestLogs.Len() != 1 || requestLogs.All()[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected failure event at warn on request logger, got %+v", requestLogs.All())
	}
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	logger, err := NewLogger(LoggerOptions{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("hello", zap.String("k", "v"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"hello"`) || !strings.Contains(string(data), `"severity":"INFO"`) {
		t.Fatalf("unexpected log output %s", data)
	}
}
