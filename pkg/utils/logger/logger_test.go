package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pvjudge/pkg/utils/contextkey"

	"go.uber.org/zap"
)

func TestInitWritesContextFields(t *testing.T) {
	prev := globalLogger
	t.Cleanup(func() { globalLogger = prev })

	path := filepath.Join(t.TempDir(), "judge.log")
	if err := Init(Config{Level: "debug", Format: "json", OutputPath: path}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx := contextkey.WithCase(contextkey.WithRunID(context.Background(), "run-7"), "Test-1")
	Info(ctx, "judged", zap.String("kind", "Correct"))
	if err := Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("log line is not json: %q", data)
	}
	if entry["msg"] != "judged" || entry["run_id"] != "run-7" || entry["case"] != "Test-1" || entry["kind"] != "Correct" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, err := NewLogger(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLoggingBeforeInitIsNoop(t *testing.T) {
	prev := globalLogger
	globalLogger = nil
	t.Cleanup(func() { globalLogger = prev })

	Error(context.Background(), "dropped")
	if GetLogger() == nil {
		t.Fatal("GetLogger should never return nil")
	}
	if err := Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
}
