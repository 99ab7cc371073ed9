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

func TestNewLogger_LevelMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		level        string
		debugEnabled bool
	}{
		{name: "debug level", level: "debug", debugEnabled: true},
		{name: "info level", level: "info", debugEnabled: false},
		{name: "empty level defaults to info", level: "", debugEnabled: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tc.level)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if logger == nil {
				t.Fatal("logger should not be nil")
			}

			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.debugEnabled {
				t.Fatalf("debug enabled=%v, want=%v", got, tc.debugEnabled)
			}
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("not-a-level")
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
	if logger != nil {
		t.Fatal("expected nil logger for invalid level")
	}
}

func TestRunID_ContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := WithRunID(context.Background(), "run-123")
	runID, ok := RunIDFromContext(ctx)
	if !ok {
		t.Fatal("expected run id to exist")
	}
	if runID != "run-123" {
		t.Fatalf("run id=%q, want=%q", runID, "run-123")
	}
}

func TestRunID_ContextHelpersTODOContext(t *testing.T) {
	t.Parallel()

	ctx := WithRunID(context.TODO(), "run-456")
	runID, ok := RunIDFromContext(ctx)
	if !ok {
		t.Fatal("expected run id to exist")
	}
	if runID != "run-456" {
		t.Fatalf("run id=%q, want=%q", runID, "run-456")
	}
}

func TestRunID_MissingValue(t *testing.T) {
	t.Parallel()

	_, ok := RunIDFromContext(context.Background())
	if ok {
		t.Fatal("expected run id to be missing")
	}
}

func TestWithContextLogger(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	baseLogger := zap.New(core)

	ctx := WithRunID(context.Background(), "run-789")
	loggerWithContext := WithContextLogger(baseLogger, ctx)
	loggerWithContext.Info("message with run")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d, want=1", len(entries))
	}

	if got := entries[0].ContextMap()["runId"]; got != "run-789" {
		t.Fatalf("runId=%v, want=%q", got, "run-789")
	}
}

func TestWithContextLogger_NoRunID(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	baseLogger := zap.New(core)

	loggerWithContext := WithContextLogger(baseLogger, context.Background())
	loggerWithContext.Info("message without run")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d, want=1", len(entries))
	}

	if _, ok := entries[0].ContextMap()["runId"]; ok {
		t.Fatal("expected runId field to be absent")
	}
}

func TestWithContextLogger_NilLogger(t *testing.T) {
	t.Parallel()

	if got := WithContextLogger(nil, context.Background()); got != nil {
		t.Fatal("expected nil logger")
	}
}

func TestNewLogger_WithOutputFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mailer.log")
	logger, err := NewLogger("info", WithOutputFile(path), WithConsoleEncoding())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Info("run finished")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "run finished") {
		t.Fatalf("log file = %q, want it to contain the message", string(data))
	}
}
