package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:     slog.LevelInfo,
		Component: "server",
		Handler:   slog.NewTextHandler(&buf, nil),
	})

	logger.Info("request handled", "status", 200)

	out := buf.String()
	if !strings.Contains(out, "component=server") {
		t.Errorf("output missing component: %s", out)
	}
	if !strings.Contains(out, "status=200") {
		t.Errorf("output missing attribute: %s", out)
	}
}

func TestWithComponent(t *testing.T) {
	logger := New(DefaultConfig())
	worker := logger.WithComponent("sweep-worker")

	if worker.Component() != "sweep-worker" {
		t.Errorf("Component() = %q, want sweep-worker", worker.Component())
	}
	if logger.Component() != "tally" {
		t.Errorf("parent Component() = %q, want tally", logger.Component())
	}
}

func TestDebugBelowLevelIsDropped(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:     slog.LevelInfo,
		Component: "server",
		Handler:   slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}),
	})

	logger.Debug("noisy detail")
	if buf.Len() != 0 {
		t.Errorf("debug record should be dropped, got %s", buf.String())
	}
}
