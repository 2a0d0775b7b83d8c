package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// --- Logging Tests ---

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "INFO", "json")
	WithStage(logger, "gbk").Info("bundle done", "bundle_id", "b1")

	out := buf.String()
	if !strings.Contains(out, `"stage":"gbk"`) {
		t.Errorf("expected stage attribute in %s", out)
	}

	buf.Reset()
	logger = NewLogger(&buf, "WARN", "text")
	logger.Info("hidden")
	logger.Warn("shown")

	out = buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at WARN")
	}
	if !strings.Contains(out, "msg=shown") {
		t.Errorf("expected text output, got %s", out)
	}
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "INFO", "json")

	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger")
	}
}

// --- Metrics Tests ---

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.BundleProcessed("gbk")
	m.BundleProcessed("gbk")
	m.BundleFailed("explode")
	m.LaneCreated()
	m.LaneCreated()
	m.LaneEvicted()
	m.Outputs("explode", 5)
	m.Outputs("explode", 0)

	if got := testutil.ToFloat64(m.bundlesProcessed.WithLabelValues("gbk")); got != 2 {
		t.Errorf("expected 2 processed bundles, got %v", got)
	}
	if got := testutil.ToFloat64(m.lanesCreated); got != 2 {
		t.Errorf("expected 2 lanes created, got %v", got)
	}
	if got := testutil.ToFloat64(m.lanesActive); got != 1 {
		t.Errorf("expected 1 active lane, got %v", got)
	}
	if got := testutil.ToFloat64(m.outputs.WithLabelValues("explode")); got != 5 {
		t.Errorf("expected 5 outputs, got %v", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.BundleProcessed("x")
	m.LaneCreated()
	m.WorkerStarted()
	m.WorkerFinished()
	m.Checkpoint("x")
	m.Completion("x")
	m.PipelineFinished("DONE")
}
