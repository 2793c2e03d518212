package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"go.opentelemetry.io/otel"
)

func TestSetupWritesMetricsTextfile(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.MetricsTextfile = filepath.Join(t.TempDir(), "metrics", "scribe.prom")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx := context.Background()
	shutdown, err := Setup(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	counter, err := otel.Meter("telemetry-test").Int64Counter("scribe_test_runs")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(ctx, 3)

	_, span := otel.Tracer("telemetry-test").Start(ctx, "probe")
	span.End()

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	data, err := os.ReadFile(cfg.Telemetry.MetricsTextfile)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "scribe_test_runs") {
		t.Fatalf("metric missing from textfile:\n%s", data)
	}
}

func TestNewLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, config.TelemetryConfig{LogLevel: "warn", LogFormat: "json"})
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered: %s", out)
	}
	if !strings.HasPrefix(out, "{") || !strings.Contains(out, "shown") {
		t.Fatalf("expected json warn line, got %s", out)
	}
}
