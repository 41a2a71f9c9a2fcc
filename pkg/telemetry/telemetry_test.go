package telemetry

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.NewComponentLogger("engine").WithRunID("r1").WithIP("acme/uart").Info("hello")

	out := buf.String()
	for _, want := range []string{`"component":"engine"`, `"run_id":"r1"`, `"ip":"acme/uart"`, `"message":"hello"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log line to contain %s, got %s", want, out)
		}
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %s", buf.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("Expected warn message in output, got %s", buf.String())
	}
}

func TestFromContextDefaultsToNop(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil {
		t.Fatal("Expected a logger, got nil")
	}
	l.Info("discarded")
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got %v", err)
	}

	cfg.Logging.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for invalid log level")
	}

	cfg = DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for otlp exporter without endpoint")
	}
}

func TestMetricsCounters(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	m.RecordPhaseGroup("main", 10*time.Millisecond)
	m.RecordPhaseGroup("main", 10*time.Millisecond)
	m.RecordPhaseError("main")
	m.RecordIPsDiscovered("local", 4)
	m.RecordResolutionRound()

	if got := m.CounterValue("phase_groups_total", "main"); got != 2 {
		t.Errorf("Expected 2 main groups, got %v", got)
	}
	if got := m.CounterValue("phase_errors_total", "main"); got != 1 {
		t.Errorf("Expected 1 phase error, got %v", got)
	}
	if got := m.CounterValue("ips_discovered_total", "local"); got != 4 {
		t.Errorf("Expected 4 discovered IPs, got %v", got)
	}
	if got := m.CounterValue("resolution_rounds_total"); got != 1 {
		t.Errorf("Expected 1 resolution round, got %v", got)
	}
}

func TestNilMetricsAndTracer(t *testing.T) {
	var m *Metrics
	m.RecordPhaseGroup("main", time.Second)
	m.RecordJob("local", "success", time.Second)
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")); err != nil {
		t.Errorf("Expected nil metrics to write nothing, got %v", err)
	}

	var tr *Tracer
	ctx, span := tr.StartSpan(context.Background(), "noop")
	tr.RecordError(span, errors.New("boom"))
	span.End()
	if ctx == nil {
		t.Error("Expected a context from a nil tracer")
	}
}

func TestWriteTextfile(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	m.RecordRemoteInstall("success")

	path := filepath.Join(t.TempDir(), ".mio", "metrics.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("Failed to write textfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read textfile: %v", err)
	}
	if !strings.Contains(string(data), "mio_remote_installs_total") {
		t.Errorf("Expected textfile to contain mio_remote_installs_total, got %s", data)
	}
}
