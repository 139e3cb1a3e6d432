package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/entitycache/valuesnap/cache/config"
)

func TestSetupLoggerWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "valuesnap.log")
	logger, err := SetupLogger(config.LogConfig{
		Level:   "warning",
		Format:  "json",
		Outputs: []string{path},
	})
	if err != nil {
		t.Fatalf("SetupLogger returned error: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("visible")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected info entry to be filtered, got %s", out)
	}
	if !strings.Contains(out, `"msg":"visible"`) {
		t.Fatalf("expected JSON warn entry, got %s", out)
	}
}

func TestSetupLoggerRotatingOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotating.log")
	logger, err := SetupLogger(config.LogConfig{
		Level:    "debug",
		Outputs:  []string{path},
		Rotation: config.RotationConfig{Enable: true, MaxSizeMB: 1},
	})
	if err != nil {
		t.Fatalf("SetupLogger returned error: %v", err)
	}
	logger.Debug("rotated entry")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "rotated entry") {
		t.Fatalf("expected entry in rotating file, got %s", data)
	}
}

func TestSetupLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := SetupLogger(config.LogConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestMetricsRecordOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics returned error: %v", err)
	}

	metrics.RecordOperation(OpSnapshot, "identity.Capability", ResultOK)
	metrics.RecordOperation(OpSnapshot, "identity.Capability", ResultOK)
	metrics.RecordOperation(OpRestore, "identity.Capability", ResultCorrupt)
	metrics.ObservePayload("identity.Capability", 12)

	if got := testutil.ToFloat64(metrics.operations.WithLabelValues(OpSnapshot, "identity.Capability", ResultOK)); got != 2 {
		t.Fatalf("expected 2 snapshot operations, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.operations.WithLabelValues(OpRestore, "identity.Capability", ResultCorrupt)); got != 1 {
		t.Fatalf("expected 1 corrupt restore, got %v", got)
	}
	if got := testutil.CollectAndCount(metrics.payloadBytes); got != 1 {
		t.Fatalf("expected 1 payload histogram series, got %d", got)
	}

	if _, err := NewMetrics(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var metrics *Metrics
	metrics.RecordOperation(OpSnapshot, "x", ResultOK)
	metrics.ObservePayload("x", 1)
}
