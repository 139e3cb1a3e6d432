package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels.
const (
	OpSnapshot   = "snapshot"
	OpRestore    = "restore"
	OpInvalidate = "invalidate"
)

// Result labels.
const (
	ResultOK          = "ok"
	ResultUnsupported = "unsupported"
	ResultCorrupt     = "corrupt"
	ResultMissing     = "missing"
	ResultError       = "error"
)

// Metrics records snapshot store activity. A nil *Metrics is a no-op.
type Metrics struct {
	operations   *prometheus.CounterVec
	payloadBytes *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "valuesnap",
				Subsystem: "snapshot",
				Name:      "operations_total",
				Help:      "Snapshot store operations by type spec and result.",
			},
			[]string{"op", "type", "result"},
		),
		payloadBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "valuesnap",
				Subsystem: "snapshot",
				Name:      "payload_bytes",
				Help:      "Size of encoded snapshot payloads.",
				Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
			},
			[]string{"type"},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.operations, m.payloadBytes} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// RecordOperation counts one operation.
func (m *Metrics) RecordOperation(op, typeName, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, typeName, result).Inc()
}

// ObservePayload records the size of an encoded payload.
func (m *Metrics) ObservePayload(typeName string, size int) {
	if m == nil {
		return
	}
	m.payloadBytes.WithLabelValues(typeName).Observe(float64(size))
}
