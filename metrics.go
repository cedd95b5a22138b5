package rconv2

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a set of Prometheus collectors a Session, Supervisor and Pool
// report into. The zero value is not usable directly; construct one with
// NewMetrics and register it with a registry of the caller's choosing (the
// teacher's style of taking a *prometheus.Registry rather than reaching for
// the global default, mirrored from nabbar-golib/prometheus).
type Metrics struct {
	ConnectionState *prometheus.GaugeVec
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	QueueDepth      prometheus.Gauge
	ReconnectsTotal prometheus.Counter
}

// NewMetrics builds a Metrics and registers every collector with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state per supervised session (1=ready, 0=not ready).",
		}, []string{"connection_id"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total commands executed, partitioned by outcome.",
		}, []string{"status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from Execute call to resolution.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_queue_depth",
			Help:      "Number of commands currently queued in a Pool.",
		}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Total failed connection attempts made by supervisors.",
		}),
	}
	reg.MustRegister(m.ConnectionState, m.RequestsTotal, m.RequestDuration, m.QueueDepth, m.ReconnectsTotal)
	return m
}

// noopMetrics is substituted whenever a Config carries no Metrics, so call
// sites never need a nil check.
var noopMetrics = &Metrics{
	ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "rconv2_noop_connection_state"}, []string{"connection_id"}),
	RequestsTotal:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rconv2_noop_requests_total"}, []string{"status"}),
	RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "rconv2_noop_request_duration_seconds"}, []string{"command"}),
	QueueDepth:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "rconv2_noop_pool_queue_depth"}),
	ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{Name: "rconv2_noop_reconnects_total"}),
}

func (m *Metrics) observeResult(command string, elapsedSeconds float64, err error) {
	status := "ok"
	switch {
	case err == nil:
	case isCommandError(err):
		status = "command_error"
	case isTimeout(err):
		status = "timeout"
	default:
		status = "connection_error"
	}
	m.RequestsTotal.WithLabelValues(status).Inc()
	m.RequestDuration.WithLabelValues(command).Observe(elapsedSeconds)
}

func isCommandError(err error) bool {
	_, ok := err.(*CommandError)
	return ok
}

func isTimeout(err error) bool {
	return err == ErrTimeout
}
