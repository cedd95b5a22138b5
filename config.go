package rconv2

import (
	"time"

	"github.com/sirupsen/logrus"
)

// CorrelationMode selects how inbound frames are matched to pending
// requests (§4.2).
type CorrelationMode int

const (
	// OrderedQueue resolves the head of a FIFO on every inbound frame,
	// relying on the server replying in the same order it received
	// requests. This is the mode known to work against the deployed
	// server and is the default.
	OrderedQueue CorrelationMode = iota

	// IDIndexed resolves waiters by the frame's id field. Safer, but
	// requires the server to honor request ids in its replies.
	IDIndexed
)

func (m CorrelationMode) String() string {
	switch m {
	case OrderedQueue:
		return "ordered-queue"
	case IDIndexed:
		return "id-indexed"
	default:
		return "unknown"
	}
}

// BackoffConfig parameterizes the supervisor's truncated exponential
// backoff (§4.3).
type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// DefaultBackoff matches §4.3: initial 0.5s, factor ~=1.618, cap 30s.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Initial: 500 * time.Millisecond,
		Max:     30 * time.Second,
		Factor:  1.618,
	}
}

func (b BackoffConfig) withDefaults() BackoffConfig {
	d := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Factor <= 1 {
		b.Factor = d.Factor
	}
	return b
}

// Config configures a Session, Supervisor or Pool. It is a plain struct —
// parsing flags/env/files into one is the job of the cmd/rconctl demo's
// config package, not of the core (§10).
type Config struct {
	Host     string
	Port     int
	Password string

	// DialTimeout bounds opening the TCP socket and running the
	// handshake. Zero means 10s.
	DialTimeout time.Duration

	// RequestTimeout is applied to Execute calls whose context carries no
	// deadline of its own. Zero means no default timeout.
	RequestTimeout time.Duration

	// CorrelationMode selects FIFO vs id-indexed response correlation.
	// Zero value is OrderedQueue.
	CorrelationMode CorrelationMode

	// PacingInterval is the minimum delay enforced between the start of
	// consecutive writes on one session. Zero disables pacing.
	PacingInterval time.Duration

	// Backoff parameterizes the supervisor's reconnect loop.
	Backoff BackoffConfig

	// PoolSize is the number of supervised connections a Pool manages.
	PoolSize int

	// Logger receives structured log entries. A nil Logger falls back to
	// a fresh logrus entry whose output is discarded, so the core
	// never panics on a zero-value Config.
	Logger *logrus.Entry

	// Metrics receives Prometheus observations. Nil disables metrics
	// entirely (no-op).
	Metrics *Metrics
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return 10 * time.Second
}

func (c Config) logger() *logrus.Entry {
	if c.Logger != nil {
		return c.Logger
	}
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return logrus.NewEntry(l)
}

func (c Config) metrics() *Metrics {
	if c.Metrics != nil {
		return c.Metrics
	}
	return noopMetrics
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
