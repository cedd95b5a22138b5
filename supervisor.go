package rconv2

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-uuid"
	"github.com/sirupsen/logrus"
)

// readinessState is the state of Supervisor's single-assignment "current
// session" slot (§4.3).
type readinessState int

const (
	readinessPending   readinessState = iota // connecting, or reconnecting
	readinessFulfilled                       // a Ready session is installed
	readinessCancelled                       // the supervisor has been stopped
)

// Supervisor manages exactly one session with auto-reconnect and a
// readiness future, the L3a front end (§4.3). It is grounded on the
// original's SupervisedRcon (lib/rcon.py) together with the teacher's
// dispatch/retry idiom.
type Supervisor struct {
	cfg Config
	log *logrus.Entry
	id  string

	mu      sync.Mutex
	state   readinessState
	session *Session
	waiters []chan struct{} // closed when state transitions out of Pending

	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{} // closed once the reconnect loop has exited

	baseCtx    context.Context // canceled by Stop, so a stuck dial/handshake unblocks
	cancelBase context.CancelFunc
}

// NewSupervisor constructs a Supervisor. Start must be called before Execute
// will succeed.
func NewSupervisor(cfg Config) *Supervisor {
	id, err := uuid.GenerateUUID()
	if err != nil {
		id = "unknown"
	}
	log := cfg.logger().WithField("component", "supervisor").WithField("connection_id", id)
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:        cfg,
		log:        log,
		id:         id,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
}

// Start begins the reconnect loop in the background. Calling Start more than
// once is a no-op.
func (sv *Supervisor) Start() {
	sv.mu.Lock()
	if sv.started {
		sv.mu.Unlock()
		return
	}
	sv.started = true
	sv.mu.Unlock()

	go sv.reconnectLoop()
}

func (sv *Supervisor) IsStarted() bool {
	select {
	case <-sv.stopCh:
		return false
	default:
	}
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.started
}

func (sv *Supervisor) IsConnected() bool {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.state == readinessFulfilled
}

// reconnectLoop implements the truncated exponential backoff described in
// §4.3: try to connect+authenticate; on failure sleep for the current delay,
// multiply by factor, clamp to cap, retry; on success install the session
// and await its disconnect, then reset to pending and loop.
func (sv *Supervisor) reconnectLoop() {
	defer close(sv.doneCh)
	backoff := sv.cfg.Backoff.withDefaults()
	delay := backoff.Initial

	for {
		select {
		case <-sv.stopCh:
			sv.cancelReadiness()
			return
		default:
		}

		lostCh := make(chan error, 1)
		sess, err := dial(sv.baseCtx, sv.cfg, func(cause error) {
			lostCh <- cause
		})
		if err != nil {
			// The original truncates the backoff delay to whole seconds
			// before sleeping (rcon.py: asyncio.sleep(int(backoff_delay)))
			// while still accumulating the untruncated delay for the next
			// multiply, so this matches that rather than rounding.
			sleepFor := delay.Truncate(time.Second)
			sv.log.WithError(err).WithField("retry_in", humanize.RelTime(time.Now(), time.Now().Add(sleepFor), "", "")).
				Warn("rconv2: connection attempt failed, backing off")
			sv.cfg.metrics().ReconnectsTotal.Inc()

			select {
			case <-sv.stopCh:
				sv.cancelReadiness()
				return
			case <-time.After(sleepFor):
			}
			delay = time.Duration(float64(delay) * backoff.Factor)
			if delay > backoff.Max {
				delay = backoff.Max
			}
			continue
		}

		delay = backoff.Initial
		sv.fulfill(sess)
		sv.cfg.metrics().ConnectionState.WithLabelValues(sv.id).Set(1)

		select {
		case <-lostCh:
		case <-sv.stopCh:
			sess.Close()
			sv.cancelReadiness()
			sv.cfg.metrics().ConnectionState.WithLabelValues(sv.id).Set(0)
			return
		}
		sv.cfg.metrics().ConnectionState.WithLabelValues(sv.id).Set(0)
		sv.resetToPending()
	}
}

func (sv *Supervisor) fulfill(sess *Session) {
	sv.mu.Lock()
	sv.session = sess
	sv.state = readinessFulfilled
	sv.wakeWaiters()
	sv.mu.Unlock()
}

func (sv *Supervisor) resetToPending() {
	sv.mu.Lock()
	sv.session = nil
	sv.state = readinessPending
	sv.mu.Unlock()
}

func (sv *Supervisor) cancelReadiness() {
	sv.mu.Lock()
	sv.session = nil
	sv.state = readinessCancelled
	sv.wakeWaiters()
	sv.mu.Unlock()
}

// wakeWaiters must be called with mu held.
func (sv *Supervisor) wakeWaiters() {
	for _, ch := range sv.waiters {
		close(ch)
	}
	sv.waiters = nil
}

// WaitUntilConnected blocks until a session is installed, ctx is done, or
// the supervisor is stopped.
func (sv *Supervisor) WaitUntilConnected(ctx context.Context) error {
	for {
		sv.mu.Lock()
		switch sv.state {
		case readinessFulfilled:
			sv.mu.Unlock()
			return nil
		case readinessCancelled:
			sv.mu.Unlock()
			return ErrConnectionClosed
		}
		ch := make(chan struct{})
		sv.waiters = append(sv.waiters, ch)
		sv.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Execute waits for readiness with a short default timeout and then
// executes against the current session (§4.3).
func (sv *Supervisor) Execute(ctx context.Context, command string, version int, body any) (string, error) {
	waitCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := sv.WaitUntilConnected(waitCtx); err != nil {
		return "", err
	}

	sv.mu.Lock()
	sess := sv.session
	sv.mu.Unlock()
	if sess == nil {
		return "", ErrConnectionClosed
	}
	return sess.Execute(ctx, command, version, body)
}

// Stop cancels the background reconnect loop, cancels readiness for any
// blocked waiters, and closes any open session. Stop is idempotent.
func (sv *Supervisor) Stop() {
	sv.mu.Lock()
	started := sv.started
	sv.mu.Unlock()

	sv.stopOnce.Do(func() {
		close(sv.stopCh)
		sv.cancelBase()
	})
	if started {
		<-sv.doneCh
	}
}

// OpenScoped opens one session synchronously, outside the reconnect loop,
// failing fast on a handshake error, and returns a handle whose Close tears
// it down. This is the "scoped session" mode from §4.3: no auto-reconnect.
func OpenScoped(ctx context.Context, cfg Config) (*ScopedSession, error) {
	sess, err := dial(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	return &ScopedSession{session: sess}, nil
}

// ScopedSession is a single connection with no supervision: open on entry,
// close on exit, matching the original's `async with RconProtocol(...)`
// usage (lib/rcon.py).
type ScopedSession struct {
	session *Session
}

func (s *ScopedSession) Execute(ctx context.Context, command string, version int, body any) (string, error) {
	return s.session.Execute(ctx, command, version, body)
}

func (s *ScopedSession) Close() error {
	return s.session.Close()
}

func (sv *Supervisor) String() string {
	return fmt.Sprintf("supervisor(%s, %s:%d)", sv.id, sv.cfg.Host, sv.cfg.Port)
}
