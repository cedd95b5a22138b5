package rconv2

import (
	"container/list"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ashgrove/rconv2/internal/wireframe"
)

// sessionState tracks where a Session is in its lifecycle. All transitions
// happen under Session.mu.
type sessionState int

const (
	stateHandshaking sessionState = iota
	stateReady
	stateClosed
)

// Session is the L2 protocol session (§4.2): one TCP connection, one
// handshake, and correlation of concurrent Execute calls against the single
// stream of replies. It has no reconnect logic of its own — that is
// Supervisor's job (§4.3) — a Session that loses its connection stays
// closed forever.
//
// The architecture is adapted from the teacher's rpc.Client: a single
// goroutine (readLoop) is the only reader of the wire and the only popper of
// pending waiters, so correlation state never needs its own lock beyond the
// one guarding the write+enqueue pair. Unlike the teacher, writes are not
// handed off to a dispatch goroutine: Execute performs pacing, the write,
// and registration itself, serialized by mu, which is simpler and keeps the
// "write order == queue order" invariant (§4.2, Testable Property 3)
// trivially true by construction.
type Session struct {
	cfg    Config
	log    *logrus.Entry
	metric *Metrics

	conn   net.Conn
	cipher wireframe.Cipher
	reader *wireframe.Reader
	writer *wireframe.Writer

	limiter *rate.Limiter // nil when PacingInterval == 0

	mu        sync.Mutex
	state     sessionState
	authToken string
	ordered   *orderedWaiters
	indexed   *idWaiters
	closing   bool // set by Close before tearing down the conn

	onLost func(error) // invoked exactly once, from the readLoop goroutine

	readDone chan struct{}
}

// dial opens a TCP connection, runs the handshake, and returns a Ready
// Session. onConnectionLost is invoked exactly once, with a nil error for a
// caller-initiated Close and a non-nil error for every other disconnection.
func dial(ctx context.Context, cfg Config, onConnectionLost func(error)) (*Session, error) {
	log := cfg.logger()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	ctx, cancel := context.WithTimeout(ctx, cfg.dialTimeout())
	defer cancel()

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Cause: err}
	}

	s := &Session{
		cfg:      cfg,
		log:      log.WithField("remote", addr),
		metric:   cfg.metrics(),
		conn:     conn,
		cipher:   wireframe.NewCipher(nil),
		ordered:  newOrderedWaiters(),
		indexed:  newIDWaiters(),
		onLost:   onConnectionLost,
		readDone: make(chan struct{}),
		state:    stateHandshaking,
	}
	s.reader = wireframe.NewReader(conn, &s.cipher)
	s.writer = wireframe.NewWriter(conn, &s.cipher)
	if cfg.PacingInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(cfg.PacingInterval), 1)
	}

	go s.readLoop()

	if err := s.handshake(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.mu.Lock()
	s.state = stateReady
	s.mu.Unlock()

	return s, nil
}

// handshake runs ServerConnect (installs the cipher key) followed by Login
// (exchanges the password for an auth token), per §3.
func (s *Session) handshake(ctx context.Context) error {
	connectResp, err := s.executeRaw(ctx, "ServerConnect", 2, "")
	if err != nil {
		return &HandshakeError{Reason: "ServerConnect failed", Cause: err}
	}
	key, err := base64.StdEncoding.DecodeString(connectResp.ContentBody)
	if err != nil {
		return &HandshakeError{Reason: "ServerConnect reply was not valid base64", Cause: err}
	}
	s.cipher.SetKey(key)

	loginResp, err := s.executeRaw(ctx, "Login", 2, s.cfg.Password)
	if err != nil {
		return &HandshakeError{Reason: "Login failed", Cause: err}
	}
	if loginResp.StatusCode == StatusUnauthorized {
		return &HandshakeError{Reason: "authentication refused"}
	}
	if cerr := loginResp.commandError(); cerr != nil {
		return &HandshakeError{Reason: "Login rejected", Cause: cerr}
	}
	s.authToken = loginResp.ContentBody
	return nil
}

// Execute sends command/version/body and waits for the matching reply,
// returning the response's content body. A non-OK status becomes
// *CommandError; ctx expiring or being canceled becomes ErrTimeout without
// tearing down the connection.
func (s *Session) Execute(ctx context.Context, command string, version int, body any) (string, error) {
	start := time.Now()
	resp, err := s.executeRaw(ctx, command, version, body)
	s.metric.observeResult(command, time.Since(start).Seconds(), err)
	if err != nil {
		return "", err
	}
	if cerr := resp.commandError(); cerr != nil {
		return "", cerr
	}
	return resp.ContentBody, nil
}

// executeRaw is Execute without the status-to-error translation, used
// directly by handshake (which needs to inspect StatusUnauthorized itself).
func (s *Session) executeRaw(ctx context.Context, command string, version int, body any) (responseEnvelope, error) {
	if s.cfg.RequestTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
			defer cancel()
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return responseEnvelope{}, ErrTimeout
		}
	}

	env, err := newRequestEnvelope(s.authToken, command, version, body)
	if err != nil {
		return responseEnvelope{}, err
	}
	payload, err := env.marshal()
	if err != nil {
		return responseEnvelope{}, err
	}

	id := nextRequestID()
	waiter := newResponseWaiter(id)

	elem, registerErr := s.writeAndRegister(id, payload, waiter)
	if registerErr != nil {
		return responseEnvelope{}, registerErr
	}

	select {
	case res := <-waiter.ch:
		return res.resp, res.err
	case <-ctx.Done():
		s.abandon(id, elem)
		select {
		case res := <-waiter.ch:
			return res.resp, res.err
		default:
			return responseEnvelope{}, ErrTimeout
		}
	}
}

// writeAndRegister performs the write and the waiter registration as one
// atomic step under mu, so the order frames hit the wire always matches the
// order waiters are queued (required by ordered-queue correlation).
func (s *Session) writeAndRegister(id uint32, payload []byte, waiter *responseWaiter) (*list.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateReady && s.state != stateHandshaking {
		return nil, ErrConnectionClosed
	}
	if err := s.writer.WriteFrame(id, payload); err != nil {
		// A write failure means the socket is dead; readLoop will observe
		// the same thing shortly, but we fail this caller immediately
		// rather than make it wait for that.
		return nil, &ConnectionLostError{Cause: err}
	}

	switch s.cfg.CorrelationMode {
	case IDIndexed:
		s.indexed.put(waiter)
		return nil, nil
	default:
		elem := s.ordered.push(waiter)
		return elem, nil
	}
}

// abandon is called when a caller's context expires (or is canceled) while
// still waiting for a reply. In ordered mode a sentinel is left behind if
// the request had already reached the wire, since one reply for it may
// still be in flight and must not desynchronize the queue (resolved open
// question, DESIGN.md).
func (s *Session) abandon(id uint32, elem *list.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.cfg.CorrelationMode {
	case IDIndexed:
		s.indexed.remove(id)
	default:
		if elem != nil {
			s.ordered.abandon(elem, true)
		}
	}
}

// readLoop is the sole reader of the socket and the sole mutator of the
// waiter containers on the receive path, mirroring the teacher's
// rpc.Client.dispatch/read split.
func (s *Session) readLoop() {
	defer close(s.readDone)
	for {
		frame, err := s.reader.ReadFrame()
		if err != nil {
			if err == io.EOF {
				// A clean EOF carries no cause.
				err = nil
			}
			s.teardown(err)
			return
		}

		resp, err := unmarshalResponseEnvelope(frame.Body)
		if err != nil {
			s.log.WithError(err).Warn("rconv2: dropping unparseable frame")
			continue
		}

		s.mu.Lock()
		var found any
		var ok bool
		if s.cfg.CorrelationMode == IDIndexed {
			found, ok = s.indexed.pop(frame.ID)
		} else {
			found, ok = s.ordered.pop()
		}
		s.mu.Unlock()

		if !ok {
			s.log.WithField("frame_id", frame.ID).Warn("rconv2: reply with no matching waiter")
			continue
		}
		if w, isWaiter := found.(*responseWaiter); isWaiter {
			w.deliver(resp)
		} else {
			// sentinelWaiter: one reply swallowed on behalf of an abandoned
			// request.
			s.log.WithField("frame_id", frame.ID).Debug("rconv2: discarding reply for an abandoned request")
		}
	}
}

// teardown fails every outstanding waiter and runs the onLost hook exactly
// once. cause is nil for a clean EOF; a caller-initiated Close is told apart
// by s.closing, not by cause.
func (s *Session) teardown(cause error) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	wasClosing := s.closing
	s.state = stateClosed
	waiters := append(s.ordered.drain(), s.indexed.drain()...)
	s.mu.Unlock()

	var failErr error
	if !wasClosing {
		failErr = &ConnectionLostError{Cause: cause}
	} else {
		failErr = ErrConnectionClosed
	}
	for _, w := range waiters {
		w.fail(failErr)
	}

	if s.onLost != nil {
		if wasClosing {
			s.onLost(nil)
		} else {
			s.onLost(failErr)
		}
	}
}

// Close tears down the connection and fails any outstanding requests with
// ErrConnectionClosed rather than ErrConnectionLost.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	conn := s.conn
	s.mu.Unlock()

	err := conn.Close()
	<-s.readDone
	return err
}

// IsReady reports whether the session completed its handshake and has not
// since been torn down.
func (s *Session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateReady
}
