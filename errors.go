package rconv2

import (
	"errors"
	"fmt"
)

// Error taxonomy for the core client. These are kinds, not a type hierarchy:
// callers use errors.Is/errors.As against the sentinels and *CommandError.

var (
	// ErrConnectionClosed is returned when no session is available to
	// carry the request: by a stopped Supervisor's WaitUntilConnected and
	// Execute, by a Session that has been closed or lost, and to every
	// command still queued when a Pool is stopped.
	ErrConnectionClosed = errors.New("rconv2: connection is closed")

	// ErrConnectionLost is returned when a request was in flight and the
	// underlying socket was closed before a response arrived.
	ErrConnectionLost = errors.New("rconv2: connection lost")

	// ErrNoResult mirrors the teacher's rpc.ErrNoResult: a response
	// arrived with no content body where one was expected.
	ErrNoResult = errors.New("rconv2: no result in response")

	// ErrTimeout is returned when Execute's context deadline elapses
	// before a response arrives. The connection itself is not torn down.
	ErrTimeout = errors.New("rconv2: request timed out")
)

// ConnectionLostError wraps ErrConnectionLost with the transport cause, if
// any was reported by the socket (a clean EOF carries no cause).
type ConnectionLostError struct {
	Cause error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause == nil {
		return "rconv2: connection lost"
	}
	return fmt.Sprintf("rconv2: connection lost: %v", e.Cause)
}

func (e *ConnectionLostError) Unwrap() error {
	return ErrConnectionLost
}

// CommandError reports a non-OK status envelope returned by the server.
// It is a command failure, not a transport failure: the session and any
// supervisor above it stay Ready.
type CommandError struct {
	StatusCode    int
	StatusMessage string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("rconv2: command failed: status %d: %s", e.StatusCode, e.StatusMessage)
}

// HandshakeError reports a failure during the ServerConnect/Login exchange:
// authentication refused, or a malformed handshake reply.
type HandshakeError struct {
	Reason string
	Cause  error
}

func (e *HandshakeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rconv2: handshake failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("rconv2: handshake failed: %s", e.Reason)
}

func (e *HandshakeError) Unwrap() error {
	return e.Cause
}

// ConnectionError reports a failure to open the TCP connection (handshake
// failures are *HandshakeError). OpenScoped returns it directly; a
// Supervisor logs it and retries with backoff, and its readiness slot has
// no failed state that would carry it to callers.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rconv2: connection error: %v", e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}
