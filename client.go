package rconv2

import "context"

// Client is the common surface shared by Supervisor (a single supervised
// connection) and Pool (several supervised connections behind a queue),
// adapted from the original's RconClient/RconExecutor split (lib/abc.py).
type Client interface {
	// Execute sends command/version/body and returns the response content
	// body, or a *CommandError for a non-OK status.
	Execute(ctx context.Context, command string, version int, body any) (string, error)

	// Start begins connecting in the background. It returns immediately;
	// use WaitUntilConnected to block until ready.
	Start()

	// Stop halts reconnection attempts and tears down any live
	// connection(s). Commands still queued are failed with
	// ErrConnectionClosed. Stop is idempotent.
	Stop()

	// IsStarted reports whether Start has been called and Stop has not.
	IsStarted() bool

	// IsConnected reports whether at least one underlying session is
	// currently Ready.
	IsConnected() bool

	// WaitUntilConnected blocks until IsConnected would report true, ctx is
	// done, or the client is stopped (ErrConnectionClosed). Failed
	// connection attempts are retried with backoff and do not end the wait;
	// there is no permanently-failed state.
	WaitUntilConnected(ctx context.Context) error
}

var (
	_ Client = (*Supervisor)(nil)
	_ Client = (*Pool)(nil)
)
