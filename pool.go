package rconv2

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Pool wraps N supervised sessions behind a shared priority queue, the L3b
// front end (§4.4). It is grounded on the original's RconPool
// (lib/pooled_rcon.py), translated from asyncio tasks to an errgroup of
// worker goroutines.
type Pool struct {
	cfg   Config
	log   *logrus.Entry
	queue *commandQueue

	mu          sync.Mutex
	supervisors []*Supervisor
	started     bool
	stopCh      chan struct{}
	group       *errgroup.Group
}

// NewPool constructs a Pool of cfg.PoolSize supervised connections. Start
// must be called before Execute will succeed. PoolSize <= 0 defaults to 1.
func NewPool(cfg Config) *Pool {
	size := cfg.PoolSize
	if size <= 0 {
		size = 1
	}
	cfg.PoolSize = size
	return &Pool{
		cfg:   cfg,
		log:   cfg.logger().WithField("component", "pool"),
		queue: newCommandQueue(cfg.metrics()),
	}
}

// Start launches all workers (§4.4). Calling Start while the pool is
// already started is a no-op and does not replace the running set; after
// Stop, Start launches a fresh set.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	group, ctx := errgroup.WithContext(context.Background())
	p.group = group

	supervisors := make([]*Supervisor, p.cfg.PoolSize)
	for i := range supervisors {
		sv := NewSupervisor(p.cfg)
		supervisors[i] = sv
		sv.Start()
		group.Go(func() error {
			p.runWorker(ctx, sv)
			return nil
		})
	}
	p.supervisors = supervisors
	p.mu.Unlock()
}

func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

func (p *Pool) IsConnected() bool {
	p.mu.Lock()
	supervisors := append([]*Supervisor(nil), p.supervisors...)
	p.mu.Unlock()
	for _, sv := range supervisors {
		if sv.IsConnected() {
			return true
		}
	}
	return false
}

// WaitUntilConnected completes as soon as any worker becomes ready, or
// returns an aggregate error once every worker's wait has ended with an
// error (ctx done, or the workers stopped) (§4.4). Failed connection
// attempts are retried by each worker and do not end the wait.
func (p *Pool) WaitUntilConnected(ctx context.Context) error {
	p.mu.Lock()
	supervisors := append([]*Supervisor(nil), p.supervisors...)
	p.mu.Unlock()
	if len(supervisors) == 0 {
		return ErrConnectionClosed
	}

	type outcome struct {
		err error
	}
	results := make(chan outcome, len(supervisors))
	for _, sv := range supervisors {
		go func(sv *Supervisor) {
			results <- outcome{err: sv.WaitUntilConnected(ctx)}
		}(sv)
	}

	var agg *multierror.Error
	for i := 0; i < len(supervisors); i++ {
		r := <-results
		if r.err == nil {
			return nil
		}
		agg = multierror.Append(agg, r.err)
	}
	return agg.ErrorOrNil()
}

// Execute constructs a queuedCommand with 2 attempts and default priority,
// enqueues it, and awaits its completion slot (§4.4).
func (p *Pool) Execute(ctx context.Context, command string, version int, body any) (string, error) {
	cmd := newQueuedCommand(ctx, command, version, body)
	p.queue.push(cmd)

	select {
	case res := <-cmd.result:
		return res.body, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// runWorker implements the per-supervisor loop from §4.4.
func (p *Pool) runWorker(ctx context.Context, sv *Supervisor) {
	log := p.log.WithField("connection_id", sv.id)
	for {
		if p.stopped() {
			return
		}

		if err := sv.WaitUntilConnected(ctx); err != nil {
			if p.stopped() {
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		cmd, ok := p.queue.pop()
		if !ok {
			p.queue.waitForWork(ctx, p.stopSignal())
			continue
		}

		if !sv.IsConnected() {
			p.queue.requeueBoosted(cmd)
			continue
		}

		body, err := sv.Execute(cmd.ctx, cmd.command, cmd.version, cmd.body)
		switch e := err.(type) {
		case nil:
			cmd.deliver(body, nil)
		case *CommandError:
			cmd.attempts--
			if cmd.attempts > 0 {
				p.queue.requeueBoosted(cmd)
			} else {
				cmd.deliver("", e)
			}
		default:
			if isTransportLoss(err) {
				p.queue.requeueBoosted(cmd)
				continue
			}
			log.WithError(err).Warn("rconv2: pool worker hit an unexpected error, backing off")
			cmd.deliver("", err)
			time.Sleep(1 * time.Second)
		}
	}
}

func isTransportLoss(err error) bool {
	switch err.(type) {
	case *ConnectionLostError:
		return true
	}
	return err == ErrConnectionClosed
}

func (p *Pool) stopped() bool {
	p.mu.Lock()
	ch := p.stopCh
	p.mu.Unlock()
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (p *Pool) stopSignal() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCh
}

// Stop cancels all workers, fails every command still sitting in the
// priority queue with ErrConnectionClosed, and clears the worker set
// (§4.4, drain-and-fail decision in §9).
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	supervisors := p.supervisors
	group := p.group
	p.started = false
	p.mu.Unlock()

	for _, sv := range supervisors {
		sv.Stop()
	}
	if group != nil {
		_ = group.Wait()
	}
	p.queue.drainAndFail()

	p.mu.Lock()
	p.supervisors = nil
	p.mu.Unlock()
}
