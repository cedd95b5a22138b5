package rconv2

import "container/list"

// waiterResult is what a waiter resolves to: either a response envelope or
// a terminal error (ConnectionLost on disconnect; the zero value with a nil
// error is never sent).
type waiterResult struct {
	resp responseEnvelope
	err  error
}

// responseWaiter is a single-assignment slot a caller blocks on while its
// request is in flight. ch is buffered with capacity 1 so the dispatch
// loop never blocks delivering a result, matching rpc.requestOp's use of a
// buffered resp channel in the teacher.
type responseWaiter struct {
	id uint32
	ch chan waiterResult
}

func newResponseWaiter(id uint32) *responseWaiter {
	return &responseWaiter{id: id, ch: make(chan waiterResult, 1)}
}

func (w *responseWaiter) deliver(resp responseEnvelope) {
	select {
	case w.ch <- waiterResult{resp: resp}:
	default:
	}
}

func (w *responseWaiter) fail(err error) {
	select {
	case w.ch <- waiterResult{err: err}:
	default:
	}
}

// sentinelWaiter is pushed into the ordered queue in place of a waiter that
// was abandoned (timeout/cancellation) after its request had already been
// written to the socket. Per the open question resolved in DESIGN.md, it
// swallows exactly one reply rather than letting that reply desynchronize
// every waiter queued behind it.
type sentinelWaiter struct{}

// orderedWaiters is the FIFO used by ordered-queue correlation mode: the
// next inbound frame always resolves the head of the queue, regardless of
// the frame's id.
type orderedWaiters struct {
	l *list.List // elements are either *responseWaiter or sentinelWaiter
}

func newOrderedWaiters() *orderedWaiters {
	return &orderedWaiters{l: list.New()}
}

func (q *orderedWaiters) push(w *responseWaiter) *list.Element {
	return q.l.PushBack(w)
}

// pop removes and returns the head of the queue. ok is false if the queue
// is empty.
func (q *orderedWaiters) pop() (any, bool) {
	e := q.l.Front()
	if e == nil {
		return nil, false
	}
	q.l.Remove(e)
	return e.Value, true
}

// abandon handles elem if it is still queued (it may already have been
// popped by an inbound frame). When wasWritten is true the request already
// reached the wire and a reply for it may still arrive, so elem is replaced
// by a sentinel to keep correlation intact for everything queued behind it;
// otherwise elem is simply removed.
func (q *orderedWaiters) abandon(elem *list.Element, wasWritten bool) {
	// If the element is still present, it hasn't been matched to a reply
	// yet.
	for e := q.l.Front(); e != nil; e = e.Next() {
		if e == elem {
			if wasWritten {
				e.Value = sentinelWaiter{}
			} else {
				q.l.Remove(e)
			}
			return
		}
	}
	// Already popped by an inbound frame (a reply raced the abandonment);
	// nothing to do.
}

func (q *orderedWaiters) drain() []*responseWaiter {
	var out []*responseWaiter
	for e := q.l.Front(); e != nil; e = e.Next() {
		if w, ok := e.Value.(*responseWaiter); ok {
			out = append(out, w)
		}
	}
	q.l.Init()
	return out
}

// idWaiters is the map used by id-indexed correlation mode.
type idWaiters struct {
	m map[uint32]*responseWaiter
}

func newIDWaiters() *idWaiters {
	return &idWaiters{m: make(map[uint32]*responseWaiter)}
}

func (q *idWaiters) put(w *responseWaiter) {
	q.m[w.id] = w
}

func (q *idWaiters) pop(id uint32) (*responseWaiter, bool) {
	w, ok := q.m[id]
	if ok {
		delete(q.m, id)
	}
	return w, ok
}

func (q *idWaiters) remove(id uint32) {
	delete(q.m, id)
}

func (q *idWaiters) drain() []*responseWaiter {
	out := make([]*responseWaiter, 0, len(q.m))
	for _, w := range q.m {
		out = append(out, w)
	}
	q.m = make(map[uint32]*responseWaiter)
	return out
}
