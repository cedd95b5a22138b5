package rconv2

import (
	"context"
	"testing"
)

func TestCommandQueueOrdersByPriorityThenAge(t *testing.T) {
	q := newCommandQueue(noopMetrics)

	low := newQueuedCommand(context.Background(), "Low", 2, nil)
	low.priority = 10

	high := newQueuedCommand(context.Background(), "High", 2, nil)
	high.priority = 1

	olderSamePriority := newQueuedCommand(context.Background(), "Older", 2, nil)
	olderSamePriority.priority = 5
	newerSamePriority := newQueuedCommand(context.Background(), "Newer", 2, nil)
	newerSamePriority.priority = 5
	newerSamePriority.submitTime = olderSamePriority.submitTime.Add(1)

	q.push(low)
	q.push(high)
	q.push(newerSamePriority)
	q.push(olderSamePriority)

	want := []string{"High", "Older", "Newer", "Low"}
	for _, name := range want {
		c, ok := q.pop()
		if !ok {
			t.Fatalf("queue emptied early, expected %q next", name)
		}
		if c.command != name {
			t.Fatalf("got %q, want %q", c.command, name)
		}
	}
	if _, ok := q.pop(); ok {
		t.Fatal("expected queue to be empty")
	}
}

func TestCommandQueueDrainAndFail(t *testing.T) {
	q := newCommandQueue(noopMetrics)
	a := newQueuedCommand(context.Background(), "A", 2, nil)
	b := newQueuedCommand(context.Background(), "B", 2, nil)
	q.push(a)
	q.push(b)

	q.drainAndFail()

	for _, c := range []*queuedCommand{a, b} {
		select {
		case res := <-c.result:
			if res.err != ErrConnectionClosed {
				t.Fatalf("got %v, want ErrConnectionClosed", res.err)
			}
		default:
			t.Fatal("expected drainAndFail to deliver a result")
		}
	}
	if _, ok := q.pop(); ok {
		t.Fatal("expected queue to be empty after drain")
	}
}

func TestCommandQueueRequeueBoostedClampsAtOne(t *testing.T) {
	q := newCommandQueue(noopMetrics)
	c := newQueuedCommand(context.Background(), "C", 2, nil)
	c.priority = 1

	q.requeueBoosted(c)
	got, ok := q.pop()
	if !ok {
		t.Fatal("expected command back in queue")
	}
	if got.priority != 1 {
		t.Fatalf("priority = %d, want clamped at 1", got.priority)
	}
}
