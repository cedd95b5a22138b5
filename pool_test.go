package rconv2

import (
	"context"
	"sync"
	"testing"
	"time"
)

func poolTestConfig(f *fakeServer, size int) Config {
	return Config{
		Host:        "127.0.0.1",
		Port:        f.port(),
		Password:    f.password,
		DialTimeout: 2 * time.Second,
		PoolSize:    size,
		Backoff: BackoffConfig{
			Initial: 20 * time.Millisecond,
			Max:     100 * time.Millisecond,
			Factor:  2,
		},
	}
}

func acceptLoop(f *fakeServer) {
	go func() {
		for {
			conn, err := f.listener.Accept()
			if err != nil {
				return
			}
			go f.handle(conn)
		}
	}()
}

func TestPoolExecutesAcrossWorkers(t *testing.T) {
	f := newFakeServer(t, "pw")
	defer f.close()
	acceptLoop(f)

	pool := NewPool(poolTestConfig(f, 3))
	pool.Start()
	defer pool.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.WaitUntilConnected(ctx); err != nil {
		t.Fatalf("WaitUntilConnected: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := pool.Execute(ctx, "Echo", 2, "x")
			if err != nil {
				t.Errorf("Execute %d: %v", i, err)
				return
			}
			if got != "x" {
				t.Errorf("Execute %d: got %q", i, got)
			}
		}(i)
	}
	wg.Wait()
}

func TestPoolCommandErrorRetriesThenFails(t *testing.T) {
	f := newFakeServer(t, "pw")
	defer f.close()
	acceptLoop(f)

	pool := NewPool(poolTestConfig(f, 1))
	pool.Start()
	defer pool.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.WaitUntilConnected(ctx); err != nil {
		t.Fatalf("WaitUntilConnected: %v", err)
	}

	_, err := pool.Execute(ctx, "Fail", 2, "")
	if err == nil {
		t.Fatal("expected an error for a command the server always rejects")
	}
	if _, ok := err.(*CommandError); !ok {
		t.Fatalf("got %T, want *CommandError", err)
	}
}

func TestPoolStopDrainsQueue(t *testing.T) {
	f := newFakeServer(t, "pw")
	defer f.close()
	// Deliberately do not accept any connections, so the pool never
	// connects and every submitted command stays queued.

	pool := NewPool(poolTestConfig(f, 1))
	pool.Start()

	resultCh := make(chan error, 1)
	go func() {
		_, err := pool.Execute(context.Background(), "GetInfo", 2, "")
		resultCh <- err
	}()

	time.Sleep(50 * time.Millisecond) // let the command land in the queue
	pool.Stop()

	select {
	case err := <-resultCh:
		if err != ErrConnectionClosed {
			t.Fatalf("got %v, want ErrConnectionClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute never returned after Stop")
	}
}
