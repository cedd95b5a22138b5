package rconv2

import (
	"context"
	"testing"
	"time"
)

func supervisorTestConfig(f *fakeServer) Config {
	return Config{
		Host:        "127.0.0.1",
		Port:        f.port(),
		Password:    f.password,
		DialTimeout: 2 * time.Second,
		Backoff: BackoffConfig{
			Initial: 50 * time.Millisecond,
			Max:     200 * time.Millisecond,
			Factor:  2,
		},
	}
}

func TestSupervisorConnectsAndExecutes(t *testing.T) {
	f := newFakeServer(t, "pw")
	defer f.close()
	go func() {
		for {
			conn, err := f.listener.Accept()
			if err != nil {
				return
			}
			go f.handle(conn)
		}
	}()

	sv := NewSupervisor(supervisorTestConfig(f))
	sv.Start()
	defer sv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sv.WaitUntilConnected(ctx); err != nil {
		t.Fatalf("WaitUntilConnected: %v", err)
	}
	if !sv.IsConnected() {
		t.Fatal("expected IsConnected after WaitUntilConnected succeeds")
	}

	got, err := sv.Execute(ctx, "GetInfo", 2, "ping")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "ping" {
		t.Fatalf("got %q", got)
	}
}

func TestSupervisorReconnectsAfterDisconnect(t *testing.T) {
	f := newFakeServer(t, "pw")
	defer f.close()

	connCh := make(chan interface{ Close() error }, 8)
	go func() {
		for {
			conn, err := f.listener.Accept()
			if err != nil {
				return
			}
			connCh <- conn
			go f.handle(conn)
		}
	}()

	sv := NewSupervisor(supervisorTestConfig(f))
	sv.Start()
	defer sv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sv.WaitUntilConnected(ctx); err != nil {
		t.Fatalf("WaitUntilConnected (first): %v", err)
	}

	first := <-connCh
	first.Close()

	// The supervisor should notice the disconnect, back off briefly, and
	// reconnect against a fresh accepted connection.
	time.Sleep(100 * time.Millisecond)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := sv.WaitUntilConnected(ctx2); err != nil {
		t.Fatalf("WaitUntilConnected (after reconnect): %v", err)
	}

	got, err := sv.Execute(ctx2, "GetInfo", 2, "still-alive")
	if err != nil {
		t.Fatalf("Execute after reconnect: %v", err)
	}
	if got != "still-alive" {
		t.Fatalf("got %q", got)
	}
}

func TestSupervisorStopFailsWaiters(t *testing.T) {
	sv := NewSupervisor(Config{Host: "127.0.0.1", Port: 1, DialTimeout: 50 * time.Millisecond})
	sv.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- sv.WaitUntilConnected(context.Background()) }()

	sv.Stop()

	select {
	case err := <-errCh:
		if err != ErrConnectionClosed {
			t.Fatalf("got %v, want ErrConnectionClosed", err)
		}
	case <-ctx.Done():
		t.Fatal("WaitUntilConnected did not return after Stop")
	}
}
