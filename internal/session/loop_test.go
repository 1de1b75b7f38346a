package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startLoop(t *testing.T, cfg LoopConfig) (*Loop, context.CancelFunc) {
	t.Helper()
	loop := NewLoop(cfg, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})
	return loop, cancel
}

func TestLoopRunsWorkInOrder(t *testing.T) {
	loop, _ := startLoop(t, LoopConfig{Capacity: 64})

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 20; i++ {
		i := i
		if !loop.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}) {
			t.Fatalf("post %d rejected", i)
		}
	}
	if err := loop.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("do: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 20 {
		t.Fatalf("expected 20 items, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestLoopSerialisesConcurrentProducers(t *testing.T) {
	loop, _ := startLoop(t, LoopConfig{Capacity: 1024})

	counter := 0
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if err := loop.Do(context.Background(), func() { counter++ }); err != nil {
					t.Errorf("do: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	var got int
	if err := loop.Do(context.Background(), func() { got = counter }); err != nil {
		t.Fatalf("do: %v", err)
	}
	if got != 400 {
		t.Fatalf("expected 400 increments, got %d", got)
	}
}

func TestLoopWorkCanPostFollowUps(t *testing.T) {
	loop, _ := startLoop(t, LoopConfig{})

	done := make(chan struct{})
	loop.Post(func() {
		loop.Post(func() { close(done) })
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("follow-up work never ran")
	}
}

func TestLoopRejectsAfterStop(t *testing.T) {
	loop := NewLoop(LoopConfig{Capacity: 4}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(finished)
	}()
	cancel()
	<-finished

	if !loop.Stopped() {
		t.Fatalf("expected loop to report stopped")
	}
	if loop.Post(func() {}) {
		t.Fatalf("expected post after stop to be rejected")
	}
	if err := loop.Do(context.Background(), func() {}); !errors.Is(err, ErrLoopStopped) {
		t.Fatalf("expected ErrLoopStopped, got %v", err)
	}
}

func TestLoopDoReportsFullMailbox(t *testing.T) {
	loop := NewLoop(LoopConfig{Capacity: 1}, nil, nil)
	if !loop.Post(func() {}) {
		t.Fatalf("expected first post to be accepted")
	}
	if err := loop.Do(context.Background(), func() {}); !errors.Is(err, ErrMailboxFull) {
		t.Fatalf("expected ErrMailboxFull, got %v", err)
	}
}

func TestLoopSendWaitsForRoom(t *testing.T) {
	loop := NewLoop(LoopConfig{Capacity: 2}, nil, nil)
	var (
		mu    sync.Mutex
		order []int
	)
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for i := 0; i < 5; i++ {
			i := i
			if err := loop.Send(context.Background(), func() {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			}); err != nil {
				t.Errorf("send %d: %v", i, err)
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})

	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatalf("send did not resume after the loop drained")
	}
	if err := loop.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("do: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 5 {
		t.Fatalf("expected every send to run, got %v", order)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestLoopSendAfterStop(t *testing.T) {
	loop := NewLoop(LoopConfig{Capacity: 1}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loop.Run(ctx)

	if err := loop.Send(context.Background(), func() {}); !errors.Is(err, ErrLoopStopped) {
		t.Fatalf("expected ErrLoopStopped, got %v", err)
	}
}

func TestLoopSendHonoursContext(t *testing.T) {
	loop := NewLoop(LoopConfig{Capacity: 1}, nil, nil)
	if err := loop.Send(context.Background(), func() {}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := loop.Send(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
