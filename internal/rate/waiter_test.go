package rate

import (
	"context"
	"testing"
	"time"
)

func TestWaitSpacesCalls(t *testing.T) {
	w := NewWaiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := w.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	// First call is immediate, the next two each wait one interval.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("three waits took %v, want >= 100ms", elapsed)
	}
}

func TestWaitFirstCallImmediate(t *testing.T) {
	w := NewWaiter(time.Second)

	start := time.Now()
	if err := w.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first wait took %v, want immediate", elapsed)
	}
}

func TestAbortedWaitKeepsSlot(t *testing.T) {
	w := NewWaiter(50 * time.Millisecond)
	start := time.Now()
	if err := w.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Wait(ctx); err != context.Canceled {
		t.Fatalf("aborted wait err = %v, want context.Canceled", err)
	}

	// The aborted caller's slot stays claimed: the next wait lands two
	// intervals after the first call, not one.
	if err := w.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("wait after abort took %v, want >= ~100ms", elapsed)
	}
}

func TestWaitAbortable(t *testing.T) {
	w := NewWaiter(time.Hour)
	if err := w.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Wait(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("wait did not abort")
	}
}
