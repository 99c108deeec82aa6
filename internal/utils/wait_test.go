package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitFor(t *testing.T) {
	original := sleep
	defer func() { sleep = original }()

	var slept time.Duration
	sleep = func(d time.Duration) { slept = d }

	if err := WaitFor(context.Background(), 3*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slept != 3*time.Second {
		t.Fatalf("expected 3s sleep, got %v", slept)
	}

	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("expected zero duration to return immediately, got %v", err)
	}

	started := make(chan struct{})
	block := make(chan struct{})
	sleep = func(time.Duration) {
		close(started)
		<-block
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	<-started
	close(block)
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	base := 2 * time.Second
	for attempt, expect := range map[int]time.Duration{0: base, 1: base, 2: 4 * time.Second, 3: 8 * time.Second} {
		if got := Backoff(base, attempt); got != expect {
			t.Fatalf("attempt %d: expected %v, got %v", attempt, expect, got)
		}
	}
}
