package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func TestChunkIDs(t *testing.T) {
	var ids []string
	for i := 0; i < 25; i++ {
		ids = append(ids, fmt.Sprintf("id-%02d", i))
	}

	groups := chunkIDs(ids, 10)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	for i, want := range []int{10, 10, 5} {
		if len(groups[i]) != want {
			t.Errorf("group %d has %d ids, want %d", i, len(groups[i]), want)
		}
	}

	var flat []string
	for _, g := range groups {
		flat = append(flat, g...)
	}
	if !reflect.DeepEqual(flat, ids) {
		t.Errorf("chunking reordered or dropped ids")
	}

	if got := chunkIDs(nil, 10); len(got) != 0 {
		t.Errorf("chunking nil = %v, want no groups", got)
	}
	if got := chunkIDs(ids, 0); len(got) != 1 || len(got[0]) != 25 {
		t.Errorf("non-positive size must yield a single group, got %v", got)
	}
}

func TestSelectBatchIsPure(t *testing.T) {
	e, st := newTestEngine(t, &fakeDriver{}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		createIdentity(t, st, fmt.Sprintf("due-%d", i), nil, true)
	}

	first, err := e.SelectBatch(ctx, 2, 30*time.Minute)
	if err != nil {
		t.Fatalf("select batch: %v", err)
	}
	if len(first.IdentityIDs) != 2 {
		t.Fatalf("selected %d identities, want 2", len(first.IdentityIDs))
	}
	if first.BatchSize != 2 {
		t.Errorf("BatchSize = %d, want 2", first.BatchSize)
	}
	if got := first.NextScheduledAt.Sub(first.ScheduledAt); got != 30*time.Minute {
		t.Errorf("next batch offset = %v, want 30m", got)
	}

	// Selection must not mutate anything: the same round again.
	second, err := e.SelectBatch(ctx, 2, 30*time.Minute)
	if err != nil {
		t.Fatalf("second select: %v", err)
	}
	if !reflect.DeepEqual(first.IdentityIDs, second.IdentityIDs) {
		t.Errorf("repeated selection changed: %v then %v", first.IdentityIDs, second.IdentityIDs)
	}
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	e, _ := newTestEngine(t, &fakeDriver{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- e.RunForever(ctx, 5, time.Hour) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunForever returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunForever did not stop after cancellation")
	}
}

func TestRunForeverCancelDuringInterval(t *testing.T) {
	e, _ := newTestEngine(t, &fakeDriver{}, nil)

	// Empty fleet: the batch completes immediately and the loop parks in
	// its interval sleep, which must still honor cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.RunForever(ctx, 5, time.Hour) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunForever returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunForever did not wake from its interval sleep")
	}
}
