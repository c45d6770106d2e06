package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/KanavDutta/errorfence/core"
	"github.com/KanavDutta/errorfence/store"
)

func TestGate_Inspect(t *testing.T) {
	s := store.NewMemoryStore()
	g, _ := newTestGate(t, s)
	ctx := context.Background()

	if _, err := g.Inspect(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Inspect(unknown) error = %v, want %v", err, store.ErrNotFound)
	}

	stored := core.Bucket{Identity: "user123", TokensCount: 2, LastRequest: t0.Add(-90 * time.Minute).UnixMilli()}
	mustUpsert(t, s, stored)

	got, err := g.Inspect(ctx, "user123")
	if err != nil {
		t.Fatalf("Inspect() failed: %v", err)
	}
	want := Snapshot{
		Stored:     stored,
		Effective:  core.Bucket{Identity: "user123", TokensCount: 3, LastRequest: t0.UnixMilli()},
		Capacity:   10,
		NextRefill: t0.Add(time.Hour),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Inspect() mismatch (-want +got):\n%s", diff)
	}

	// Inspection never writes
	if diff := cmp.Diff(stored, mustLoad(t, s, "user123")); diff != "" {
		t.Errorf("stored bucket changed (-want +got):\n%s", diff)
	}
}

func TestGate_Reset(t *testing.T) {
	s := store.NewMemoryStore()
	g, clk := newTestGate(t, s)
	ctx := context.Background()

	for _, tokens := range []int64{-1, 11} {
		if _, err := g.Reset(ctx, "user123", tokens); !errors.Is(err, ErrTokensOutOfRange) {
			t.Errorf("Reset(%d) error = %v, want %v", tokens, err, ErrTokensOutOfRange)
		}
	}

	clk.Step(time.Minute)
	b, err := g.Reset(ctx, "user123", 0)
	if err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}
	want := core.Bucket{Identity: "user123", TokensCount: 0, LastRequest: clk.Now().UnixMilli()}
	if diff := cmp.Diff(want, b); diff != "" {
		t.Errorf("Reset() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, mustLoad(t, s, "user123")); diff != "" {
		t.Errorf("stored bucket mismatch (-want +got):\n%s", diff)
	}

	if d := g.Admit(ctx, "Bearer user123"); d.State != Throttled {
		t.Errorf("State after reset to 0 = %v, want %v", d.State, Throttled)
	}
}

func TestGate_RetryAfter(t *testing.T) {
	s := store.NewMemoryStore()
	g, _ := newTestGate(t, s)
	mustUpsert(t, s, core.Bucket{Identity: "user123", TokensCount: 0, LastRequest: t0.Add(-20 * time.Minute).UnixMilli()})

	d := g.Admit(context.Background(), "Bearer user123")
	if got := g.RetryAfter(d); got != 40*time.Minute {
		t.Errorf("RetryAfter() = %v, want 40m", got)
	}

	if got := g.RetryAfter(Decision{State: Admitted}); got != 0 {
		t.Errorf("RetryAfter(admitted) = %v, want 0", got)
	}
}
