package cache

import (
	"context"
	"testing"
)

func TestMemoryExpiryStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	state := NewMemoryExpiryState()

	if _, ok, _ := state.LastNotified(ctx, "owner"); ok {
		t.Fatalf("expected no state for a fresh owner")
	}

	ids := []string{"p1", "p2"}
	if err := state.SetLastNotified(ctx, "owner", ids); err != nil {
		t.Fatalf("set: %v", err)
	}
	ids[0] = "mutated"

	got, ok, err := state.LastNotified(ctx, "owner")
	if err != nil || !ok {
		t.Fatalf("expected stored state, ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[0] != "p1" {
		t.Fatalf("expected stored copy, got %v", got)
	}

	if err := state.Reset(ctx, "owner"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok, _ := state.LastNotified(ctx, "owner"); ok {
		t.Fatalf("expected state cleared")
	}
}
