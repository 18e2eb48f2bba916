package tokens

import (
	"context"
	"testing"
	"time"
)

func TestLocalVersionsIncludesAllAndZeroForMissing(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	keys := []string{"a", "b", "c"}
	// fire b twice -> version 2
	if _, err := s.Fire(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Fire(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Versions(ctx, keys)
	if err != nil {
		t.Fatal(err)
	}
	if got["a"] != 0 || got["b"] != 2 || got["c"] != 0 {
		t.Fatalf("got=%v want a=0,b=2,c=0", got)
	}
	if v, _ := s.Version(ctx, "b"); v != 2 {
		t.Fatalf("Version(b)=%d want 2", v)
	}
}

func TestLocalVersionsDoesNotMutateInput(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	in := []string{"x", "y"}
	cp := append([]string(nil), in...)
	if _, err := s.Versions(ctx, in); err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != cp[i] {
			t.Fatalf("input mutated at %d: %q -> %q", i, cp[i], in[i])
		}
	}
}

func TestLocalCleanupPrunesOld(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, err := s.Fire(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	s.Cleanup(10 * time.Millisecond)

	if v, _ := s.Version(ctx, "old"); v != 0 {
		t.Fatalf("expected pruned -> 0, got %d", v)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty tracker, got %d", s.Len())
	}
}

func TestLocalCloseIdempotent(t *testing.T) {
	s := NewLocal(time.Millisecond, time.Hour)
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}
