package util

import "testing"

func TestTokenKeyNoCollision(t *testing.T) {
	a := TokenKey("a:b", "c")
	b := TokenKey("a", "b:c")
	if a == b {
		t.Fatalf("token keys collide: %q", a)
	}
	if got := TokenKey("news", "42"); got != "dep:4:news:42" {
		t.Fatalf("unexpected token key %q", got)
	}
}

func TestRedactStable(t *testing.T) {
	if Redact("k") != Redact("k") {
		t.Fatalf("redact must be deterministic")
	}
	if len(Redact("k")) != 16 {
		t.Fatalf("redact length: got %d", len(Redact("k")))
	}
	if Redact("k1") == Redact("k2") {
		t.Fatalf("distinct keys redacted to the same value")
	}
}
