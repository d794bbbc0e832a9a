package dispatch

import "testing"

func TestInflightLimiter(t *testing.T) {
	l := NewInflightLimiter(2)

	if !l.Acquire() || !l.Acquire() {
		t.Fatal("expected two acquires to succeed")
	}
	if l.Acquire() {
		t.Fatal("expected third acquire to fail")
	}
	if got := l.Inflight(); got != 2 {
		t.Fatalf("inflight = %d, want 2", got)
	}

	l.Release()
	if !l.Acquire() {
		t.Fatal("expected acquire after release to succeed")
	}
}

func TestInflightLimiter_ReleaseNeverGoesNegative(t *testing.T) {
	l := NewInflightLimiter(1)
	l.Release()
	l.Release()
	if got := l.Inflight(); got != 0 {
		t.Fatalf("inflight = %d, want 0", got)
	}
	if !l.Acquire() {
		t.Fatal("expected acquire to succeed")
	}
	if l.Acquire() {
		t.Fatal("limit must still hold after spurious releases")
	}
}
