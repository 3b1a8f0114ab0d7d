package timer

import (
	"testing"
	"time"
)

func TestFromTime_ZeroMeansNoDeadline(t *testing.T) {
	d, err := FromTime(time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Expired() {
		t.Fatal("zero deadline must never be expired")
	}
}

func TestFromTime_RejectsPastDeadline(t *testing.T) {
	_, err := FromTime(time.Now().Add(-time.Minute))
	if err == nil {
		t.Fatal("expected error for a deadline already in the past")
	}
}

func TestAfter_ExpiresOnlyOnceElapsed(t *testing.T) {
	d := After(10 * time.Millisecond)
	if d.Expired() {
		t.Fatal("deadline should not be expired immediately")
	}
	time.Sleep(20 * time.Millisecond)
	if !d.Expired() {
		t.Fatal("deadline should be expired after it elapses")
	}
}
