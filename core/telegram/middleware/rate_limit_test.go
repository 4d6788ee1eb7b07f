package middleware

import (
	"testing"
	"time"
)

func TestUserLimitersBurstThenRefill(t *testing.T) {
	lim := newUserLimiters(time.Second, 2)
	now := time.Unix(1_700_000_000, 0)

	if !lim.allow(1, now) || !lim.allow(1, now) {
		t.Fatalf("burst of 2 should pass")
	}
	if lim.allow(1, now) {
		t.Fatalf("third call within the interval should be limited")
	}
	if !lim.allow(2, now) {
		t.Fatalf("other users have their own bucket")
	}
	if !lim.allow(1, now.Add(time.Second)) {
		t.Fatalf("one token refills after the interval")
	}
}

func TestUserLimitersDropIdleBuckets(t *testing.T) {
	lim := newUserLimiters(time.Second, 1)
	now := time.Unix(1_700_000_000, 0)
	lim.allow(1, now)
	lim.allow(2, now.Add(10*time.Second))
	if _, ok := lim.buckets[1]; ok {
		t.Fatalf("idle bucket was kept")
	}
	if len(lim.buckets) != 1 {
		t.Fatalf("buckets = %d", len(lim.buckets))
	}
}
