package queue

import (
	"testing"
	"time"
)

func TestBackoffBaseMonotonicAndCapped(t *testing.T) {
	opts := Options{}
	opts.applyDefaults()

	prev := time.Duration(0)
	for retry := 0; retry <= 12; retry++ {
		d := backoffBase(opts, retry)
		if d <= 0 {
			t.Fatalf("retry %d: delay %v not strictly positive", retry, d)
		}
		if d < prev {
			t.Fatalf("retry %d: delay %v decreased from %v", retry, d, prev)
		}
		if d > opts.MaxDelay {
			t.Fatalf("retry %d: delay %v above cap %v", retry, d, opts.MaxDelay)
		}
		prev = d
	}

	if got := backoffBase(opts, 0); got != time.Second {
		t.Fatalf("retry 0: got %v; want 1s", got)
	}
	if got := backoffBase(opts, 1); got != 2*time.Second {
		t.Fatalf("retry 1: got %v; want 2s", got)
	}
	if got := backoffBase(opts, 4); got != 16*time.Second {
		t.Fatalf("retry 4: got %v; want 16s", got)
	}
	// 2^5 = 32s clamps to the 30s cap
	if got := backoffBase(opts, 5); got != 30*time.Second {
		t.Fatalf("retry 5: got %v; want 30s cap", got)
	}
	if got := backoffBase(opts, 50); got != 30*time.Second {
		t.Fatalf("retry 50: got %v; want 30s cap", got)
	}
}

func TestJitterBounds(t *testing.T) {
	j := newJitterSource()
	max := time.Second
	for i := 0; i < 1000; i++ {
		d := j.jitter(max)
		if d < 0 || d >= max {
			t.Fatalf("jitter %v outside [0, %v)", d, max)
		}
	}
	if d := j.jitter(0); d != 0 {
		t.Fatalf("zero max should yield zero jitter; got %v", d)
	}
}
