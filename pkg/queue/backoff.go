package queue

import (
	"math/rand"
	"sync"
	"time"
)

// Options bound the retry policy. Zero values select the canonical
// defaults (5 attempts, 1s base doubling to a 30s cap, 1s jitter).
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	}
}

// backoffBase computes the capped exponential delay for a retry count:
// min(base * 2^retryCount, max). The cap keeps long-disconnected clients
// retrying at a bounded cadence instead of growing without limit.
func backoffBase(opts Options, retryCount int) time.Duration {
	d := opts.BaseDelay
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= opts.MaxDelay {
			return opts.MaxDelay
		}
	}
	if d > opts.MaxDelay {
		return opts.MaxDelay
	}
	return d
}

// jitterSource is a locked rand shared by queue instances; uniform jitter
// de-synchronizes retry storms across many queued operations.
type jitterSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newJitterSource() *jitterSource {
	return &jitterSource{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rng.Int63n(int64(max)))
}
