// Package rate provides the shared token bucket bounding outbound
// price-quote calls.
package rate

import (
	"sync"
	"time"
)

// TokenBucket is a non-blocking token bucket sized in tokens per minute.
// One instance is shared by every caller that talks to the quote provider;
// all state is guarded by a single mutex so concurrent Take calls serialize.
type TokenBucket struct {
	capacity int
	tokens   int
	last     time.Time
	now      func() time.Time
	mu       sync.Mutex
}

// NewTokenBucket creates a bucket that refills capacity tokens per minute.
// The bucket starts full.
func NewTokenBucket(ratePerMin int) *TokenBucket {
	return NewTokenBucketWithClock(ratePerMin, time.Now)
}

// NewTokenBucketWithClock creates a bucket with an injected clock.
func NewTokenBucketWithClock(ratePerMin int, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity: ratePerMin,
		tokens:   ratePerMin,
		last:     now(),
		now:      now,
	}
}

// Take attempts to withdraw n tokens. It refills lazily from elapsed
// wall-clock time, one capacity per minute, and returns false without
// blocking when not enough tokens are available. Callers are responsible
// for pacing; Take never sleeps or queues.
func (b *TokenBucket) Take(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	elapsed := now.Sub(b.last).Seconds()
	refill := int(elapsed * float64(b.capacity) / 60.0)
	if refill > 0 {
		b.tokens += refill
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}

	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// Capacity returns the bucket capacity per minute.
func (b *TokenBucket) Capacity() int {
	return b.capacity
}

// Tokens returns the current token count after a lazy refill.
func (b *TokenBucket) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	refill := int(now.Sub(b.last).Seconds() * float64(b.capacity) / 60.0)
	tokens := b.tokens + refill
	if tokens > b.capacity {
		tokens = b.capacity
	}
	return tokens
}
