package stream

import (
	"sync"
	"time"
)

// Breaker opens after maxFailures consecutive failed writes and stays open
// for timeout; the first attempt after that is a trial
type Breaker struct {
	mu          sync.RWMutex
	failures    int
	maxFailures int
	resetTime   time.Time
	timeout     time.Duration
}

// NewBreaker creates a new circuit breaker
func NewBreaker(maxFailures int, timeout time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		maxFailures: maxFailures,
		timeout:     timeout,
	}
}

// Open returns true if the circuit breaker is open
func (b *Breaker) Open() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.failures < b.maxFailures {
		return false
	}
	return time.Now().Before(b.resetTime)
}

// Remaining is how long the breaker stays open, zero when closed
func (b *Breaker) Remaining() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.failures < b.maxFailures {
		return 0
	}
	return max(time.Until(b.resetTime), 0)
}

// Success resets the failure count
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.resetTime = time.Time{}
}

// Fail increments the failure count and sets reset time
func (b *Breaker) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.maxFailures {
		b.resetTime = time.Now().Add(b.timeout)
	}
}
