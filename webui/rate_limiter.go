package webui

import (
	"context"
	"sync"
	"time"
)

// attemptRecord tracks failed login attempts for one IP within a window.
type attemptRecord struct {
	count   int
	resetAt time.Time
}

func (a attemptRecord) expired() bool {
	return time.Now().After(a.resetAt)
}

// RateLimiter blocks IPs that fail authentication too often. Each failed
// attempt increments a per-IP counter inside a sliding window; reaching
// maxAttempts extends the window to the block duration. A successful
// login resets the counter.
type RateLimiter struct {
	mu          sync.RWMutex
	attempts    map[string]attemptRecord
	maxAttempts int
	window      time.Duration
	block       time.Duration
}

// NewRateLimiter creates a RateLimiter allowing maxAttempts failures per
// window before blocking the IP for the block duration.
func NewRateLimiter(maxAttempts int, window, block time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:    make(map[string]attemptRecord),
		maxAttempts: maxAttempts,
		window:      window,
		block:       block,
	}
}

// Allow reports whether an IP may attempt authentication. When blocked,
// the second return value is the time remaining until the block lifts.
func (r *RateLimiter) Allow(ip string) (bool, time.Duration) {
	r.mu.RLock()
	record, exists := r.attempts[ip]
	r.mu.RUnlock()

	if !exists || record.expired() {
		return true, 0
	}
	if record.count >= r.maxAttempts {
		return false, time.Until(record.resetAt)
	}
	return true, 0
}

// RecordAttempt registers a failed authentication attempt for an IP.
func (r *RateLimiter) RecordAttempt(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.attempts[ip]
	if !exists || record.expired() {
		r.attempts[ip] = attemptRecord{count: 1, resetAt: time.Now().Add(r.window)}
		return
	}

	record.count++
	if record.count == r.maxAttempts {
		record.resetAt = time.Now().Add(r.block)
	}
	r.attempts[ip] = record
}

// Reset clears the attempt record for an IP after a successful login.
func (r *RateLimiter) Reset(ip string) {
	r.mu.Lock()
	delete(r.attempts, ip)
	r.mu.Unlock()
}

// AttemptCount returns the current failed-attempt count for an IP.
func (r *RateLimiter) AttemptCount(ip string) int {
	r.mu.RLock()
	record, exists := r.attempts[ip]
	r.mu.RUnlock()

	if !exists || record.expired() {
		return 0
	}
	return record.count
}

// Cleanup removes expired records and returns how many were removed.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for ip, record := range r.attempts {
		if record.expired() {
			delete(r.attempts, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup every interval until ctx is cancelled.
func (r *RateLimiter) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}
