package terminal

import (
	"sync"
	"time"
)

// Limits applied to streaming bridge traffic.
const (
	// MaxInputMessageSize is the maximum size in bytes of a single input
	// frame. Larger frames are dropped.
	MaxInputMessageSize = 64 * 1024

	// MaxTermCols and MaxTermRows cap requested terminal dimensions.
	MaxTermCols = 500
	MaxTermRows = 200

	// DefaultCols and DefaultRows are used when a request gives no size.
	DefaultCols = 80
	DefaultRows = 24

	// MessageRateLimit is the sustained number of frames per second a
	// client may send; MessageRateBurst is the bucket size.
	MessageRateLimit = 100
	MessageRateBurst = 200
)

// ClampSize bounds a requested terminal size to [1, Max]. Zero values
// fall back to the defaults.
func ClampSize(cols, rows int) (uint16, uint16) {
	if cols <= 0 {
		cols = DefaultCols
	}
	if rows <= 0 {
		rows = DefaultRows
	}
	if cols > MaxTermCols {
		cols = MaxTermCols
	}
	if rows > MaxTermRows {
		rows = MaxTermRows
	}
	return uint16(cols), uint16(rows)
}

// RateLimiter is a token bucket used to throttle client frames.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewRateLimiter creates a limiter refilling at rate tokens/sec with the
// given burst size.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow consumes a token and reports whether the frame may proceed.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now

	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
