package fetch

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/rightslens/bhrrc-harvester/internal/harvest"
)

// Default retry policy: 3 attempts, 250ms initial backoff capped at 5s.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 250 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
)

// RetryPolicy decides whether a failed fetch is retried and how long to
// wait before the next attempt. A single policy instance is shared by
// every call site in the fetch layer.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewRetryPolicy builds a policy from explicit knobs.
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay < baseDelay {
		maxDelay = DefaultMaxDelay
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// DefaultRetryPolicy returns a policy with the documented defaults.
func DefaultRetryPolicy() *RetryPolicy {
	return NewRetryPolicy(DefaultMaxAttempts, DefaultBaseDelay, DefaultMaxDelay)
}

// MaxAttempts reports the attempt budget.
func (p *RetryPolicy) MaxAttempts() int { return p.maxAttempts }

// ShouldRetry decides whether the error is retryable after the given
// 1-based attempt count. Transient transport failures and 5xx/429
// statuses are retryable; other client errors are not.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var fe *harvest.FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case harvest.FetchHTTPStatus:
			return fe.Status >= 500 || fe.Status == http.StatusTooManyRequests
		case harvest.FetchTimeout, harvest.FetchConnectionFailed:
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// Backoff returns the jittered wait duration before the next attempt.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *RetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
