package fetch

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rightslens/bhrrc-harvester/internal/metrics"
)

// Limiter enforces the politeness throttle: a minimum spacing between
// outbound requests, tracked per domain.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// LimiterConfig holds politeness throttle configuration.
type LimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// NewLimiter creates a per-domain limiter.
func NewLimiter(cfg LimiterConfig) *Limiter {
	r := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the URL's domain,
// respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}

	l.mu.Lock()
	limiter, ok := l.limiters[domain]
	if !ok {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[domain] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("politeness wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveThrottleDelay(waited)
	}
	return nil
}
