// Package fetch implements the rate-limited, retrying HTTP fetch layer
// on top of the Colly collector.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/rightslens/bhrrc-harvester/internal/harvest"
	"github.com/rightslens/bhrrc-harvester/internal/metrics"
)

// ErrRobotsDisallowed is returned when robots.txt forbids the URL.
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// Renderer re-fetches a page with a JavaScript-capable browser.
type Renderer interface {
	Render(ctx context.Context, rawURL string) ([]byte, error)
}

// Detector decides whether a fetched HTML body needs JS rendering.
type Detector interface {
	NeedsJS(body []byte) bool
}

// Config controls fetcher behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Cooldown  time.Duration
}

// Fetcher issues polite, retrying HTTP requests. Classified failures
// surface as *harvest.FetchError after the retry budget is exhausted.
type Fetcher struct {
	cfg      Config
	policy   *RetryPolicy
	limiter  *Limiter
	robots   *RobotsGate
	cache    *PageCache
	renderer Renderer
	detector Detector
	base     *colly.Collector
	logger   *zap.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithCache attaches a page cache.
func WithCache(c *PageCache) Option {
	return func(f *Fetcher) { f.cache = c }
}

// WithRobots attaches a robots.txt gate.
func WithRobots(g *RobotsGate) Option {
	return func(f *Fetcher) { f.robots = g }
}

// WithHeadless attaches the JS rendering fallback.
func WithHeadless(r Renderer, d Detector) Option {
	return func(f *Fetcher) {
		f.renderer = r
		f.detector = d
	}
}

// New builds a Fetcher.
func New(cfg Config, policy *RetryPolicy, limiter *Limiter, logger *zap.Logger, opts ...Option) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	base := colly.NewCollector()
	base.Async = false
	base.WithTransport(newHTTPTransport())

	f := &Fetcher{
		cfg:     cfg,
		policy:  policy,
		limiter: limiter,
		base:    base,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch executes a GET with politeness throttling, bounded retry, and a
// 429 cooldown. Cached pages short-circuit the network entirely.
func (f *Fetcher) Fetch(ctx context.Context, request harvest.FetchRequest) (harvest.FetchResponse, error) {
	if body, contentType, ok := f.cache.Get(request.URL); ok {
		return harvest.FetchResponse{
			URL:         request.URL,
			StatusCode:  http.StatusOK,
			ContentType: contentType,
			Body:        body,
			FromCache:   true,
		}, nil
	}

	if f.robots != nil && !f.robots.Allowed(ctx, request.URL) {
		return harvest.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, ErrRobotsDisallowed)
	}

	var lastErr error
	for attempt := 0; attempt < f.policy.MaxAttempts(); attempt++ {
		if attempt > 0 {
			metrics.IncRetry()
			if err := f.pause(ctx, f.backoffFor(lastErr, attempt)); err != nil {
				return harvest.FetchResponse{}, err
			}
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, request.URL); err != nil {
				return harvest.FetchResponse{}, err
			}
		}

		resp, err := f.doFetch(ctx, request)
		if err == nil {
			resp = f.maybeRender(ctx, request, resp)
			if cacheErr := f.cache.Set(request.URL, resp.ContentType, resp.Body); cacheErr != nil {
				f.logger.Warn("page cache write failed", zap.String("url", request.URL), zap.Error(cacheErr))
			}
			metrics.IncPage("ok")
			return resp, nil
		}

		lastErr = err
		if !f.policy.ShouldRetry(err, attempt+1) {
			break
		}
		f.logger.Debug("fetch attempt failed, retrying",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	metrics.IncPage("failed")
	return harvest.FetchResponse{}, lastErr
}

// backoffFor picks the wait before the next attempt: the server-signaled
// cooldown after a 429, otherwise the policy's jittered backoff.
func (f *Fetcher) backoffFor(err error, attempt int) time.Duration {
	var fe *harvest.FetchError
	if errors.As(err, &fe) && fe.Status == http.StatusTooManyRequests {
		if fe.RetryAfter > 0 {
			return fe.RetryAfter
		}
		return f.cfg.Cooldown
	}
	return f.policy.Backoff(attempt)
}

func (f *Fetcher) pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled during backoff: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (f *Fetcher) doFetch(ctx context.Context, request harvest.FetchRequest) (harvest.FetchResponse, error) {
	collector := f.base.Clone()
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true // the RobotsGate decided already
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		result    harvest.FetchResponse
		gotBody   bool
		errStatus int
		errHdrs   http.Header
		fetchErr  error
	)
	start := time.Now()

	collector.OnResponse(func(r *colly.Response) {
		result = harvest.FetchResponse{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        append([]byte(nil), r.Body...),
			Headers:     r.Headers.Clone(),
			Duration:    time.Since(start),
		}
		gotBody = true
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			errStatus = r.StatusCode
			if r.Headers != nil {
				errHdrs = r.Headers.Clone()
			}
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(request.URL)
	}()

	select {
	case <-ctx.Done():
		return harvest.FetchResponse{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case visitErr := <-done:
		if fetchErr == nil && visitErr != nil {
			fetchErr = visitErr
		}
	}

	if fetchErr != nil {
		return harvest.FetchResponse{}, f.classify(request.URL, errStatus, errHdrs, fetchErr)
	}
	if !gotBody {
		return harvest.FetchResponse{}, &harvest.FetchError{
			Kind: harvest.FetchConnectionFailed,
			URL:  request.URL,
			Err:  errors.New("no response received"),
		}
	}
	return result, nil
}

// classify maps a transport failure to the FetchError taxonomy.
func (f *Fetcher) classify(url string, status int, headers http.Header, err error) error {
	if status > 0 {
		fe := &harvest.FetchError{
			Kind:   harvest.FetchHTTPStatus,
			URL:    url,
			Status: status,
			Err:    err,
		}
		if status == http.StatusTooManyRequests && headers != nil {
			if secs, convErr := strconv.Atoi(strings.TrimSpace(headers.Get("Retry-After"))); convErr == nil && secs > 0 {
				fe.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return fe
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() || os.IsTimeout(err) {
		return &harvest.FetchError{Kind: harvest.FetchTimeout, URL: url, Err: err}
	}
	if strings.Contains(err.Error(), "Client.Timeout") {
		return &harvest.FetchError{Kind: harvest.FetchTimeout, URL: url, Err: err}
	}
	return &harvest.FetchError{Kind: harvest.FetchConnectionFailed, URL: url, Err: err}
}

// maybeRender promotes an HTML probe to a headless fetch when the body
// looks like a JS wall. Failures keep the probe body.
func (f *Fetcher) maybeRender(ctx context.Context, request harvest.FetchRequest, resp harvest.FetchResponse) harvest.FetchResponse {
	if f.renderer == nil || f.detector == nil {
		return resp
	}
	if request.Kind != harvest.KindHTML || !f.detector.NeedsJS(resp.Body) {
		return resp
	}

	body, err := f.renderer.Render(ctx, request.URL)
	if err != nil {
		f.logger.Warn("headless promotion failed",
			zap.String("url", request.URL),
			zap.Error(err),
		)
		return resp
	}
	resp.Body = body
	resp.ContentType = "text/html; charset=utf-8"
	return resp
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
