// Package headless renders JavaScript-gated pages with headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrRendererDisabled indicates rendering has been disabled via configuration.
var ErrRendererDisabled = errors.New("renderer disabled")

// Config controls the renderer.
type Config struct {
	MaxParallel int
	NavTimeout  time.Duration
	UserAgent   string
}

// Renderer drives a shared headless browser; each Render runs in its
// own tab under a bounded parallelism semaphore.
type Renderer struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	sem             chan struct{}
	timeout         time.Duration
	userAgent       string
	logger          *zap.Logger
}

// New starts the browser and returns a Renderer.
func New(cfg Config, logger *zap.Logger) (*Renderer, error) {
	if cfg.MaxParallel <= 0 {
		return nil, ErrRendererDisabled
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 25 * time.Second
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Renderer{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		sem:             make(chan struct{}, cfg.MaxParallel),
		timeout:         cfg.NavTimeout,
		userAgent:       cfg.UserAgent,
		logger:          logger,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (r *Renderer) Close() {
	if r == nil {
		return
	}
	r.browserCancel()
	r.allocatorCancel()
}

// Render navigates to the URL with JavaScript enabled and returns the
// resulting DOM snapshot.
func (r *Renderer) Render(ctx context.Context, rawURL string) ([]byte, error) {
	if r == nil {
		return nil, ErrRendererDisabled
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render slot: %w", ctx.Err())
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTask()

	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(r.userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	r.logger.Debug("rendered page", zap.String("url", rawURL), zap.Int("bytes", len(html)))
	return []byte(html), nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
