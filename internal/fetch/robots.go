package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsGate checks robots.txt before the fetcher touches a URL.
// Per-host rules are fetched once and cached for the life of the run.
type RobotsGate struct {
	mu        sync.RWMutex
	cache     map[string]*robotstxt.RobotsData
	client    *http.Client
	userAgent string
}

// NewRobotsGate builds a gate for the given user agent.
func NewRobotsGate(userAgent string, timeout time.Duration) *RobotsGate {
	return &RobotsGate{
		cache:     make(map[string]*robotstxt.RobotsData),
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Allowed reports whether the URL may be fetched. An unreachable
// robots.txt allows the fetch; an explicit disallow blocks it.
func (g *RobotsGate) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}

	data, err := g.robotsData(ctx, parsed.Scheme, parsed.Host)
	if err != nil {
		return true
	}
	return data.TestAgent(parsed.Path, g.userAgent)
}

func (g *RobotsGate) robotsData(ctx context.Context, scheme, host string) (*robotstxt.RobotsData, error) {
	g.mu.RLock()
	data, ok := g.cache[host]
	g.mu.RUnlock()
	if ok {
		return data, nil
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create robots request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err = robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	g.mu.Lock()
	g.cache[host] = data
	g.mu.Unlock()
	return data, nil
}
