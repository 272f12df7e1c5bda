package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// PageCache is a layered cache of previously fetched pages: a short-TTL
// in-memory layer over an optional on-disk layer. The disk layer lets
// incremental re-runs skip pages fetched by earlier runs.
type PageCache struct {
	memory *gocache.Cache
	dir    string
	ttl    time.Duration
}

type cacheEntry struct {
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewPageCache builds a cache. An empty dir disables the disk layer.
func NewPageCache(dir string, ttl time.Duration) (*PageCache, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
		}
	}
	return &PageCache{
		memory: gocache.New(ttl, 2*ttl),
		dir:    dir,
		ttl:    ttl,
	}, nil
}

// Get returns the cached body and content type for a URL, if present
// and unexpired.
func (c *PageCache) Get(rawURL string) ([]byte, string, bool) {
	if c == nil {
		return nil, "", false
	}
	key := cacheKey(rawURL)

	if v, ok := c.memory.Get(key); ok {
		entry, ok := v.(cacheEntry)
		if ok {
			return entry.Body, entry.ContentType, true
		}
	}

	if c.dir == "" {
		return nil, "", false
	}
	raw, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, "", false
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, "", false
	}
	if time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(c.path(key))
		return nil, "", false
	}
	c.memory.Set(key, entry, gocache.DefaultExpiration)
	return entry.Body, entry.ContentType, true
}

// Set stores a fetched page in both layers.
func (c *PageCache) Set(rawURL, contentType string, body []byte) error {
	if c == nil {
		return nil
	}
	key := cacheKey(rawURL)
	entry := cacheEntry{
		ContentType: contentType,
		Body:        body,
		ExpiresAt:   time.Now().Add(c.ttl),
	}
	c.memory.Set(key, entry, gocache.DefaultExpiration)

	if c.dir == "" {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := os.WriteFile(c.path(key), raw, 0o600); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	return nil
}

func (c *PageCache) path(key string) string {
	return filepath.Join(c.dir, key+".cache")
}

func cacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}
