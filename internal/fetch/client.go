// Package fetch downloads remote datasets over plain HTTP GET.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ErrFetch is returned for network failures, non-2xx responses and oversized bodies.
var ErrFetch = errors.New("fetch: request failed")

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxBytes caps response bodies (256MB).
	DefaultMaxBytes int64 = 256 << 20
	userAgent             = "springmap/1.0 (+https://github.com/MeKo-Tech/springmap)"
)

// Config configures a Client.
type Config struct {
	HTTPClient *http.Client
	Cache      Cache
	Logger     *slog.Logger
	UserAgent  string
	Timeout    time.Duration
	MaxBytes   int64
	CacheTTL   time.Duration
}

// Client fetches URLs and optionally caches response bodies.
type Client struct {
	http      *http.Client
	cache     Cache
	logger    *slog.Logger
	userAgent string
	maxBytes  int64
	cacheTTL  time.Duration
}

// New creates a Client, filling unset fields with defaults.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = userAgent
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}

	return &Client{
		http:      cfg.HTTPClient,
		cache:     cfg.Cache,
		logger:    cfg.Logger,
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
		cacheTTL:  cfg.CacheTTL,
	}
}

// Default returns a client without cache.
func Default() *Client {
	return New(Config{})
}

// Get downloads rawURL and returns the body. Only http and https are accepted.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrFetch, rawURL)
	}

	if c.cache != nil {
		if data, ok := c.cache.Get(ctx, rawURL); ok {
			c.log().Debug("fetch cache hit", "url", rawURL, "bytes", len(data))
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrFetch, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrFetch, rawURL, resp.StatusCode)
	}

	// Read one extra byte so oversized bodies are detected rather than truncated
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrFetch, rawURL, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFetch, rawURL, c.maxBytes)
	}

	c.log().Debug("fetched url", "url", rawURL, "bytes", len(data), "elapsed", time.Since(start))

	if c.cache != nil {
		if err := c.cache.Set(ctx, rawURL, data, c.cacheTTL); err != nil {
			c.log().Warn("failed to cache response", "url", rawURL, "error", err)
		}
	}

	return data, nil
}

func (c *Client) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}
