// Package fetch downloads a source page with a fixed timeout, a browser-like
// User-Agent and optional conditional GET.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deusflow/sitewatch/internal/cache"
)

const (
	DefaultTimeout   = 30 * time.Second
	MinTimeout       = 10 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxBodyBytes     = 10 << 20
	validatorTTL     = 24 * time.Hour
)

// ErrNotModified is returned when the server answered a conditional GET with 304.
var ErrNotModified = errors.New("not modified")

// Error is a network or HTTP failure. The caller skips the cycle and retries later.
type Error struct {
	URL    string
	Status int // 0 for transport errors
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Response is a successfully downloaded resource.
type Response struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
}

type validators struct {
	etag    string
	lastMod string
}

// Fetcher performs GET requests. It is safe for concurrent use.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	conditional bool
	seen        *cache.Cache[validators]
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the request timeout, clamped to [MinTimeout, DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.client.Timeout = ClampTimeout(d)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithConditionalGet remembers ETag / Last-Modified per URL and sends them back.
func WithConditionalGet(enabled bool) Option {
	return func(f *Fetcher) {
		f.conditional = enabled
	}
}

// WithHTTPClient replaces the underlying client; its Timeout is kept as is.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		seen:      cache.New[validators](validatorTTL),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ClampTimeout keeps a timeout inside the supported window.
func ClampTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultTimeout
	case d < MinTimeout:
		return MinTimeout
	case d > DefaultTimeout:
		return DefaultTimeout
	}
	return d
}

// Fetch downloads url. Extra headers are applied after the User-Agent, so a
// source may override it.
func (f *Fetcher) Fetch(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if f.conditional {
		if v, ok := f.seen.Get(url); ok {
			if v.etag != "" {
				req.Header.Set("If-None-Match", v.etag)
			}
			if v.lastMod != "" {
				req.Header.Set("If-Modified-Since", v.lastMod)
			}
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && f.conditional {
		return nil, ErrNotModified
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &Error{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{URL: url, Status: 0, Err: fmt.Errorf("read body: %w", err)}
	}

	if f.conditional {
		v := validators{etag: resp.Header.Get("ETag"), lastMod: resp.Header.Get("Last-Modified")}
		if v.etag != "" || v.lastMod != "" {
			f.seen.Set(url, v)
		} else {
			f.seen.Delete(url)
		}
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Forget drops the remembered validators for url, forcing a full download next time.
func (f *Fetcher) Forget(url string) {
	f.seen.Delete(url)
}
