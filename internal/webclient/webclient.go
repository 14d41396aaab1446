// Package webclient retrieves suspect pages on behalf of content detection.
// The detector itself never fetches; callers opt in per request.
package webclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WebClient fetches one page with GET. Implementations must be safe for
// concurrent use.
type WebClient interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
	Close() error
}

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

var (
	ErrUnsupportedScheme = errors.New("only http and https pages can be fetched")
	ErrTooManyRedirects  = errors.New("too many redirects")
)

// Config selects and tunes a backend.
type Config struct {
	Client Client `mapstructure:"client"`

	// Timeout bounds a whole fetch. Zero selects 30s.
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxBodyBytes truncates pages. Zero selects 5 MiB.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	// MaxRedirects caps the redirect chain the nethttp backend follows.
	// Lures often bounce through several hops; zero selects 10.
	MaxRedirects int `mapstructure:"max_redirects"`

	UserAgent string `mapstructure:"user_agent"`

	// IdleAfter is how long the chromedp backend waits with no network
	// activity before reading the DOM.
	IdleAfter time.Duration `mapstructure:"idle_after"`

	Headless bool `mapstructure:"headless"`
}

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 5 << 20
	defaultMaxRedirects = 10
	defaultIdleAfter    = 2 * time.Second
	defaultUserAgent    = "CipherLens/1.0 (+phishing-detector)"
)

// DefaultConfig returns the nethttp backend with default limits.
func DefaultConfig() Config {
	return Config{
		Client:       ClientNetHTTP,
		Timeout:      defaultTimeout,
		MaxBodyBytes: defaultMaxBodyBytes,
		MaxRedirects: defaultMaxRedirects,
		UserAgent:    defaultUserAgent,
		IdleAfter:    defaultIdleAfter,
		Headless:     true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = d.MaxRedirects
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = d.IdleAfter
	}
	return c
}

// Page is a fetched document. HTML is UTF-8 and at most MaxBodyBytes long.
type Page struct {
	URL         string      `json:"url"`
	FinalURL    string      `json:"finalUrl"`
	StatusCode  int         `json:"statusCode"`
	ContentType string      `json:"contentType,omitempty"`
	Header      http.Header `json:"-"`
	HTML        []byte      `json:"-"`
	Truncated   bool        `json:"truncated,omitempty"`
	FetchedAt   time.Time   `json:"fetchedAt"`
}

// Redirected reports whether the page was served from a different URL than
// the one requested.
func (p *Page) Redirected() bool {
	return p.FinalURL != "" && p.FinalURL != p.URL
}

func checkTarget(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%q: %w", rawURL, ErrUnsupportedScheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%q: missing host", rawURL)
	}
	return u, nil
}
