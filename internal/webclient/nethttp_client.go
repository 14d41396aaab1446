package webclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/cipherlens/cipherlens/internal/logging"
)

// NetHTTPClient fetches raw HTML with net/http. Script-built pages come back
// as served, before any script runs.
type NetHTTPClient struct {
	client       *http.Client
	maxBody      int64
	maxRedirects int
	userAgent    string
	logger       logging.Logger
}

// NewNetHTTPClient builds a client. httpClient may be nil, in which case one
// with cfg.Timeout is created; a given client is copied so its redirect
// policy can be replaced.
func NewNetHTTPClient(cfg Config, logger logging.Logger, httpClient *http.Client) (*NetHTTPClient, error) {
	if logger == nil {
		return nil, errors.New("nethttp webclient: nil logger")
	}
	cfg = cfg.withDefaults()

	hc := &http.Client{Timeout: cfg.Timeout}
	if httpClient != nil {
		copied := *httpClient
		hc = &copied
	}
	c := &NetHTTPClient{
		client:       hc,
		maxBody:      cfg.MaxBodyBytes,
		maxRedirects: cfg.MaxRedirects,
		userAgent:    cfg.UserAgent,
		logger:       logger.With(logging.Field{Key: "backend", Value: "nethttp"}),
	}
	hc.CheckRedirect = c.checkRedirect

	c.logger.Debug("created nethttp webclient",
		logging.Field{Key: "timeout", Value: hc.Timeout.String()},
		logging.Field{Key: "max_redirects", Value: cfg.MaxRedirects})
	return c, nil
}

func (c *NetHTTPClient) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > c.maxRedirects {
		return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, len(via))
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect to %s: %w", req.URL, ErrUnsupportedScheme)
	}
	c.logger.Debug("following redirect",
		logging.Field{Key: "from", Value: via[len(via)-1].URL.String()},
		logging.Field{Key: "to", Value: req.URL.String()})
	return nil
}

// Fetch GETs rawURL, follows redirects and decodes the body to UTF-8 using
// the Content-Type header and any meta charset.
func (c *NetHTTPClient) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if _, err := checkTarget(rawURL); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("fetch failed",
			logging.Field{Key: "url", Value: rawURL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	truncated := int64(len(raw)) > c.maxBody
	if truncated {
		raw = raw[:c.maxBody]
	}

	contentType := resp.Header.Get("Content-Type")
	page := &Page{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Header:      resp.Header,
		HTML:        decodeUTF8(raw, contentType),
		Truncated:   truncated,
		FetchedAt:   time.Now().UTC(),
	}
	if page.Redirected() {
		c.logger.Info("fetch redirected",
			logging.Field{Key: "url", Value: rawURL},
			logging.Field{Key: "final_url", Value: page.FinalURL})
	}
	return page, nil
}

// decodeUTF8 converts body to UTF-8. Undecodable input is returned as is.
func decodeUTF8(body []byte, contentType string) []byte {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return out
}

func (c *NetHTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
