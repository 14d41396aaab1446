package app

import (
	"context"
	"fmt"

	"github.com/cipherlens/cipherlens/internal/cache"
	"github.com/cipherlens/cipherlens/internal/detector"
	"github.com/cipherlens/cipherlens/internal/logging"
	"github.com/cipherlens/cipherlens/internal/mailscan"
	"github.com/cipherlens/cipherlens/internal/store"
	"github.com/cipherlens/cipherlens/internal/webclient"
)

// Components are the long-lived dependencies a Service works with.
type Components struct {
	Detector  *detector.Detector
	Store     *store.Store
	Snapshots *store.Snapshots
	Cache     cache.Cache
	WebClient webclient.WebClient
	Mail      *mailscan.Scanner
	Metrics   *Metrics
}

// NewComponents builds every component from cfg. On error, anything already
// opened is closed again.
func NewComponents(ctx context.Context, cfg *Config, logger logging.Logger) (*Components, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	det, err := detector.New(logger)
	if err != nil {
		return nil, fmt.Errorf("new detector: %w", err)
	}

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	c, err := cache.New(ctx, cfg.Cache, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("new cache: %w", err)
	}

	wc, err := webclient.New(cfg.WebClient, logger)
	if err != nil {
		_ = c.Close()
		st.Close()
		return nil, fmt.Errorf("new webclient: %w", err)
	}

	mail, err := mailscan.NewScanner(det, logger)
	if err != nil {
		_ = wc.Close()
		_ = c.Close()
		st.Close()
		return nil, fmt.Errorf("new mail scanner: %w", err)
	}
	mail.SetMaxLinks(cfg.Detection.MaxEmailLinks)

	var snaps *store.Snapshots
	if cfg.Store.SnapshotDir != "" {
		if snaps, err = store.OpenSnapshots(cfg.Store.SnapshotDir); err != nil {
			_ = wc.Close()
			_ = c.Close()
			st.Close()
			return nil, fmt.Errorf("open snapshots: %w", err)
		}
	}

	return &Components{
		Detector:  det,
		Store:     st,
		Snapshots: snaps,
		Cache:     c,
		WebClient: wc,
		Mail:      mail,
		Metrics:   NewMetrics(),
	}, nil
}

// Close releases the webclient, cache and store, returning the first error.
func (c *Components) Close() error {
	var firstErr error
	if c.WebClient != nil {
		if err := c.WebClient.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close webclient: %w", err)
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close cache: %w", err)
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close store: %w", err)
		}
	}
	return firstErr
}
