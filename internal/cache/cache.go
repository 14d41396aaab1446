// Package cache keeps recent verdicts by URL so repeated scans within the TTL
// skip the detector.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/cipherlens/cipherlens/internal/detector"
	"github.com/cipherlens/cipherlens/internal/logging"
)

// Entry is what gets cached for a scanned URL.
type Entry struct {
	TaskID     string            `json:"taskId"`
	URL        string            `json:"url"`
	Features   detector.Features `json:"features,omitempty"`
	Verdict    *detector.Verdict `json:"result"`
	HasContent bool              `json:"hasContent"`
	CachedAt   time.Time         `json:"cachedAt"`
}

// Cache looks up and stores verdicts by URL. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, url string) (*Entry, bool, error)
	Set(ctx context.Context, url string, e *Entry) error
	Close() error
}

type Backend string

const (
	BackendNone   Backend = "none"
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

const DefaultTTL = 24 * time.Hour

type Config struct {
	Backend  Backend       `mapstructure:"backend"`
	TTL      time.Duration `mapstructure:"ttl"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
}

// New builds the configured cache. Redis is pinged before it is returned.
func New(ctx context.Context, cfg Config, logger logging.Logger) (Cache, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	switch Backend(strings.ToLower(string(cfg.Backend))) {
	case BackendNone:
		return NopCache{}, nil
	case BackendMemory, "":
		return NewMemoryCache(cfg.TTL), nil
	case BackendRedis:
		rc, err := NewRedisCache(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// key hashes the URL so arbitrary input yields a bounded redis key.
func key(prefix, url string) string {
	sum := sha1.Sum([]byte(url))
	return prefix + hex.EncodeToString(sum[:])
}

// NopCache never hits.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*Entry, bool, error) { return nil, false, nil }
func (NopCache) Set(context.Context, string, *Entry) error         { return nil }
func (NopCache) Close() error                                      { return nil }
