package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/cipherlens/cipherlens/internal/cache"
	"github.com/cipherlens/cipherlens/internal/store"
	"github.com/cipherlens/cipherlens/internal/webclient"
)

// EnvPrefix is prepended to every environment override, e.g.
// CIPHERLENS_CACHE_BACKEND=redis.
const EnvPrefix = "CIPHERLENS"

// Config is the runtime configuration shared by the CLI and the API server.
type Config struct {
	LogLevel    string `mapstructure:"log_level"`
	Environment string `mapstructure:"environment"`

	Server    ServerConfig     `mapstructure:"server"`
	Store     store.Config     `mapstructure:"store"`
	Cache     cache.Config     `mapstructure:"cache"`
	WebClient webclient.Config `mapstructure:"webclient"`
	Detection DetectionConfig  `mapstructure:"detection"`
	Jobs      JobsConfig       `mapstructure:"jobs"`
}

// ServerConfig tunes the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`

	// RateLimit is the sustained requests per second each client may send to
	// the detection endpoints. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type DetectionConfig struct {
	// RecencyWindow is how long a stored verdict is served again instead of
	// re-running the detector.
	RecencyWindow time.Duration `mapstructure:"recency_window"`

	// SimilarityDistance is the largest TLSH distance reported as a similar
	// stored page.
	SimilarityDistance int `mapstructure:"similarity_distance"`

	MaxBatchSize     int `mapstructure:"max_batch_size"`
	BatchConcurrency int `mapstructure:"batch_concurrency"`
	MaxEmailLinks    int `mapstructure:"max_email_links"`
}

type JobsConfig struct {
	// DatasetPath is the CSV loaded when a dataset job names no file.
	DatasetPath string `mapstructure:"dataset_path"`

	// Retention is how long finished jobs stay visible.
	Retention time.Duration `mapstructure:"retention"`
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:    "info",
		Environment: "development",
		Server: ServerConfig{
			Addr:        ":5000",
			RateLimit:   10,
			RateBurst:   20,
			ReadTimeout: 15 * time.Second,
		},
		Store: store.Config{
			Path: "data/cipherlens.db",
		},
		Cache: cache.Config{
			Backend: cache.BackendMemory,
			TTL:     cache.DefaultTTL,
			Addr:    "localhost:6379",
			Prefix:  "cipherlens:verdict:",
		},
		WebClient: webclient.DefaultConfig(),
		Detection: DetectionConfig{
			RecencyWindow:      24 * time.Hour,
			SimilarityDistance: 70,
			MaxBatchSize:       100,
			BatchConcurrency:   8,
			MaxEmailLinks:      50,
		},
		Jobs: JobsConfig{
			DatasetPath: "data/phishing_dataset_sample.csv",
			Retention:   time.Hour,
		},
	}
}

// LoadConfig layers, from lowest to highest precedence: DefaultConfig, the
// optional config file at path, a .env file in the working directory and
// CIPHERLENS_* environment variables. Flags bound on v win over all of them.
// A nil v selects a fresh viper instance.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	// A missing .env is the normal case.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during
// Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("environment", cfg.Environment)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.rate_limit", cfg.Server.RateLimit)
	v.SetDefault("server.rate_burst", cfg.Server.RateBurst)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)

	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("store.snapshot_dir", cfg.Store.SnapshotDir)

	v.SetDefault("cache.backend", string(cfg.Cache.Backend))
	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.addr", cfg.Cache.Addr)
	v.SetDefault("cache.password", cfg.Cache.Password)
	v.SetDefault("cache.db", cfg.Cache.DB)
	v.SetDefault("cache.prefix", cfg.Cache.Prefix)

	v.SetDefault("webclient.client", string(cfg.WebClient.Client))
	v.SetDefault("webclient.timeout", cfg.WebClient.Timeout)
	v.SetDefault("webclient.max_body_bytes", cfg.WebClient.MaxBodyBytes)
	v.SetDefault("webclient.max_redirects", cfg.WebClient.MaxRedirects)
	v.SetDefault("webclient.user_agent", cfg.WebClient.UserAgent)
	v.SetDefault("webclient.idle_after", cfg.WebClient.IdleAfter)
	v.SetDefault("webclient.headless", cfg.WebClient.Headless)

	v.SetDefault("detection.recency_window", cfg.Detection.RecencyWindow)
	v.SetDefault("detection.similarity_distance", cfg.Detection.SimilarityDistance)
	v.SetDefault("detection.max_batch_size", cfg.Detection.MaxBatchSize)
	v.SetDefault("detection.batch_concurrency", cfg.Detection.BatchConcurrency)
	v.SetDefault("detection.max_email_links", cfg.Detection.MaxEmailLinks)

	v.SetDefault("jobs.dataset_path", cfg.Jobs.DatasetPath)
	v.SetDefault("jobs.retention", cfg.Jobs.Retention)
}
