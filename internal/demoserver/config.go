package demoserver

import "time"

// Config tunes the lure site.
type Config struct {
	Addr string

	// Kits starts every page on its kit instead of the genuine version.
	Kits bool

	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:            ":9999",
		ShutdownTimeout: 5 * time.Second,
	}
}
