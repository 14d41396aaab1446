package app

import (
	"context"
	"errors"
	"time"

	"github.com/cipherlens/cipherlens/internal/logging"
)

// Application is the global runtime state container. It holds config, the
// shared logger, the components and the Service built over them. Pass
// Application into commands that need access to the global state rather than
// using package-level variables.
type Application struct {
	Config     *Config
	Logger     logging.Logger
	Components *Components
	Service    *Service
}

// NewApplication builds every component from cfg and the Service over them.
func NewApplication(ctx context.Context, cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		return nil, errors.New("app: nil logger")
	}

	comps, err := NewComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	svc, err := NewService(cfg, comps, logger)
	if err != nil {
		_ = comps.Close()
		return nil, err
	}

	logger.Info("application ready",
		logging.Field{Key: "store", Value: cfg.Store.Path},
		logging.Field{Key: "cache", Value: string(cfg.Cache.Backend)},
		logging.Field{Key: "webclient", Value: string(cfg.WebClient.Client)})

	return &Application{
		Config:     cfg,
		Logger:     logger,
		Components: comps,
		Service:    svc,
	}, nil
}

// Shutdown stops the Service first, with a bounded wait for running jobs,
// then releases the components.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = a.Service.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.Logger.Warn("jobs still running at shutdown", logging.Field{Key: "error", Value: shutdownCtx.Err()})
	}

	return a.Components.Close()
}
