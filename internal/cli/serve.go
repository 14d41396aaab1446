package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cipherlens/cipherlens/internal/app"
	"github.com/cipherlens/cipherlens/internal/logging"
	"github.com/cipherlens/cipherlens/internal/server"
)

func newServeCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the detection API, the job WebSocket, Prometheus metrics on /metrics
and the OpenAPI browser on /swagger/index.html until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			return serve(ctx, a)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :5000)")
	_ = opts.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

// serve runs the API until ctx ends, then drains requests and shuts the
// application down.
func serve(ctx context.Context, a *app.Application) error {
	srv, err := server.NewServer(a.Service, a.Config.Server, a.Logger)
	if err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}
	httpSrv := srv.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", logging.Field{Key: "addr", Value: httpSrv.Addr})
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("http shutdown", logging.Field{Key: "error", Value: err.Error()})
	}
	if err := a.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}
