// Command demoserver runs the lure site: a small bank whose pages can be
// swapped for phishing-kit clones, for trying content detection with page
// fetching turned on.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cipherlens/cipherlens/internal/demoserver"
	"github.com/cipherlens/cipherlens/internal/logging"
)

func main() {
	cfg := demoserver.DefaultConfig()
	var logLevel string

	cmd := &cobra.Command{
		Use:          "demoserver",
		Short:        "Serve the lure site",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.NewLogger("demoserver", logging.ParseLevel(logLevel), cmd.ErrOrStderr())
			site := demoserver.NewSite(cfg, logger)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Lure site on %s, control panel at /lure/\n", cfg.Addr)
			for _, p := range demoserver.Pages() {
				fmt.Fprintf(out, "  %-8s %s\n", p.Path, p.Description)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return site.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	cmd.Flags().BoolVar(&cfg.Kits, "kits", false, "start every page on its phishing kit")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
