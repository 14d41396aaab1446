// Package cli holds the cipherlens command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cipherlens/cipherlens/internal/app"
	"github.com/cipherlens/cipherlens/internal/logging"
)

// options is the state shared by every command of one tree.
type options struct {
	cfgFile string
	jsonOut bool
	v       *viper.Viper
}

// NewRootCommand builds the cipherlens command tree over a fresh viper
// instance, so trees built in tests do not share flags.
func NewRootCommand() *cobra.Command {
	opts := &options{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "cipherlens",
		Short: "Explainable phishing detection for URLs, pages and email",
		Long: `CipherLens scores URLs and web pages for phishing with a fixed, explainable
heuristic model. Every verdict comes with per-feature attributions so an analyst
can see which signals drove it.

Run "cipherlens serve" for the HTTP API, or use the scan, explain and email
commands directly.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("store", "", "SQLite database path (\":memory:\" for a throwaway store)")
	rootCmd.PersistentFlags().String("cache", "", "verdict cache backend: memory, redis, none")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print results as JSON")

	_ = opts.v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = opts.v.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("store"))
	_ = opts.v.BindPFlag("cache.backend", rootCmd.PersistentFlags().Lookup("cache"))

	rootCmd.AddCommand(
		newServeCommand(opts),
		newScanCommand(opts),
		newExplainCommand(opts),
		newEmailCommand(opts),
		newCompareCommand(opts),
		newDatasetCommand(opts),
		newStatsCommand(opts),
		newCalibrateCommand(opts),
	)
	return rootCmd
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// loadConfig layers flags that were set over env, the config file and
// defaults.
func (o *options) loadConfig() (*app.Config, error) {
	return app.LoadConfig(o.v, o.cfgFile)
}

// openApp builds the Application for a command. Logs go to stderr so stdout
// stays clean for results.
func (o *options) openApp(ctx context.Context, cmd *cobra.Command) (*app.Application, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger("cipherlens", logging.ParseLevel(cfg.LogLevel), cmd.ErrOrStderr())
	return app.NewApplication(ctx, cfg, logger)
}

// withApp runs fn over a freshly opened Application and shuts it down after.
func (o *options) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := o.openApp(ctx, cmd)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.Shutdown(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// printJSON writes v indented to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput reads a file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}
