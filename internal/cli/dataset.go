package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cipherlens/cipherlens/internal/app"
	"github.com/cipherlens/cipherlens/internal/detector"
	"github.com/cipherlens/cipherlens/internal/logging"
)

func newDatasetCommand(opts *options) *cobra.Command {
	datasetCmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manage labelled datasets",
	}

	var file string
	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Score and store a labelled CSV dataset",
		Long: `Load a CSV with url, is_phishing and category columns. Every URL not yet
stored is scored by its URL features and saved with its label.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.Application) error {
				rc, path, err := a.Service.OpenDataset(file)
				if err != nil {
					return err
				}
				defer rc.Close()

				errOut := cmd.ErrOrStderr()
				sum, err := a.Service.LoadDataset(ctx, rc, func(processed, total int) {
					if processed == total || processed%100 == 0 {
						fmt.Fprintf(errOut, "\r%d/%d rows", processed, total)
					}
				})
				fmt.Fprintln(errOut)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), sum)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d of %d rows from %s (%d already stored, %d invalid)\n",
					sum.Loaded, sum.Total, path, sum.Skipped, sum.Invalid)
				return nil
			})
		},
	}
	loadCmd.Flags().StringVarP(&file, "file", "f", "", "CSV file (default from jobs.dataset_path)")

	datasetCmd.AddCommand(loadCmd)
	return datasetCmd
}

func newStatsCommand(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show scan counters and the most recent detections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.Application) error {
				stats, err := a.Service.Statistics(ctx)
				if err != nil {
					return err
				}
				recent, err := a.Service.RecentDetections(ctx, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.jsonOut {
					return printJSON(out, map[string]any{"statistics": stats, "detections": recent})
				}
				fmt.Fprintf(out, "Total scans: %d\nPhishing:    %d\nSafe:        %d\n\n", stats.TotalScans, stats.PhishingDetected, stats.SafeSites)

				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "URL\tVERDICT\tSCORE\tSCANNED")
				fmt.Fprintln(tw, "---\t-------\t-----\t-------")
				for _, d := range recent {
					fmt.Fprintf(tw, "%s\t%s\t%.3f\t%s\n", d.URL, verdictLabel(d.Result), d.Score, d.CreatedAt.Format("2006-01-02 15:04"))
				}
				tw.Flush()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "how many recent detections to list")
	return cmd
}

func newCalibrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate",
		Short: "Score the built-in reference URLs and report detection rates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			det, err := detector.New(logging.NopLogger{})
			if err != nil {
				return err
			}
			rep, err := det.Calibrate(nil, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, rep)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "URL\tLABEL\tVERDICT\tSCORE")
			fmt.Fprintln(tw, "---\t-----\t-------\t-----")
			for _, r := range rep.Results {
				label := "legitimate"
				if r.Phishing {
					label = "phishing"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\n", r.URL, label, verdictLabel(r.Verdict), r.Verdict.Score)
			}
			tw.Flush()

			fmt.Fprintf(out, "\nPhishing detection rate:  %.1f%%\n", rep.PhishingDetectionRate*100)
			fmt.Fprintf(out, "Legitimate accuracy rate: %.1f%%\n", rep.LegitimateAccuracyRate*100)
			fmt.Fprintf(out, "False positive rate:      %.1f%%\n", rep.FalsePositiveRate*100)
			if rep.PhishingDetectionRate < 1 || rep.FalsePositiveRate > 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: reference URLs are misclassified; review the detection tables")
			}
			return nil
		},
	}
}
