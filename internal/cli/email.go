package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cipherlens/cipherlens/internal/app"
	"github.com/cipherlens/cipherlens/internal/mailscan"
)

func newEmailCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "email FILE",
		Short: "Scan a raw email message",
		Long: `Parse an RFC 5322 message (an .eml file, or "-" for stdin), score every link
it carries and its HTML body, and report the worst verdict.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.Application) error {
				rep, err := a.Service.ScanEmail(ctx, bytes.NewReader(raw))
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), rep)
				}
				printEmail(cmd.OutOrStdout(), rep)
				return nil
			})
		},
	}
}

func printEmail(w io.Writer, rep *mailscan.Report) {
	if rep.Message != nil {
		fmt.Fprintf(w, "Subject: %s\nFrom:    %s\n", rep.Message.Subject, rep.Message.From)
	}
	if rep.SenderBrand != nil {
		fmt.Fprintf(w, "Sender domain resembles %s (distance %d)\n", rep.SenderBrand.Brand, rep.SenderBrand.Distance)
	}
	verdict := "legitimate"
	if rep.IsPhishing {
		verdict = "PHISHING"
	}
	fmt.Fprintf(w, "Verdict: %s\n\n", verdict)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINK\tVERDICT\tSCORE")
	fmt.Fprintln(tw, "----\t-------\t-----")
	for _, l := range rep.Links {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\n", l.URL, verdictLabel(l.Verdict), l.Verdict.Score)
	}
	tw.Flush()
	if rep.Truncated {
		fmt.Fprintln(w, "(link list truncated)")
	}
}

func newCompareCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "compare SUSPECT [REFERENCE]",
		Short: "Compare a suspect host with a reference host",
		Long: `Show the edit distance, positional similarity and character diff between two
hosts. Without a reference the closest known brand is used.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reference := ""
			if len(args) == 2 {
				reference = args[1]
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.Application) error {
				res, err := a.Service.Compare(args[0], reference)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.jsonOut {
					return printJSON(out, res)
				}
				if res.Brand != nil {
					fmt.Fprintf(out, "Closest brand: %s (label %q, distance %d)\n", res.Brand.Brand, res.Brand.Label, res.Brand.Distance)
				}
				c := res.Comparison
				fmt.Fprintf(out, "%s vs %s\n", c.Suspect, c.Reference)
				fmt.Fprintf(out, "  distance:   %d (lookalike threshold %d)\n", c.Distance, c.Threshold)
				fmt.Fprintf(out, "  similarity: %.3f\n", c.Similarity)
				fmt.Fprintf(out, "  lookalike:  %t\n", c.Lookalike)
				fmt.Fprint(out, "  diff:       ")
				for _, ch := range c.Chunks {
					switch ch.Type {
					case "added":
						fmt.Fprintf(out, "[+%s]", ch.Content)
					case "removed":
						fmt.Fprintf(out, "[-%s]", ch.Content)
					default:
						fmt.Fprint(out, ch.Content)
					}
				}
				fmt.Fprintln(out)
				return nil
			})
		},
	}
}
