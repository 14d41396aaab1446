package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cipherlens/cipherlens/internal/app"
	"github.com/cipherlens/cipherlens/internal/detector"
)

func newScanCommand(opts *options) *cobra.Command {
	var (
		contentFile string
		fetch       bool
	)
	cmd := &cobra.Command{
		Use:   "scan URL [URL...]",
		Short: "Score one or more URLs",
		Long: `Score URLs by their URL features. With --content-file or --fetch a single URL
is scored together with its page.`,
		Example: `  cipherlens scan http://paypa1.com/login
  cipherlens scan --fetch http://localhost:9999/login
  cipherlens scan --json https://www.google.com http://secure-paypa1.tk/login`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (contentFile != "" || fetch) && len(args) > 1 {
				return fmt.Errorf("--content-file and --fetch take a single URL")
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.Application) error {
				out := cmd.OutOrStdout()
				if len(args) > 1 {
					items, err := a.Service.DetectBatch(ctx, args)
					if err != nil {
						return err
					}
					if opts.jsonOut {
						return printJSON(out, items)
					}
					printBatch(out, items)
					return nil
				}

				res, err := detectOne(ctx, cmd, a.Service, args[0], contentFile, fetch)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(out, res)
				}
				printDetection(out, res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&contentFile, "content-file", "", "HTML page to score with the URL (\"-\" for stdin)")
	cmd.Flags().BoolVar(&fetch, "fetch", false, "retrieve the page through the configured webclient")
	return cmd
}

func detectOne(ctx context.Context, cmd *cobra.Command, svc *app.Service, rawURL, contentFile string, fetch bool) (*app.DetectionResult, error) {
	if contentFile == "" && !fetch {
		return svc.DetectURL(ctx, rawURL)
	}
	var content string
	if contentFile != "" {
		b, err := readInput(cmd, contentFile)
		if err != nil {
			return nil, err
		}
		content = string(b)
	}
	return svc.DetectContent(ctx, rawURL, content, fetch)
}

func verdictLabel(v *detector.Verdict) string {
	if v == nil {
		return "unknown"
	}
	if v.IsPhishing {
		return "PHISHING"
	}
	return "legitimate"
}

func printDetection(w io.Writer, res *app.DetectionResult) {
	v := res.Result
	fmt.Fprintf(w, "%s\n", res.URL)
	fmt.Fprintf(w, "  verdict:    %s (%s threat)\n", verdictLabel(v), v.ThreatLevel)
	fmt.Fprintf(w, "  score:      %.3f\n", v.Score)
	fmt.Fprintf(w, "  confidence: %.3f\n", v.Confidence)
	if res.Snapshot != "" {
		fmt.Fprintf(w, "  snapshot:   %s\n", res.Snapshot)
	}
	if res.Cached {
		fmt.Fprintln(w, "  (recent verdict reused)")
	}
	if len(v.Explanations) > 0 {
		fmt.Fprintln(w, "  why:")
		for _, e := range v.Explanations {
			fmt.Fprintf(w, "    - %s\n", e)
		}
	}
	if len(res.Similar) > 0 {
		fmt.Fprintln(w, "  similar stored pages:")
		for _, sp := range res.Similar {
			fmt.Fprintf(w, "    - %s (distance %d, %s)\n", sp.URL, sp.Distance, sp.ThreatLevel)
		}
	}
}

func printBatch(w io.Writer, items []app.BatchItem) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tVERDICT\tSCORE\tTHREAT")
	fmt.Fprintln(tw, "---\t-------\t-----\t------")
	for _, it := range items {
		if it.Error != "" || it.DetectionResult == nil {
			fmt.Fprintf(tw, "%s\terror\t-\t%s\n", it.URL, it.Error)
			continue
		}
		v := it.Result
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%s\n", it.URL, verdictLabel(v), v.Score, v.ThreatLevel)
	}
	tw.Flush()
}

func newExplainCommand(opts *options) *cobra.Command {
	var (
		contentFile string
		explainer   string
		html        bool
	)
	cmd := &cobra.Command{
		Use:   "explain URL",
		Short: "Attribute a URL's verdict to its features",
		Long: `Score URL, then attribute the verdict to individual features with the shap or
lime style explainer. With --content-file the page elements behind the top
features are listed too; --html prints the bar chart fragment instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.Application) error {
				res, err := detectOne(ctx, cmd, a.Service, args[0], contentFile, false)
				if err != nil {
					return err
				}

				var exp *detector.Explanation
				switch {
				case html:
					exp, err = a.Service.ExplainHTML(res.Features, explainer)
				case contentFile != "":
					var page []byte
					if page, err = readInput(cmd, contentFile); err == nil {
						exp, err = a.Service.ExplainElements(res.Features, explainer, string(page))
					}
				default:
					exp, err = a.Service.ExplainFeatures(res.Features, explainer)
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if html {
					_, err := io.WriteString(out, exp.Visualization)
					return err
				}
				if opts.jsonOut {
					return printJSON(out, exp)
				}
				printExplanation(out, res, exp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&contentFile, "content-file", "", "HTML page to score with the URL (\"-\" for stdin)")
	cmd.Flags().StringVar(&explainer, "explainer", "shap", "explainer style: shap or lime")
	cmd.Flags().BoolVar(&html, "html", false, "print the HTML visualization")
	return cmd
}

func printExplanation(w io.Writer, res *app.DetectionResult, exp *detector.Explanation) {
	fmt.Fprintf(w, "%s: %s (score %.3f, %s explainer)\n\n", res.URL, verdictLabel(res.Result), res.Result.Score, strings.ToUpper(exp.Explainer))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FEATURE\tATTRIBUTION\tDESCRIPTION")
	fmt.Fprintln(tw, "-------\t-----------\t-----------")
	for _, it := range exp.Items {
		fmt.Fprintf(tw, "%s\t%+.3f\t%s\n", it.Feature, it.Attribution, it.Description)
	}
	tw.Flush()

	if len(exp.SuspiciousElements) > 0 {
		fmt.Fprintln(w, "\nSuspicious elements:")
		for _, el := range exp.SuspiciousElements {
			fmt.Fprintf(w, "  - %s %s: %s\n", el.Element, el.Selector, el.Description)
		}
	}
}
