package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/expand"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/source"
)

func newExpandCmd(opts *globalOptions) *cobra.Command {
	var (
		req    expand.Request
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "expand QUERY...",
		Short: "Expand a query with grams from its feedback documents",
		Long: `Retrieves the top feedback documents for QUERY, builds the gram
co-occurrence graph and prints the grams ranked by weight. Flags left at zero
use the expansion section of the config.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, router, err := opts.openRouter(cmd)
			if err != nil {
				return err
			}
			defer router.Close()

			src := source.New(router, source.Config{
				Timeout:  cfg.Search.TimeoutPerShard,
				Attempts: cfg.Search.RetrievalAttempts,
			})
			svc := expand.New(src.Sources(), cfg.Expansion)
			req.Query = strings.Join(args, " ")
			resp, err := svc.Expand(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			return printExpansion(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().IntVar(&req.FeedbackDocs, "docs", 0, "number of feedback documents")
	cmd.Flags().IntVar(&req.MaxGrams, "grams", 0, "longest gram to extract")
	cmd.Flags().StringVar(&req.Scorer, "scorer", "", "randomwalk or languagemodel")
	cmd.Flags().IntVar(&req.Top, "top", 0, "number of grams to print")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response as JSON")
	return cmd
}

func printExpansion(w io.Writer, resp *expand.Response) error {
	fmt.Fprintf(w, "query:      %s\n", resp.NormalizedQuery)
	fmt.Fprintf(w, "scorer:     %s\n", resp.Scorer)
	fmt.Fprintf(w, "vocabulary: %d\n", resp.Vocabulary)
	if resp.Saturated > 0 {
		fmt.Fprintf(w, "saturated:  %d\n", resp.Saturated)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WEIGHT\tGRAM")
	for _, g := range resp.Grams {
		fmt.Fprintf(tw, "%.6g\t%s\n", g.Weight, g.Text)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "POSTERIOR\tDOCUMENT")
	for _, r := range resp.Results {
		fmt.Fprintf(tw, "%.6f\t%s\n", r.Posterior, r.DocID)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
