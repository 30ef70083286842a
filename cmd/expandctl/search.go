package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/searcher/parser"
)

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Rank documents with BM25",
		Long: `Runs QUERY against every shard. Words are combined with AND unless the
query contains OR; NOT excludes the word that follows it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, router, err := opts.openRouter(cmd)
			if err != nil {
				return err
			}
			defer router.Close()
			if limit <= 0 {
				limit = cfg.Search.DefaultLimit
			}

			exec := executor.New(executor.FromEngines(router.Engines()))
			result, err := exec.Execute(cmd.Context(), parser.Parse(strings.Join(args, " ")), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d hits\n\n", result.TotalHits)
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tDOCUMENT")
			for _, d := range result.Results {
				fmt.Fprintf(tw, "%.4f\t%s\n", d.Score, d.DocID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
