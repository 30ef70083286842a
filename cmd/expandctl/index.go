package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/ingestion"
)

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var exts []string
	cmd := &cobra.Command{
		Use:   "index DIR",
		Short: "Index every matching file under DIR",
		Long: `Walks DIR and indexes each file whose extension matches --ext. The
document ID is the file path relative to DIR. Re-indexing a file replaces
the earlier version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, router, err := opts.openRouter(cmd)
			if err != nil {
				return err
			}
			defer router.Close()

			n, err := indexDir(cmd.Context(), consumer.NewIndexer(router, nil), args[0], exts)
			if err != nil {
				return err
			}
			if err := router.FlushAll(); err != nil {
				return fmt.Errorf("flushing index: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents (%d in index, %d shards)\n",
				n, router.TotalDocs(), router.NumShards())
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&exts, "ext", []string{".txt", ".md"}, "file extensions to index")
	return cmd
}

type documentIndexer interface {
	Index(ctx context.Context, event ingestion.IngestEvent) (int, error)
}

func indexDir(ctx context.Context, ix documentIndexer, root string, exts []string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !matchesExt(path, exts) {
			return nil
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		event := ingestion.IngestEvent{
			DocumentID: filepath.ToSlash(rel),
			Body:       string(body),
			IngestedAt: time.Now().UTC(),
		}
		if _, err := ix.Index(ctx, event); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("indexing %s: %w", root, err)
	}
	return n, nil
}

func matchesExt(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
