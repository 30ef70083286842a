// Command expandctl indexes a directory of text files and runs expansions
// and searches against the index without starting the service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/graph-query-expansion/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	dataDir    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "expandctl",
		Short: "Index documents and expand queries from the command line",
		Long: `expandctl works directly on an index directory.

Examples:
  expandctl --data-dir /tmp/idx index ./corpus
  expandctl --data-dir /tmp/idx expand "random walk" --grams 3 --top 20
  expandctl --data-dir /tmp/idx search "graph walk" --json`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (defaults are used when empty)")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "index directory, overrides indexer.dataDir")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(
		newIndexCmd(opts),
		newExpandCmd(opts),
		newSearchCmd(opts),
	)
	return root
}

func (o *globalOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dataDir != "" {
		cfg.Indexer.DataDir = o.dataDir
	}
	logger.SetupWriter(cmd.ErrOrStderr(), o.logLevel, "text")
	return cfg, nil
}

func (o *globalOptions) openRouter(cmd *cobra.Command) (*config.Config, *shard.Router, error) {
	cfg, err := o.load(cmd)
	if err != nil {
		return nil, nil, err
	}
	router, err := shard.NewRouter(cfg.Indexer, cfg.Indexer.NumShards)
	if err != nil {
		return nil, nil, fmt.Errorf("opening index at %s: %w", cfg.Indexer.DataDir, err)
	}
	return cfg, router, nil
}
