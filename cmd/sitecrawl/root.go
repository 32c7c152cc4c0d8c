package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/use-agent/sitecrawl/config"
)

type cfgKeyType string

const cfgKey cfgKeyType = "config"

// newRootCmd builds the command tree. Configuration and logging are set up
// once in PersistentPreRunE and handed to subcommands through the context.
func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "sitecrawl",
		Short: "Crawl a website into filtered markdown",
		Long: `sitecrawl fetches the pages of a single site breadth-first from a seed URL,
keeps the main content of every page as markdown, and stores the result set in
a cache that can be listed, reloaded and exported as CSV.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			initLogger(cfg.Log, cmd.ErrOrStderr())
			cmd.SetContext(context.WithValue(cmd.Context(), cfgKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides SITECRAWL_LOG_LEVEL)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newCacheCmd())
	return cmd
}

func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(cfgKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
