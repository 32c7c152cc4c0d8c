package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/use-agent/sitecrawl/cache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the result cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List cached crawls, newest first",
			Args:  cobra.NoArgs,
			RunE:  runCacheList,
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a cached crawl as JSON",
			Args:  cobra.ExactArgs(1),
			RunE:  runCacheShow,
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every cached crawl",
			Args:  cobra.NoArgs,
			RunE:  runCacheClear,
		},
	)
	return cmd
}

// openCache opens the configured cache without starting a crawl service.
func openCache(cmd *cobra.Command) (*cache.Cache, error) {
	cfg, err := configFrom(cmd.Context())
	if err != nil {
		return nil, err
	}
	return cache.Open(cfg.Cache)
}

func runCacheList(cmd *cobra.Command, _ []string) error {
	cc, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer cc.Close()

	entries, err := cc.List(cmd.Context())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDOMAIN\tCREATED\tSIZE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", e.ID, e.Domain, e.CreatedAt.Format("2006-01-02 15:04:05"), e.SizeBytes)
	}
	return tw.Flush()
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	cc, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer cc.Close()

	entry, err := cc.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(entry)
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	cc, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer cc.Close()

	if err := cc.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
	return nil
}
