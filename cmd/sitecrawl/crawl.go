package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/sitecrawl/crawl"
	"github.com/use-agent/sitecrawl/export"
	"github.com/use-agent/sitecrawl/models"
)

// progressInterval is how often a running crawl logs its progress.
const progressInterval = 2 * time.Second

type crawlFlags struct {
	maxPages int
	csvPath  string
	listPath string
}

func newCrawlCmd() *cobra.Command {
	var f crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl one site, or every site in a list file",
		Long: `Crawl fetches a site breadth-first from the given URL and stores the
filtered pages in the result cache. With --list, every http(s) URL found in the
file is crawled in turn, by default only its homepage.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if f.listPath != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args, f)
		},
	}
	cmd.Flags().IntVar(&f.maxPages, "max-pages", 0, "maximum pages per site (default SITECRAWL_DEFAULT_MAX_PAGES, or 1 with --list)")
	cmd.Flags().StringVar(&f.csvPath, "csv", "", "write the results as CSV to this file")
	cmd.Flags().StringVar(&f.listPath, "list", "", "file with one or more site URLs to crawl sequentially")
	return cmd
}

func runCrawl(cmd *cobra.Command, args []string, f crawlFlags) error {
	cfg, err := configFrom(cmd.Context())
	if err != nil {
		return err
	}

	seeds := args
	maxPages := f.maxPages
	if f.listPath != "" {
		if seeds, err = readURLListFile(f.listPath); err != nil {
			return err
		}
		if len(seeds) == 0 {
			return fmt.Errorf("no URLs found in %s", f.listPath)
		}
		if maxPages == 0 {
			maxPages = 1
		}
	}
	if maxPages == 0 {
		maxPages = cfg.Crawl.DefaultMaxPages
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		a.Close(ctx)
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var all []models.PageResult
	failed := 0
	for i, seed := range seeds {
		if ctx.Err() != nil {
			break
		}
		slog.Info("crawling site", "seed", seed, "site", i+1, "of", len(seeds))
		p, results, err := crawlOne(ctx, a.svc, seed, maxPages)
		if err != nil {
			if len(seeds) == 1 {
				return err
			}
			slog.Error("crawl not started", "seed", seed, "error", err)
			failed++
			continue
		}
		if p.State != models.JobCompleted {
			failed++
		}
		printSummary(cmd.OutOrStdout(), p)
		all = append(all, results...)
	}

	if f.csvPath != "" {
		if err := writeCSVFile(f.csvPath, all, cfg.Export.ContentBudget); err != nil {
			return err
		}
		slog.Info("results exported", "file", f.csvPath, "rows", len(all))
	}
	if failed == len(seeds) {
		return errors.New("no crawl completed")
	}
	return nil
}

// crawlOne runs a single job to completion, logging progress. Cancelling ctx
// cancels the job and waits for its in-flight pages.
func crawlOne(ctx context.Context, svc *crawl.Service, seed string, maxPages int) (models.Progress, []models.PageResult, error) {
	job, err := svc.Submit(crawl.SubmitRequest{SeedURL: seed, MaxPages: maxPages})
	if err != nil {
		return models.Progress{}, nil, err
	}

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-job.Done():
			return job.Progress(), job.Results(), nil
		case <-ctx.Done():
			slog.Info("interrupt received, cancelling crawl", "job_id", job.ID())
			job.Cancel()
			<-job.Done()
			return job.Progress(), job.Results(), nil
		case <-ticker.C:
			p := job.Progress()
			slog.Info("crawl progress",
				"job_id", p.JobID,
				"state", p.State,
				"fetched", p.Fetched,
				"discovered", p.Discovered,
				"percent", fmt.Sprintf("%.0f%%", p.PercentComplete*100),
			)
		}
	}
}

func printSummary(w io.Writer, p models.Progress) {
	fmt.Fprintf(w, "%s  %s  %d/%d pages ok", p.SeedURL, p.State, p.Succeeded, p.Fetched)
	if p.CacheID != "" {
		fmt.Fprintf(w, "  cache=%s", p.CacheID)
	}
	if p.CacheWarning != "" {
		fmt.Fprintf(w, "  cache-warning=%q", p.CacheWarning)
	}
	if p.Error != "" {
		fmt.Fprintf(w, "  error=%q", p.Error)
	}
	fmt.Fprintln(w)
}

func writeCSVFile(path string, results []models.PageResult, budget int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := export.WriteCSV(f, results, budget); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
