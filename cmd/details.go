package cmd

import (
	"context"
	"time"

	"sjsage522/listingworker/config"
	"sjsage522/listingworker/internal/session"
	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/services/worker"

	"github.com/spf13/cobra"
)

type detailParams struct {
	BatchSize   int
	Source      string
	Limit       int
	Locale      string
	Warmup      bool
	Delay       float64
	Concurrency int
}

func scrapeDetailsCommand() *cobra.Command {
	p := detailParams{}
	var noWarmup bool

	cmd := &cobra.Command{
		Use:   "scrape-details",
		Short: "Backfill missing detail fields of active listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if noWarmup {
				p.Warmup = false
			}
			return runScrapeDetails(cmd.Context(), p)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&p.BatchSize, "batch-size", worker.DefaultBatchSize, "Number of listings to process")
	flags.StringVar(&p.Source, "source", "", "Only listings from this source code")
	flags.IntVar(&p.Limit, "limit", 0, "Maximum listings to crawl, overrides --batch-size when set")
	flags.StringVar(&p.Locale, "locale", "sk", "Locale used for warmup requests")
	flags.BoolVar(&p.Warmup, "warmup", true, "Warm up the session before crawling")
	flags.BoolVar(&noWarmup, "no-warmup", false, "Reuse the stored cookies without warming up")
	flags.Float64Var(&p.Delay, "delay", 0, "Minimum delay in seconds between requests (0 uses 0.2-0.6s)")
	flags.IntVar(&p.Concurrency, "concurrency", worker.DefaultConcurrency, "Concurrent detail requests")

	return cmd
}

// batch is the number of candidates to load; --limit wins when set
func (p detailParams) batch() int {
	if p.Limit > 0 {
		return p.Limit
	}
	return p.BatchSize
}

func runScrapeDetails(ctx context.Context, p detailParams) error {
	services, err := initializeServices(ctx, config.LoadConfig())
	if err != nil {
		return err
	}
	defer services.Cleanup()

	opts := worker.Options{
		BatchSize:   p.batch(),
		Source:      p.Source,
		Concurrency: p.Concurrency,
		Warmup:      p.Warmup,
		CookiesFile: session.CookiePath(services.Config.CookiesFile, p.Locale),
		Timeout:     services.Config.HTTPTimeout,
	}
	if p.Delay > 0 {
		opts.MinDelay = time.Duration(p.Delay * float64(time.Second))
		opts.MaxDelay = opts.MinDelay + worker.DefaultMaxDelay - worker.DefaultMinDelay
	}

	w := worker.NewWorker(services.Store, services.newSession(session.BaseURL(p.Locale), p.Locale, false), services.Failures, opts)
	stats, err := w.Run(ctx)
	if err != nil {
		return err
	}

	logger.Default.Info().
		Int("candidates", stats.Candidates).
		Int("updated", stats.Updated).
		Int("complete", stats.Complete).
		Int("failed", stats.Failed+stats.Abandoned).
		Msg("Detail backfill done")
	return nil
}
