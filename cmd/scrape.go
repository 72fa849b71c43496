package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"sjsage522/listingworker/config"
	"sjsage522/listingworker/internal/catalog"
	"sjsage522/listingworker/internal/crawler"
	"sjsage522/listingworker/internal/enricher"
	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/pkg/errors"
	"sjsage522/listingworker/pkg/retry"
	"sjsage522/listingworker/services/status"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// scrapeParams are the crawl parameters of one scrape invocation
type scrapeParams struct {
	SearchText string
	Categories []int64
	Platforms  []int64
	Extra      []string
	Order      string

	MaxPages int
	PerPage  int
	// Delay is in seconds.
	Delay   float64
	Locales []string

	FetchDetails      bool
	DetailsForNewOnly bool
	NoProxy           bool
	// ErrorWait is the first rate-limit wait in minutes; 0 keeps the policy default.
	ErrorWait  int
	MaxRetries int
	BaseURL    string

	DetailsStrategy    string
	DetailsConcurrency int
	RunID              string
}

func (p scrapeParams) validate() error {
	if p.SearchText == "" && len(p.Categories) == 0 && len(p.Platforms) == 0 {
		return errors.NewValidation("cli", "provide at least one of --search-text, --category or --platform")
	}
	if len(p.Locales) == 0 {
		return errors.NewValidation("cli", "at least one --locale is required")
	}
	if p.MaxPages < 1 {
		return errors.NewValidation("cli", "--max-pages must be at least 1")
	}
	if p.PerPage < 1 {
		return errors.NewValidation("cli", "--per-page must be at least 1")
	}
	if p.Delay < 0 {
		return errors.NewValidation("cli", "--delay must not be negative")
	}
	switch p.DetailsStrategy {
	case enricher.StrategyBrowser, enricher.StrategyHTTP:
	default:
		return errors.NewValidation("cli", fmt.Sprintf("unknown --details-strategy %q", p.DetailsStrategy))
	}
	return nil
}

// detailMode maps the two detail flags. --details-for-new-only implies
// fetching details.
func (p scrapeParams) detailMode() crawler.DetailMode {
	switch {
	case p.DetailsForNewOnly:
		return crawler.DetailsNewOnly
	case p.FetchDetails:
		return crawler.DetailsAll
	}
	return crawler.DetailsNone
}

func (p scrapeParams) filters() catalog.Filters {
	return catalog.Filters{
		SearchText: p.SearchText,
		Categories: p.Categories,
		Platforms:  p.Platforms,
		Extra:      p.Extra,
		Order:      p.Order,
	}
}

func (p scrapeParams) catalogURL(locale string) string {
	base := strings.TrimSpace(p.BaseURL)
	if base == "" {
		base = catalog.CatalogURL(locale)
	}
	return catalog.BuildCatalogURL(base, p.filters())
}

func (p scrapeParams) policy() retry.Policy {
	policy := retry.CatalogPolicy(time.Duration(p.ErrorWait) * time.Minute)
	if p.MaxRetries > 0 {
		policy.Attempts = p.MaxRetries + 1
	}
	return policy
}

func (p scrapeParams) delay() time.Duration {
	return time.Duration(p.Delay * float64(time.Second))
}

func scrapeCommand() *cobra.Command {
	p := scrapeParams{}
	var configID string

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape catalog listings and save them with price tracking",
		Long: `Scrape catalog pages for every locale and upsert the listings, appending a
price history row whenever the price changes.

Examples:
  # Catalog only
  listingworker scrape --search-text ps5 -c 3026 -p 1281 --no-proxy --max-pages 10

  # Details for new listings through plain HTTP
  listingworker scrape --search-text nintendo -c 3026 --details-for-new-only --details-strategy http

  # Several locales with a price filter
  listingworker scrape --search-text ps5 --locale sk --locale pl -e price_to=100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.RunID == "" {
				p.RunID = configID
			}
			if err := p.validate(); err != nil {
				return err
			}
			return runScrape(cmd.Context(), cmd.OutOrStdout(), p)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&p.SearchText, "search-text", "", "Search query, optional when -c or -p is given")
	flags.Int64SliceVarP(&p.Categories, "category", "c", nil, "Category ID (repeatable); the first one is stored on the listing")
	flags.Int64SliceVarP(&p.Platforms, "platform", "p", nil, "Video game platform ID (repeatable)")
	flags.StringArrayVarP(&p.Extra, "extra", "e", nil, "Extra query parameter as key=value (repeatable)")
	flags.StringVar(&p.Order, "order", "", "Sort order, e.g. newest_first, price_low_to_high")
	flags.IntVar(&p.MaxPages, "max-pages", 5, "Number of pages to scrape")
	flags.IntVar(&p.PerPage, "per-page", 24, "Items per page")
	flags.Float64Var(&p.Delay, "delay", 1.0, "Delay in seconds between pages and items")
	flags.StringSliceVar(&p.Locales, "locale", []string{"sk"}, "Locale to scrape (repeatable)")
	flags.BoolVar(&p.FetchDetails, "fetch-details", false, "Fetch detail pages for every item")
	flags.BoolVar(&p.DetailsForNewOnly, "details-for-new-only", false, "Fetch detail pages only for listings not yet stored")
	flags.BoolVar(&p.NoProxy, "no-proxy", false, "Never fall back to a public proxy during warmup")
	flags.IntVar(&p.ErrorWait, "error-wait", 0, "Minutes to wait after a rate limit before the first retry (0 uses 5 seconds)")
	flags.IntVar(&p.MaxRetries, "max-retries", 4, "Retries per catalog page after a transient failure")
	flags.StringVar(&p.BaseURL, "base-url", "", "Catalog URL override, e.g. https://www.vinted.com/catalog")
	flags.StringVar(&p.DetailsStrategy, "details-strategy", enricher.StrategyBrowser, "Detail fetch strategy: browser or http")
	flags.IntVar(&p.DetailsConcurrency, "details-concurrency", enricher.DefaultConcurrency, "Concurrent detail fetches")
	flags.StringVar(&p.RunID, "run-id", "", "Run identifier used for status reporting")
	flags.StringVar(&configID, "config-id", "", "Alias of --run-id")
	_ = flags.MarkHidden("config-id")

	return cmd
}

// runScrape crawls every locale in turn. The status reporter is connected
// before anything else so setup failures (database, browser) are reported.
func runScrape(ctx context.Context, out io.Writer, p scrapeParams) error {
	cfg := config.LoadConfig()

	var reporter status.Reporter = status.NopReporter{}
	if p.RunID != "" {
		reporter = newStatusReporter(ctx, cfg)
	}
	defer reporter.Close()

	return executeScrape(ctx, out, p, cfg, reporter, initializeServices)
}

// executeScrape runs one scrape against services built by setup. Per-item
// failures only show up in the counts.
func executeScrape(ctx context.Context, out io.Writer, p scrapeParams, cfg *config.Config, reporter status.Reporter, setup servicesFactory) error {
	fields := logger.Fields{"run": uuid.New().String()}
	if p.RunID != "" {
		fields["run_id"] = p.RunID
	}
	log := logger.Default.WithFields(fields)

	report := func(phase, message string, items *int) {
		if err := reporter.Report(ctx, p.RunID, phase, message, items); err != nil {
			log.Warn().Err(err).Str("status", phase).Msg("Failed to report run status")
		}
	}
	report(status.Queued, "Scrape accepted", nil)

	services, err := setup(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Service setup failed")
		report(status.Failed, err.Error(), nil)
		return err
	}
	defer services.Cleanup()

	mode := p.detailMode()
	var browser *enricher.BrowserFetcher
	if mode != crawler.DetailsNone && p.DetailsStrategy == enricher.StrategyBrowser {
		browser, err = enricher.NewBrowserFetcher(enricher.BrowserOptions{
			ExecPath:      services.Config.ChromeBin,
			ChallengeWait: services.Config.ChallengeWait,
		})
		if err != nil {
			report(status.Failed, err.Error(), nil)
			return err
		}
		defer browser.Close()
	}

	report(status.Running, fmt.Sprintf("Scraping %s", strings.Join(p.Locales, ", ")), nil)
	log.Info().
		Strs("locales", p.Locales).
		Str("details", string(mode)).
		Str("strategy", p.DetailsStrategy).
		Int("max_pages", p.MaxPages).
		Msg("Scrape started")

	var all []crawler.Stats
	var runErr error
	for _, locale := range p.Locales {
		sess := services.newSession(warmupRoot(p.BaseURL, locale), locale, !p.NoProxy)
		sess.Warmup(ctx)

		client := catalog.NewClient(catalog.Options{
			Timeout:  services.Config.HTTPTimeout,
			Cache:    services.Cache,
			CacheTTL: services.Config.CatalogCache,
		})
		client.SetCookies(sess.Cookies())

		var details crawler.DetailSource
		if mode != crawler.DetailsNone {
			var fetcher enricher.Fetcher = enricher.NewDirectFetcher(client)
			if browser != nil {
				fetcher = browser
			}
			details = enricher.New(fetcher, p.DetailsConcurrency, retry.DetailPolicy())
		}

		c := crawler.New(client, details, services.Store, services.Failures, crawler.Options{
			Locale:     locale,
			CatalogURL: p.catalogURL(locale),
			Filters:    p.filters(),
			MaxPages:   p.MaxPages,
			PerPage:    p.PerPage,
			Delay:      p.delay(),
			Details:    mode,
			Policy:     p.policy(),
			StaleAfter: services.Config.StaleAfter,
		})
		stats, err := c.Run(ctx)
		all = append(all, stats)
		if err != nil {
			runErr = err
			break
		}
	}

	crawler.RenderSummary(out, all)
	log.Debug().Interface("proxies", services.Proxies.Stats()).Msg("Proxy pool usage")

	processed := 0
	for _, s := range all {
		processed += s.Processed
	}
	if runErr != nil {
		report(status.Failed, runErr.Error(), &processed)
		return runErr
	}
	report(status.Success, fmt.Sprintf("Processed %d listings", processed), &processed)
	return nil
}
