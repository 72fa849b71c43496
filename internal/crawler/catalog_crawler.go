// Package crawler drives catalog pagination: it fetches pages, decides which
// items need their detail page, persists every item and stops early once the
// catalog only returns listings it already knows.
package crawler

import (
	"context"
	"strings"
	"time"

	"sjsage522/listingworker/helpers"
	"sjsage522/listingworker/internal/catalog"
	"sjsage522/listingworker/internal/models"
	"sjsage522/listingworker/internal/store"
	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/pkg/retry"
)

const (
	defaultMaxPages = 5
	defaultPerPage  = 24
	itemJitter      = 500 * time.Millisecond
	defaultSource   = "vinted"
)

// CatalogCrawler crawls one locale's catalog
type CatalogCrawler struct {
	searcher Searcher
	details  DetailSource
	store    Store
	failures helpers.LoggerInterface
	opts     Options
	log      *logger.Logger
	now      func() time.Time
}

// New creates a catalog crawler. details may be nil when opts.Details is
// DetailsNone; failures may be nil.
func New(searcher Searcher, details DetailSource, st Store, failures helpers.LoggerInterface, opts Options) *CatalogCrawler {
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	if opts.PerPage <= 0 {
		opts.PerPage = defaultPerPage
	}
	if opts.Details == "" || details == nil {
		opts.Details = DetailsNone
	}
	if opts.Source == "" {
		opts.Source = defaultSource
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = store.DefaultStaleAfter
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	if opts.Policy.Attempts == 0 {
		opts.Policy = retry.CatalogPolicy(0)
	}
	if opts.Policy.Sleep == nil {
		opts.Policy.Sleep = opts.Sleep
	}
	if failures == nil {
		failures = helpers.NopLogger{}
	}

	log := logger.ForCrawler(opts.Locale)
	if opts.Policy.Logger == nil {
		opts.Policy.Logger = log
	}

	return &CatalogCrawler{
		searcher: searcher,
		details:  details,
		store:    st,
		failures: failures,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// Run crawls pages 1..MaxPages. Per-item failures are counted, never
// returned; only cancellation ends a run with an error.
func (c *CatalogCrawler) Run(ctx context.Context) (Stats, error) {
	stats := Stats{Locale: c.opts.Locale, StopReason: StopMaxPages}
	start := c.now()
	eta := newETA(c.opts.MaxPages)
	saturated := 0

	c.log.Info().
		Str("url", c.opts.CatalogURL).
		Int("max_pages", c.opts.MaxPages).
		Int("per_page", c.opts.PerPage).
		Str("details", string(c.opts.Details)).
		Msg("Crawl started")

	for page := 1; page <= c.opts.MaxPages; page++ {
		if ctx.Err() != nil {
			stats.StopReason = StopCancelled
			break
		}
		pageStart := c.now()

		pageURL, err := catalog.WithPage(c.opts.CatalogURL, page)
		if err != nil {
			c.log.Error().Err(err).Str("url", c.opts.CatalogURL).Msg("Invalid catalog URL")
			stats.StopReason = StopPageFailed
			break
		}

		items, err := retry.Do(ctx, c.opts.Policy, func(ctx context.Context) ([]models.CatalogItem, error) {
			return c.searcher.Search(ctx, pageURL, c.opts.PerPage)
		})
		if err != nil {
			if ctx.Err() != nil {
				stats.StopReason = StopCancelled
				break
			}
			c.log.Error().Err(err).Int("page", page).Str("url", pageURL).Msg("Catalog page failed, stopping")
			c.failures.LogError("crawler/"+c.opts.Locale, err)
			stats.StopReason = StopPageFailed
			break
		}
		stats.Pages = page

		if len(items) == 0 {
			c.log.Info().Int("page", page).Msg("Empty catalog page, stopping")
			stats.StopReason = StopEmptyPage
			break
		}

		created := c.processPage(ctx, items, &stats)
		if created == 0 {
			saturated++
		} else {
			saturated = 0
		}

		eta.record(c.now().Sub(pageStart))
		c.log.Info().
			Int("page", page).
			Int("items", len(items)).
			Int("new", created).
			Int("processed", stats.Processed).
			Dur("eta", eta.remaining(page)).
			Msg("Page processed")

		if saturated >= SaturationPages {
			c.log.Info().
				Int("page", page).
				Int("pages_without_new", saturated).
				Msg("Catalog saturated with known listings, stopping")
			stats.StopReason = StopSaturated
			break
		}

		if page < c.opts.MaxPages {
			if err := c.opts.Sleep(ctx, c.opts.Delay); err != nil {
				stats.StopReason = StopCancelled
				break
			}
		}
	}

	c.reconcile(ctx, &stats)
	stats.Elapsed = c.now().Sub(start)

	if stats.Failed > 0 || stats.StopReason == StopPageFailed {
		c.failures.LogInfo("crawl %s stopped (%s) after %d pages: %d saved, %d failed",
			stats.Locale, stats.StopReason, stats.Pages, stats.Processed, stats.Failed)
	}

	if stats.StopReason == StopCancelled {
		return stats, ctx.Err()
	}
	return stats, nil
}

// processPage enriches and persists one page and returns how many listings
// were new.
func (c *CatalogCrawler) processPage(ctx context.Context, items []models.CatalogItem, stats *Stats) int {
	var toEnrich []string
	for _, item := range items {
		if c.needsDetails(ctx, item) {
			toEnrich = append(toEnrich, item.URL)
		}
	}

	var details map[string]*models.Detail
	if len(toEnrich) > 0 {
		details = c.details.EnrichAll(ctx, toEnrich)
		stats.Enriched += len(details)
	}

	created := 0
	for i, item := range items {
		if ctx.Err() != nil {
			return created
		}

		in := BuildInput(item, details[item.URL], c.opts.Filters, c.opts.Source)
		res, err := c.store.SaveListing(ctx, in)
		if err != nil {
			stats.Failed++
			c.log.Error().Err(err).Str("url", item.URL).Msg("Failed to save listing")
			c.failures.LogError("store", err)
		} else {
			stats.Processed++
			if res.WasNew {
				stats.New++
				created++
			} else {
				stats.Updated++
			}
			if res.PriceAppended {
				stats.PriceRows++
			}
		}

		if i < len(items)-1 {
			if err := c.opts.Sleep(ctx, c.opts.Delay+helpers.Jitter(itemJitter)); err != nil {
				return created
			}
		}
	}
	return created
}

func (c *CatalogCrawler) needsDetails(ctx context.Context, item models.CatalogItem) bool {
	switch c.opts.Details {
	case DetailsAll:
		return true
	case DetailsNewOnly:
		exists, err := c.store.ListingExists(ctx, item.URL)
		if err != nil {
			c.log.Warn().Err(err).Str("url", item.URL).Msg("Existence check failed, treating as new")
			return true
		}
		return !exists
	}
	return false
}

// reconcile runs the stale sweep when the crawl saved anything
func (c *CatalogCrawler) reconcile(ctx context.Context, stats *Stats) {
	if stats.Processed == 0 || ctx.Err() != nil {
		return
	}

	n, err := c.store.DeactivateStale(ctx, c.opts.StaleAfter)
	if err != nil {
		c.log.Error().Err(err).Msg("Reconciliation sweep failed")
	} else {
		stats.Deactivated = n
	}

	if total, err := c.store.CountActive(ctx); err == nil {
		stats.ActiveTotal = total
	}
}

// BuildInput turns a catalog header plus an optional detail page into the
// partial update persisted for the item.
func BuildInput(item models.CatalogItem, d *models.Detail, filters catalog.Filters, source string) models.ListingInput {
	if d == nil {
		d = &models.Detail{}
	}
	title := strings.TrimSpace(item.Title)

	in := models.ListingInput{
		MarketplaceID: item.MarketplaceID,
		URL:           item.URL,
		Title:         optString(title),
		OriginalTitle: optString(title),
		Currency:      optString(item.Currency),
		PriceCents:    item.PriceCents(),
		TotalCents:    item.PriceCents(),
		ShippingCents: d.ShippingCents,
		Brand:         optString(helpers.StandardizeBrand(firstNonEmpty(d.Brand, item.Brand))),
		Size:          optString(firstNonEmpty(item.Size, d.Size)),
		Condition:     optString(firstNonEmpty(item.Condition, d.Condition)),
		Location:      optString(d.Location),
		Description:   optString(d.Description),
		SellerID:      optString(item.SellerID),
		SellerName:    optString(firstNonEmpty(item.SellerName, d.SellerName)),
		Language:      optString(firstNonEmpty(d.Language, helpers.DetectLanguage(title))),
		Source:        optString(source),
		PlatformIDs:   filters.Platforms,
		Visible:       true,
	}

	photos := d.Photos
	if len(photos) == 0 && item.Photo != "" {
		photos = []string{item.Photo}
	}
	in.Photos = photos
	if len(photos) > 0 {
		in.Photo = optString(firstNonEmpty(item.Photo, photos[0]))
	}

	if len(filters.Categories) > 0 {
		id := filters.Categories[0]
		in.CategoryID = &id
	}
	return in
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
