package crawler

import (
	"context"
	"time"

	"sjsage522/listingworker/internal/catalog"
	"sjsage522/listingworker/internal/models"
	"sjsage522/listingworker/internal/store"
	"sjsage522/listingworker/pkg/retry"
)

// DetailMode decides which catalog items get their detail page fetched
type DetailMode string

const (
	DetailsNone    DetailMode = "none"
	DetailsAll     DetailMode = "all"
	DetailsNewOnly DetailMode = "new-only"
)

// Stop reasons recorded in Stats
const (
	StopMaxPages   = "max pages reached"
	StopEmptyPage  = "empty page"
	StopPageFailed = "page failed"
	StopSaturated  = "saturated"
	StopCancelled  = "cancelled"
)

// SaturationPages is how many consecutive pages without a new listing end a run
const SaturationPages = 3

// Searcher fetches one catalog page
type Searcher interface {
	Search(ctx context.Context, catalogURL string, perPage int) ([]models.CatalogItem, error)
}

// DetailSource enriches catalog items with their detail pages. Items it
// could not enrich are absent from the result.
type DetailSource interface {
	EnrichAll(ctx context.Context, urls []string) map[string]*models.Detail
}

// Store is the persistence the crawl loop needs
type Store interface {
	ListingExists(ctx context.Context, url string) (bool, error)
	SaveListing(ctx context.Context, in models.ListingInput) (store.SaveResult, error)
	DeactivateStale(ctx context.Context, olderThan time.Duration) (int64, error)
	CountActive(ctx context.Context) (int64, error)
}

// Options configures one crawl of one locale
type Options struct {
	Locale string
	// CatalogURL is the catalog page without pagination.
	CatalogURL string
	Filters    catalog.Filters
	MaxPages   int
	PerPage    int
	// Delay separates pages; items are separated by Delay plus a small jitter.
	Delay      time.Duration
	Details    DetailMode
	Policy     retry.Policy
	StaleAfter time.Duration
	Source     string
	// Sleep is the delay primitive, replaceable in tests.
	Sleep retry.SleepFunc
}

// Stats summarizes a crawl
type Stats struct {
	Locale      string
	Pages       int
	Processed   int
	New         int
	Updated     int
	Failed      int
	Enriched    int
	PriceRows   int
	Deactivated int64
	ActiveTotal int64
	StopReason  string
	Elapsed     time.Duration
}
