// Package enricher fetches and parses detail pages for catalog items.
package enricher

import (
	"context"
	"sync"

	"sjsage522/listingworker/internal/models"
	"sjsage522/listingworker/internal/parser"
	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/pkg/retry"
)

// Strategy names accepted by the CLI
const (
	StrategyBrowser = "browser"
	StrategyHTTP    = "http"
)

// DefaultConcurrency bounds concurrent detail fetches
const DefaultConcurrency = 2

// Fetcher returns the HTML of a detail page
type Fetcher interface {
	Name() string
	FetchHTML(ctx context.Context, url string) (string, error)
	Close() error
}

// DetailClient is the marketplace call used by the direct strategy
type DetailClient interface {
	Detail(ctx context.Context, url string) (string, error)
}

// DirectFetcher fetches detail pages over plain HTTP, without rendering
type DirectFetcher struct {
	client DetailClient
}

// NewDirectFetcher creates the direct strategy
func NewDirectFetcher(client DetailClient) *DirectFetcher {
	return &DirectFetcher{client: client}
}

// Name identifies the strategy in logs
func (d *DirectFetcher) Name() string { return StrategyHTTP }

// FetchHTML fetches url directly
func (d *DirectFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	return d.client.Detail(ctx, url)
}

// Close is a no-op; the client has nothing to release
func (d *DirectFetcher) Close() error { return nil }

// Enricher fetches detail pages through a Fetcher, at most Concurrency at a
// time, retrying transient failures under the detail policy.
type Enricher struct {
	fetcher Fetcher
	sem     chan struct{}
	policy  retry.Policy
	log     *logger.Logger
}

// New creates an enricher. concurrency below 1 uses DefaultConcurrency.
func New(fetcher Fetcher, concurrency int, policy retry.Policy) *Enricher {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	log := logger.ForEnricher().WithField("strategy", fetcher.Name())
	if policy.Logger == nil {
		policy.Logger = log
	}
	return &Enricher{
		fetcher: fetcher,
		sem:     make(chan struct{}, concurrency),
		policy:  policy,
		log:     log,
	}
}

// Enrich fetches and parses one detail page
func (e *Enricher) Enrich(ctx context.Context, url string) (*models.Detail, error) {
	html, err := retry.Do(ctx, e.policy, func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		defer func() { <-e.sem }()

		return e.fetcher.FetchHTML(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return parser.ParseDetail(html)
}

// EnrichAll fetches every URL concurrently within the bound. Failed items are
// logged and absent from the result, so the caller persists them with the
// fields it already has.
func (e *Enricher) EnrichAll(ctx context.Context, urls []string) map[string]*models.Detail {
	results := make(map[string]*models.Detail, len(urls))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()

			detail, err := e.Enrich(ctx, url)
			if err != nil {
				e.log.Warn().Err(err).Str("url", url).Msg("Detail enrichment failed")
				return
			}

			mu.Lock()
			results[url] = detail
			mu.Unlock()
		}(url)
	}

	wg.Wait()
	return results
}

// Close releases the fetcher
func (e *Enricher) Close() error {
	return e.fetcher.Close()
}
