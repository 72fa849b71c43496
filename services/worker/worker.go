// Package worker is the detail backfill worker: it revisits active listings
// whose detail fields are incomplete and fills them from their detail pages.
package worker

import (
	"context"
	"net/http"
	"sync"
	"time"

	"sjsage522/listingworker/helpers"
	"sjsage522/listingworker/internal/models"
	"sjsage522/listingworker/internal/parser"
	"sjsage522/listingworker/internal/session"
	"sjsage522/listingworker/internal/store"
	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/pkg/errors"
	"sjsage522/listingworker/pkg/retry"
)

const provider = "backfill"

// Defaults for a backfill batch
const (
	DefaultBatchSize   = 100
	DefaultConcurrency = 8
	DefaultMaxRetries  = 3
	DefaultMinDelay    = 200 * time.Millisecond
	DefaultMaxDelay    = 600 * time.Millisecond
)

// Store is what the backfill reads and writes
type Store interface {
	DetailCandidates(ctx context.Context, source string, limit int) ([]store.DetailCandidate, error)
	ApplyDetails(ctx context.Context, id int64, u models.DetailUpdate) (store.DetailResult, error)
}

// Session provides warmed-up cookies
type Session interface {
	Warmup(ctx context.Context) bool
	Cookies() []*http.Cookie
}

// Options configures a backfill batch
type Options struct {
	BatchSize   int
	Source      string
	Concurrency int
	// Warmup refreshes the session before the batch; otherwise cookies are
	// read from CookiesFile.
	Warmup      bool
	CookiesFile string
	// MaxRetries caps the fresh-header retries after a 403/429.
	MaxRetries int
	MinDelay   time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
	Sleep      retry.SleepFunc
}

// Stats summarizes a batch
type Stats struct {
	Candidates int
	Updated    int
	Complete   int
	Unchanged  int
	Failed     int
	Abandoned  int
}

// Worker handles the backfill process
type Worker struct {
	store    Store
	session  Session
	client   *http.Client
	failures helpers.LoggerInterface
	opts     Options
	log      *logger.Logger

	mu    sync.Mutex
	stats Stats
}

// NewWorker creates a new worker. sess and failures may be nil.
func NewWorker(st Store, sess Session, failures helpers.LoggerInterface, opts Options) *Worker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.MinDelay <= 0 && opts.MaxDelay <= 0 {
		opts.MinDelay, opts.MaxDelay = DefaultMinDelay, DefaultMaxDelay
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	if failures == nil {
		failures = helpers.NopLogger{}
	}

	return &Worker{
		store:    st,
		session:  sess,
		client:   &http.Client{Timeout: opts.Timeout},
		failures: failures,
		opts:     opts,
		log:      logger.ForWorker(),
	}
}

// Run processes one batch of candidates
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	w.stats = Stats{}
	cookies := w.cookies(ctx)

	candidates, err := w.store.DetailCandidates(ctx, w.opts.Source, w.opts.BatchSize)
	if err != nil {
		return Stats{}, err
	}
	w.stats.Candidates = len(candidates)
	w.log.Info().
		Int("candidates", len(candidates)).
		Str("source", w.opts.Source).
		Int("concurrency", w.opts.Concurrency).
		Int("cookies", len(cookies)).
		Msg("Backfill started")

	jobs := make(chan store.DetailCandidate)
	var wg sync.WaitGroup
	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				w.process(ctx, c, cookies)
			}
		}()
	}

feed:
	for _, c := range candidates {
		select {
		case jobs <- c:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	stats := w.snapshot()
	if stats.Failed > 0 || stats.Abandoned > 0 {
		w.failures.LogInfo("backfill %s finished: %d of %d candidates failed, %d abandoned after blocks",
			w.opts.Source, stats.Failed, stats.Candidates, stats.Abandoned)
	}
	w.log.Info().
		Int("updated", stats.Updated).
		Int("complete", stats.Complete).
		Int("unchanged", stats.Unchanged).
		Int("failed", stats.Failed).
		Int("abandoned", stats.Abandoned).
		Msg("Backfill finished")
	return stats, ctx.Err()
}

func (w *Worker) cookies(ctx context.Context) []*http.Cookie {
	if w.opts.Warmup && w.session != nil {
		if w.session.Warmup(ctx) {
			return w.session.Cookies()
		}
		w.log.Warn().Msg("Warmup failed, falling back to stored cookies")
	}
	if w.opts.CookiesFile == "" {
		return nil
	}
	cookies, err := session.LoadCookies(w.opts.CookiesFile)
	if err != nil {
		w.log.Warn().Err(err).Str("file", w.opts.CookiesFile).Msg("Failed to load cookies")
		return nil
	}
	return cookies
}

func (w *Worker) process(ctx context.Context, c store.DetailCandidate, cookies []*http.Cookie) {
	if err := w.opts.Sleep(ctx, w.delay()); err != nil {
		return
	}

	html, err := w.fetch(ctx, c.URL, cookies)
	if err != nil {
		w.fail(c, err, errors.IsType(err, errors.ErrorTypeRateLimit))
		return
	}

	detail, err := parser.ParseDetail(html)
	if err != nil {
		w.fail(c, err, false)
		return
	}

	res, err := w.store.ApplyDetails(ctx, c.ID, models.DetailUpdateFrom(detail))
	if err != nil {
		w.fail(c, err, false)
		return
	}

	w.mu.Lock()
	switch {
	case res.Updated:
		w.stats.Updated++
	default:
		w.stats.Unchanged++
	}
	if res.Complete {
		w.stats.Complete++
	}
	w.mu.Unlock()

	event := w.log.Info()
	if !res.Complete {
		event = w.log.Warn().Strs("missing", res.Missing)
	}
	event.Int64("id", c.ID).Str("url", c.URL).Bool("updated", res.Updated).Msg("Details backfilled")
}

// fetch gets a detail page. Transient failures (403/429, 5xx, network
// errors) are retried with fresh headers up to MaxRetries times; anything
// permanent is returned at once.
func (w *Worker) fetch(ctx context.Context, url string, cookies []*http.Cookie) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= w.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			w.log.Debug().Str("url", url).Int("attempt", attempt+1).Err(lastErr).Msg("Retrying with fresh headers")
			if err := w.opts.Sleep(ctx, w.delay()); err != nil {
				return "", err
			}
		}

		page, err := helpers.FetchWithRandomHeaders(ctx, w.client, url, cookies)
		if err == nil {
			err = helpers.CheckStatus(provider, url, page.Status, "")
			if err == nil {
				return page.Body, nil
			}
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Classify(err) != errors.ClassTransient {
			return "", err
		}
	}
	return "", lastErr
}

func (w *Worker) delay() time.Duration {
	return w.opts.MinDelay + helpers.Jitter(w.opts.MaxDelay-w.opts.MinDelay)
}

func (w *Worker) fail(c store.DetailCandidate, err error, abandoned bool) {
	w.mu.Lock()
	if abandoned {
		w.stats.Abandoned++
	} else {
		w.stats.Failed++
	}
	w.mu.Unlock()

	w.log.WithError(err).Warn().Int64("id", c.ID).Str("url", c.URL).Bool("abandoned", abandoned).Msg("Backfill item skipped")
	w.failures.LogError(provider, err)
}

func (w *Worker) snapshot() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
