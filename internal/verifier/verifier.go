// Package verifier re-checks listings that have not been seen for a while and
// records whether they are still available, sold, or removed.
package verifier

import (
	"context"
	"net/http"
	"strings"
	"time"

	"sjsage522/listingworker/helpers"
	"sjsage522/listingworker/internal/models"
	"sjsage522/listingworker/internal/store"
	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/pkg/errors"
	"sjsage522/listingworker/pkg/retry"

	"github.com/PuerkitoBio/goquery"
)

const provider = "verifier"

// Defaults for a verification batch
const (
	DefaultBatchSize = 100
	DefaultSince     = 24 * time.Hour
	DefaultDelay     = 2 * time.Second
	delayJitter      = 500 * time.Millisecond
)

// soldKeywords is the "sold" badge text per locale
var soldKeywords = []string{"Predané", "Sprzedane", "Prodáno", "Sold"}

// Verdict is the classified state of a listing page
type Verdict string

const (
	VerdictAvailable Verdict = "available"
	VerdictSold      Verdict = "sold"
	VerdictRemoved   Verdict = "removed"
)

// Update returns the status written for a verdict. A removed listing gives no
// evidence about being sold, so is_sold is left alone.
func (v Verdict) Update() models.StatusUpdate {
	switch v {
	case VerdictSold:
		sold := true
		return models.StatusUpdate{IsVisible: false, IsActive: false, IsSold: &sold}
	case VerdictRemoved:
		return models.StatusUpdate{IsVisible: false, IsActive: false}
	}
	return models.StatusUpdate{IsVisible: true, IsActive: true}
}

// Store is what the verifier reads and writes
type Store interface {
	StaleListings(ctx context.Context, since time.Duration, includeInactive bool, limit int) ([]store.StatusCandidate, error)
	UpdateStatus(ctx context.Context, id int64, u models.StatusUpdate) error
}

// Options configures one verification batch
type Options struct {
	BatchSize       int
	Since           time.Duration
	Delay           time.Duration
	IncludeInactive bool
	Timeout         time.Duration
	Sleep           retry.SleepFunc
}

// Stats summarizes a batch
type Stats struct {
	Checked   int
	Available int
	Sold      int
	Removed   int
	Failed    int
}

// Verifier checks listing pages one at a time
type Verifier struct {
	store    Store
	client   *http.Client
	failures helpers.LoggerInterface
	opts     Options
	log      *logger.Logger
}

// New creates a verifier. failures may be nil.
func New(st Store, failures helpers.LoggerInterface, opts Options) *Verifier {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Since <= 0 {
		opts.Since = DefaultSince
	}
	if opts.Delay < 0 {
		opts.Delay = 0
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

	return &Verifier{
		store:    st,
		client:   &http.Client{Timeout: opts.Timeout},
		failures: failures,
		opts:     opts,
		log:      logger.ForVerifier(),
	}
}

// Run checks one batch of stale listings. A failed check is logged and
// skipped; only failing to load the batch is returned.
func (v *Verifier) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	candidates, err := v.store.StaleListings(ctx, v.opts.Since, v.opts.IncludeInactive, v.opts.BatchSize)
	if err != nil {
		return stats, err
	}
	v.log.Info().
		Int("candidates", len(candidates)).
		Dur("since", v.opts.Since).
		Bool("include_inactive", v.opts.IncludeInactive).
		Msg("Status verification started")

	for i, c := range candidates {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++

		verdict, err := v.Check(ctx, c.URL)
		if err == nil {
			err = v.store.UpdateStatus(ctx, c.ID, verdict.Update())
		}
		if err != nil {
			stats.Failed++
			v.log.Warn().Err(err).Int64("id", c.ID).Str("url", c.URL).Msg("Status check skipped")
			v.failures.LogError(provider, err)
		} else {
			switch verdict {
			case VerdictSold:
				stats.Sold++
			case VerdictRemoved:
				stats.Removed++
			default:
				stats.Available++
			}
			v.log.Debug().Int64("id", c.ID).Str("url", c.URL).Str("verdict", string(verdict)).Msg("Status checked")
		}

		if i < len(candidates)-1 {
			if err := v.opts.Sleep(ctx, v.opts.Delay+helpers.Jitter(delayJitter)); err != nil {
				return stats, err
			}
		}
	}

	if stats.Failed > 0 {
		v.failures.LogInfo("status verification finished: %d of %d checks failed", stats.Failed, stats.Checked)
	}
	v.log.Info().
		Int("checked", stats.Checked).
		Int("available", stats.Available).
		Int("sold", stats.Sold).
		Int("removed", stats.Removed).
		Int("failed", stats.Failed).
		Msg("Status verification finished")
	return stats, nil
}

// Check fetches a listing page and classifies it
func (v *Verifier) Check(ctx context.Context, url string) (Verdict, error) {
	header := http.Header{}
	header.Set("User-Agent", helpers.DesktopUserAgent)

	page, err := helpers.FetchPage(ctx, v.client, url, header, nil)
	if err != nil {
		return "", err
	}
	if err := helpers.CheckStatus(provider, url, page.Status, ""); err != nil {
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			return VerdictRemoved, nil
		}
		return "", err
	}

	sold, err := HasSoldBadge(page.Body)
	if err != nil {
		return "", errors.NewParsing(provider, "parse "+url, err)
	}
	if sold {
		return VerdictSold, nil
	}
	return VerdictAvailable, nil
}

// HasSoldBadge reports whether any text node in the body is exactly a sold
// keyword, ignoring case and surrounding space. A badge that also wraps an
// icon element still counts.
func HasSoldBadge(html string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, err
	}

	found := false
	doc.Find("body, body *").Contents().EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) != "#text" {
			return true
		}
		text := strings.TrimSpace(s.Text())
		for _, kw := range soldKeywords {
			if strings.EqualFold(text, kw) {
				found = true
				return false
			}
		}
		return true
	})
	return found, nil
}
