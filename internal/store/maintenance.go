package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"sjsage522/listingworker/internal/models"
	"sjsage522/listingworker/pkg/errors"

	"github.com/jmoiron/sqlx"
)

// DefaultStaleAfter is the reconciliation threshold
const DefaultStaleAfter = 48 * time.Hour

// DeactivateStale marks active listings not seen within olderThan as inactive
// and returns how many rows changed.
func (s *Store) DeactivateStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = DefaultStaleAfter
	}
	cutoff := s.now().Add(-olderThan)

	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET is_active = FALSE WHERE is_active AND last_seen_at < $1`, cutoff)
	if err != nil {
		return 0, errors.NewPersistence(provider, "deactivate stale listings", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewPersistence(provider, "deactivate stale listings", err)
	}

	s.log.Info().
		Int64("deactivated", n).
		Time("cutoff", cutoff).
		Msg("Reconciliation sweep finished")
	return n, nil
}

// CountActive returns the number of active listings
func (s *Store) CountActive(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM listings WHERE is_active`); err != nil {
		return 0, errors.NewPersistence(provider, "count active listings", err)
	}
	return n, nil
}

// StatusCandidate is a listing due for a status check
type StatusCandidate struct {
	ID         int64     `db:"id"`
	URL        string    `db:"url"`
	LastSeenAt time.Time `db:"last_seen_at"`
}

// StaleListings returns listings not seen within since, oldest first. Only
// active listings are returned unless includeInactive is set.
func (s *Store) StaleListings(ctx context.Context, since time.Duration, includeInactive bool, limit int) ([]StatusCandidate, error) {
	query := `SELECT id, url, last_seen_at FROM listings WHERE last_seen_at < $1`
	if !includeInactive {
		query += ` AND is_active`
	}
	query += ` ORDER BY last_seen_at ASC LIMIT $2`

	var rows []StatusCandidate
	if err := s.db.SelectContext(ctx, &rows, query, s.now().Add(-since), limit); err != nil {
		return nil, errors.NewPersistence(provider, "select stale listings", err)
	}
	return rows, nil
}

// UpdateStatus writes a verifier verdict. is_sold can only be raised.
func (s *Store) UpdateStatus(ctx context.Context, id int64, u models.StatusUpdate) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE listings SET is_visible = $2, is_active = $3, is_sold = is_sold OR COALESCE($4, FALSE)
		WHERE id = $1`,
		id, u.IsVisible, u.IsActive, u.IsSold)
	if err != nil {
		return errors.NewPersistence(provider, "update status of listing "+strconv.FormatInt(id, 10), err)
	}
	return nil
}

// DetailCandidate is a listing the backfill worker should enrich
type DetailCandidate struct {
	ID  int64  `db:"id"`
	URL string `db:"url"`
}

// DetailCandidates returns active listings with incomplete details, most
// recently seen first. An empty source matches every source.
func (s *Store) DetailCandidates(ctx context.Context, source string, limit int) ([]DetailCandidate, error) {
	query := `SELECT id, url FROM listings WHERE is_active AND NOT details_scraped`
	args := []interface{}{}
	if source != "" {
		args = append(args, source)
		query += fmt.Sprintf(` AND source = $%d`, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY last_seen_at DESC LIMIT $%d`, len(args))

	var rows []DetailCandidate
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.NewPersistence(provider, "select detail candidates", err)
	}
	return rows, nil
}

// DetailResult reports what ApplyDetails did
type DetailResult struct {
	Updated  bool
	Complete bool
	Missing  []string
}

// ApplyDetails writes backfilled detail fields onto one listing and
// recomputes its completeness flag. Nothing is written when nothing changed.
func (s *Store) ApplyDetails(ctx context.Context, id int64, u models.DetailUpdate) (DetailResult, error) {
	var result DetailResult

	err := s.runInTx(ctx, func(tx *sqlx.Tx) error {
		l, err := getListing(ctx, tx, `SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		if l == nil {
			return errors.NewNotFound(provider, "listing "+strconv.FormatInt(id, 10))
		}

		m := MergeDetails(*l, u)
		result = DetailResult{Complete: m.Complete, Missing: m.Missing}
		if !m.Changed {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE listings SET shipping_cents = $2, brand = $3, location = $4, description = $5,
			seller_name = $6, photo = $7, photos = $8, details_scraped = $9
			WHERE id = $1`,
			id, m.Listing.ShippingCents, m.Listing.Brand, m.Listing.Location, m.Listing.Description,
			m.Listing.SellerName, m.Listing.Photo, m.Listing.Photos, m.Listing.DetailsScraped)
		if err != nil {
			return fmt.Errorf("update details: %w", err)
		}
		result.Updated = true
		return nil
	})
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			return DetailResult{}, err
		}
		return DetailResult{}, errors.NewPersistence(provider, "apply details to listing "+strconv.FormatInt(id, 10), err)
	}
	return result, nil
}
