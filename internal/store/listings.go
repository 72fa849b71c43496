package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"sjsage522/listingworker/internal/models"
	"sjsage522/listingworker/internal/taxonomy"
	"sjsage522/listingworker/pkg/errors"

	"github.com/jmoiron/sqlx"
)

const listingColumns = `id, marketplace_id, url, title, original_title, description, language, currency,
	price_cents, shipping_cents, total_cents, brand, size, condition, condition_id, location,
	seller_id, seller_name, photo, photos, category_id, platform_ids, source, source_id,
	is_active, is_visible, is_sold, details_scraped, first_seen_at, last_seen_at`

const insertListing = `INSERT INTO listings (
	marketplace_id, url, title, original_title, description, language, currency,
	price_cents, shipping_cents, total_cents, brand, size, condition, condition_id, location,
	seller_id, seller_name, photo, photos, category_id, platform_ids, source, source_id,
	is_active, is_visible, is_sold, details_scraped, first_seen_at, last_seen_at
) VALUES (
	:marketplace_id, :url, :title, :original_title, :description, :language, :currency,
	:price_cents, :shipping_cents, :total_cents, :brand, :size, :condition, :condition_id, :location,
	:seller_id, :seller_name, :photo, :photos, :category_id, :platform_ids, :source, :source_id,
	:is_active, :is_visible, :is_sold, :details_scraped, :first_seen_at, :last_seen_at
) RETURNING id`

const updateListing = `UPDATE listings SET
	marketplace_id = :marketplace_id, url = :url, title = :title, original_title = :original_title,
	description = :description, language = :language, currency = :currency,
	price_cents = :price_cents, shipping_cents = :shipping_cents, total_cents = :total_cents,
	brand = :brand, size = :size, condition = :condition, condition_id = :condition_id,
	location = :location, seller_id = :seller_id, seller_name = :seller_name,
	photo = :photo, photos = :photos, category_id = :category_id, platform_ids = :platform_ids,
	source = :source, source_id = :source_id,
	is_active = :is_active, is_visible = :is_visible, is_sold = is_sold OR :is_sold,
	details_scraped = :details_scraped, last_seen_at = :last_seen_at
WHERE id = :id`

// SaveResult describes what one upsert did
type SaveResult struct {
	ID            int64
	WasNew        bool
	PriceAppended bool
}

// SaveListing upserts one scraped listing and records its price, in one
// transaction. Identity is the marketplace ID when known, else the URL.
func (s *Store) SaveListing(ctx context.Context, in models.ListingInput) (SaveResult, error) {
	var result SaveResult
	if in.URL == "" {
		return result, errors.NewValidation(provider, "listing without url")
	}
	now := s.now()

	err := s.runInTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.resolveTaxonomy(ctx, tx, &in); err != nil {
			return err
		}

		existing, err := findForUpdate(ctx, tx, in)
		if err != nil {
			return err
		}

		merged := MergeListing(existing, in, now)
		if existing == nil {
			if err := namedGet(ctx, tx, &merged.ID, insertListing, merged); err != nil {
				return fmt.Errorf("insert listing: %w", err)
			}
			result.WasNew = true
		} else {
			if err := namedExec(ctx, tx, updateListing, merged); err != nil {
				return fmt.Errorf("update listing %d: %w", merged.ID, err)
			}
		}
		result.ID = merged.ID

		if in.PriceCents == nil {
			return nil
		}
		var last *models.PriceObservation
		if existing != nil {
			if last, err = lastPrice(ctx, tx, merged.ID); err != nil {
				return err
			}
		}
		if !ShouldAppendPrice(last, in.PriceCents, now) {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO price_history (listing_id, observed_at, price_cents, shipping_cents, total_cents, currency)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			merged.ID, now, in.PriceCents, merged.ShippingCents, merged.TotalCents, merged.Currency)
		if err != nil {
			return fmt.Errorf("append price: %w", err)
		}
		result.PriceAppended = true
		return nil
	})
	if err != nil {
		return SaveResult{}, errors.NewPersistence(provider, "save "+in.URL, err)
	}
	return result, nil
}

// resolveTaxonomy fills canonical IDs for free text the scrape produced and
// makes sure filter IDs exist in their option tables.
func (s *Store) resolveTaxonomy(ctx context.Context, tx *sqlx.Tx, in *models.ListingInput) error {
	var err error
	if in.ConditionID == nil && in.Condition != nil {
		if in.ConditionID, err = s.resolver.Resolve(ctx, tx, taxonomy.KindCondition, *in.Condition); err != nil {
			return err
		}
	}
	if in.SourceID == nil && in.Source != nil {
		if in.SourceID, err = s.resolver.Resolve(ctx, tx, taxonomy.KindSource, *in.Source); err != nil {
			return err
		}
	}
	if in.CategoryID != nil {
		if err := s.resolver.EnsureID(ctx, tx, taxonomy.KindCategory, *in.CategoryID); err != nil {
			return err
		}
	}
	for _, id := range in.PlatformIDs {
		if err := s.resolver.EnsureID(ctx, tx, taxonomy.KindPlatform, id); err != nil {
			return err
		}
	}
	return nil
}

func findForUpdate(ctx context.Context, tx *sqlx.Tx, in models.ListingInput) (*models.Listing, error) {
	if in.MarketplaceID != nil {
		l, err := getListing(ctx, tx, `SELECT `+listingColumns+` FROM listings WHERE marketplace_id = $1 FOR UPDATE`, *in.MarketplaceID)
		if l != nil || err != nil {
			return l, err
		}
	}
	return getListing(ctx, tx, `SELECT `+listingColumns+` FROM listings WHERE url = $1 FOR UPDATE`, in.URL)
}

func getListing(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (*models.Listing, error) {
	var l models.Listing
	err := sqlx.GetContext(ctx, q, &l, query, args...)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load listing: %w", err)
	}
	return &l, nil
}

func lastPrice(ctx context.Context, tx *sqlx.Tx, listingID int64) (*models.PriceObservation, error) {
	var p models.PriceObservation
	err := tx.GetContext(ctx, &p,
		`SELECT id, listing_id, observed_at, price_cents, shipping_cents, total_cents, currency
		FROM price_history WHERE listing_id = $1 ORDER BY observed_at DESC, id DESC LIMIT 1`, listingID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load last price: %w", err)
	}
	return &p, nil
}

func namedGet(ctx context.Context, tx *sqlx.Tx, dest interface{}, query string, arg interface{}) error {
	q, args, err := sqlx.Named(query, arg)
	if err != nil {
		return err
	}
	return tx.GetContext(ctx, dest, tx.Rebind(q), args...)
}

func namedExec(ctx context.Context, tx *sqlx.Tx, query string, arg interface{}) error {
	q, args, err := sqlx.Named(query, arg)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(q), args...)
	return err
}

// ListingExists reports whether a listing with this URL is stored
func (s *Store) ListingExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM listings WHERE url = $1)`, url)
	if err != nil {
		return false, errors.NewPersistence(provider, "check listing exists", err)
	}
	return exists, nil
}

// GetListing loads one listing by ID
func (s *Store) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	l, err := getListing(ctx, s.db, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	if err != nil {
		return nil, errors.NewPersistence(provider, "get listing", err)
	}
	return l, nil
}

// PriceHistory returns a listing's observations, oldest first
func (s *Store) PriceHistory(ctx context.Context, listingID int64) ([]models.PriceObservation, error) {
	var rows []models.PriceObservation
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, listing_id, observed_at, price_cents, shipping_cents, total_cents, currency
		FROM price_history WHERE listing_id = $1 ORDER BY observed_at, id`, listingID)
	if err != nil {
		return nil, errors.NewPersistence(provider, "load price history", err)
	}
	return rows, nil
}
