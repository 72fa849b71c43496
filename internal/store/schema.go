package store

import (
	"context"
	"fmt"

	"sjsage522/listingworker/internal/taxonomy"
	"sjsage522/listingworker/pkg/errors"

	"github.com/jmoiron/sqlx"
)

const optionTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
	id    SERIAL PRIMARY KEY,
	code  TEXT NOT NULL UNIQUE,
	label TEXT NOT NULL
)`

var schema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
	id              BIGSERIAL PRIMARY KEY,
	marketplace_id  BIGINT,
	url             TEXT NOT NULL UNIQUE,
	title           TEXT,
	original_title  TEXT,
	description     TEXT,
	language        TEXT,
	currency        TEXT,
	price_cents     INTEGER,
	shipping_cents  INTEGER,
	total_cents     INTEGER,
	brand           TEXT,
	size            TEXT,
	condition       TEXT,
	condition_id    INTEGER REFERENCES condition_options(id),
	location        TEXT,
	seller_id       TEXT,
	seller_name     TEXT,
	photo           TEXT,
	photos          TEXT[],
	category_id     INTEGER REFERENCES category_options(id),
	platform_ids    BIGINT[],
	source          TEXT,
	source_id       INTEGER REFERENCES source_options(id),
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	is_visible      BOOLEAN NOT NULL DEFAULT TRUE,
	is_sold         BOOLEAN NOT NULL DEFAULT FALSE,
	details_scraped BOOLEAN NOT NULL DEFAULT FALSE,
	first_seen_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS listings_marketplace_id_key ON listings (marketplace_id) WHERE marketplace_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS listings_last_seen_idx ON listings (last_seen_at)`,
	`CREATE INDEX IF NOT EXISTS listings_backfill_idx ON listings (is_active, details_scraped, last_seen_at DESC)`,
	`CREATE TABLE IF NOT EXISTS price_history (
	id             BIGSERIAL PRIMARY KEY,
	listing_id     BIGINT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	observed_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	price_cents    INTEGER,
	shipping_cents INTEGER,
	total_cents    INTEGER,
	currency       TEXT
)`,
	`CREATE INDEX IF NOT EXISTS price_history_listing_idx ON price_history (listing_id, observed_at DESC)`,
}

// Migrate creates the tables if needed and seeds the taxonomy master lists
func (s *Store) Migrate(ctx context.Context) error {
	err := s.runInTx(ctx, func(tx *sqlx.Tx) error {
		for _, kind := range taxonomy.Kinds() {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(optionTableDDL, kind.Table())); err != nil {
				return fmt.Errorf("create %s: %w", kind.Table(), err)
			}
		}
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		return taxonomy.Seed(ctx, tx)
	})
	if err != nil {
		return errors.NewPersistence(provider, "schema migration failed", err)
	}

	s.log.Info().Msg("Schema ready")
	return nil
}
