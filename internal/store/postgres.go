// Package store is the Postgres persistence layer for listings, price history
// and the taxonomy option tables.
package store

import (
	"context"
	"fmt"
	"time"

	"sjsage522/listingworker/internal/taxonomy"
	"sjsage522/listingworker/logger"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
	pingTimeout     = 5 * time.Second

	provider = "store"
)

// NewPostgresConnection opens and pings a Postgres pool
func NewPostgresConnection(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Store persists listings. Writes for one listing happen in one transaction.
type Store struct {
	db       *sqlx.DB
	resolver *taxonomy.Resolver
	now      func() time.Time
	log      *logger.Logger
}

// New creates a store over an open pool
func New(db *sqlx.DB) *Store {
	return &Store{
		db:       db,
		resolver: taxonomy.NewResolver(),
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.ForStore(),
	}
}

// DB exposes the pool for maintenance commands
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the pool
func (s *Store) Close() error {
	return s.db.Close()
}

// runInTx runs fn in a transaction, rolling back when fn fails
func (s *Store) runInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
