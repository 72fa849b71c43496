package taxonomy

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Resolver maps free text onto option IDs, creating options on first sight.
// It runs inside the caller's transaction so an item and the options it
// created commit together. Master options are assumed seeded by Seed.
type Resolver struct {
	mu      sync.Mutex
	ensured map[string]bool
}

// NewResolver creates a resolver
func NewResolver() *Resolver {
	return &Resolver{ensured: map[string]bool{}}
}

// Resolve returns the ID for label, creating a new option if no existing
// label matches case-insensitively. Empty labels resolve to nil.
func (r *Resolver) Resolve(ctx context.Context, q sqlx.ExtContext, kind Kind, label string) (*int64, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, nil
	}

	code := Slug(label)
	newLabel := label
	if kind == KindCondition {
		opt, ok := NormalizeCondition(label)
		if ok {
			id := opt.ID
			return &id, nil
		}
		code, newLabel = opt.Code, opt.Label
	} else if opt, ok := matchMaster(kind, label); ok {
		id := opt.ID
		return &id, nil
	}

	var id int64
	err := sqlx.GetContext(ctx, q, &id,
		fmt.Sprintf(`SELECT id FROM %s WHERE lower(label) = lower($1) OR code = $2 ORDER BY id LIMIT 1`, kind.Table()),
		label, code)
	switch {
	case err == nil:
		return &id, nil
	case !stderrors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("lookup %s %q: %w", kind, label, err)
	}

	err = sqlx.GetContext(ctx, q, &id,
		fmt.Sprintf(`INSERT INTO %[1]s (code, label) VALUES ($1, $2)
			ON CONFLICT (code) DO UPDATE SET label = %[1]s.label
			RETURNING id`, kind.Table()),
		code, newLabel)
	if err != nil {
		return nil, fmt.Errorf("create %s %q: %w", kind, label, err)
	}
	return &id, nil
}

// EnsureID makes sure an option row exists for a numeric ID given as a crawl
// filter. Master IDs are already seeded; unknown IDs get a placeholder label
// and are inserted once per resolver.
func (r *Resolver) EnsureID(ctx context.Context, q sqlx.ExtContext, kind Kind, id int64) error {
	if _, ok := Lookup(kind, id); ok {
		return nil
	}

	key := fmt.Sprintf("%s:%d", kind, id)
	r.mu.Lock()
	done := r.ensured[key]
	r.mu.Unlock()
	if done {
		return nil
	}

	opt := Option{
		ID:    id,
		Code:  fmt.Sprintf("%s_%d", kind, id),
		Label: fmt.Sprintf("%s %d", titleWords(string(kind)), id),
	}
	_, err := q.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, code, label) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, kind.Table()),
		opt.ID, opt.Code, opt.Label)
	if err != nil {
		return fmt.Errorf("ensure %s %d: %w", kind, id, err)
	}

	r.mu.Lock()
	r.ensured[key] = true
	r.mu.Unlock()
	return nil
}

func matchMaster(kind Kind, label string) (Option, bool) {
	code := Slug(label)
	for _, o := range kind.Master() {
		if o.Code == code || strings.EqualFold(o.Label, label) {
			return o, true
		}
	}
	return Option{}, false
}

// Seed inserts the master lists and moves each ID sequence past
// FirstDynamicID so created options never collide with marketplace IDs.
func Seed(ctx context.Context, q sqlx.ExtContext) error {
	for _, kind := range Kinds() {
		for _, o := range kind.Master() {
			if _, err := q.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO %s (id, code, label) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, kind.Table()),
				o.ID, o.Code, o.Label); err != nil {
				return fmt.Errorf("seed %s %d: %w", kind, o.ID, err)
			}
		}
		if _, err := q.ExecContext(ctx,
			fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT COALESCE(MAX(id), 0) FROM %[1]s), $1))`, kind.Table()),
			FirstDynamicID); err != nil {
			return fmt.Errorf("advance %s sequence: %w", kind, err)
		}
	}
	return nil
}
