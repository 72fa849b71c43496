package models

import (
	"math"
	"strings"
	"time"

	"github.com/lib/pq"
)

// CatalogItem is the flat header record parsed from one catalog search result.
// Location is never available at this stage.
type CatalogItem struct {
	MarketplaceID *int64   `json:"id,omitempty"`
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Price         *float64 `json:"price,omitempty"`
	Currency      string   `json:"currency,omitempty"`
	Photo         string   `json:"photo,omitempty"`
	SellerID      string   `json:"seller_id,omitempty"`
	SellerName    string   `json:"seller_name,omitempty"`
	Brand         string   `json:"brand,omitempty"`
	Size          string   `json:"size,omitempty"`
	Condition     string   `json:"condition,omitempty"`
}

// PriceCents converts the catalog price to minor units
func (c CatalogItem) PriceCents() *int {
	if c.Price == nil {
		return nil
	}
	cents := int(math.Round(*c.Price * 100))
	return &cents
}

// Detail holds the fields extracted from a detail page
type Detail struct {
	Brand         string
	Size          string
	Condition     string
	Location      string
	SellerName    string
	Description   string
	Language      string
	Photos        []string
	ShippingCents *int
}

// ListingInput is the typed partial update applied by an upsert. Nil pointers
// mean "not produced by this scrape" and leave the stored value alone.
type ListingInput struct {
	MarketplaceID *int64
	URL           string

	Title         *string
	OriginalTitle *string
	Description   *string
	Language      *string
	Currency      *string
	PriceCents    *int
	ShippingCents *int
	TotalCents    *int
	Brand         *string
	Size          *string
	Condition     *string
	ConditionID   *int64
	Location      *string
	SellerID      *string
	SellerName    *string
	Photo         *string
	Photos        []string
	CategoryID    *int64
	PlatformIDs   []int64
	Source        *string
	SourceID      *int64

	// Visible is the freshly observed visibility; a catalog sighting is visible.
	Visible bool
	// Sold is set only when there is sold evidence.
	Sold *bool
}

// Listing is one stored marketplace item
type Listing struct {
	ID             int64          `db:"id"`
	MarketplaceID  *int64         `db:"marketplace_id"`
	URL            string         `db:"url"`
	Title          *string        `db:"title"`
	OriginalTitle  *string        `db:"original_title"`
	Description    *string        `db:"description"`
	Language       *string        `db:"language"`
	Currency       *string        `db:"currency"`
	PriceCents     *int           `db:"price_cents"`
	ShippingCents  *int           `db:"shipping_cents"`
	TotalCents     *int           `db:"total_cents"`
	Brand          *string        `db:"brand"`
	Size           *string        `db:"size"`
	Condition      *string        `db:"condition"`
	ConditionID    *int64         `db:"condition_id"`
	Location       *string        `db:"location"`
	SellerID       *string        `db:"seller_id"`
	SellerName     *string        `db:"seller_name"`
	Photo          *string        `db:"photo"`
	Photos         pq.StringArray `db:"photos"`
	CategoryID     *int64         `db:"category_id"`
	PlatformIDs    pq.Int64Array  `db:"platform_ids"`
	Source         *string        `db:"source"`
	SourceID       *int64         `db:"source_id"`
	IsActive       bool           `db:"is_active"`
	IsVisible      bool           `db:"is_visible"`
	IsSold         bool           `db:"is_sold"`
	DetailsScraped bool           `db:"details_scraped"`
	FirstSeenAt    time.Time      `db:"first_seen_at"`
	LastSeenAt     time.Time      `db:"last_seen_at"`
}

// DetailFields returns the subset that decides completeness
func (l *Listing) DetailFields() DetailFields {
	return DetailFields{
		ShippingCents: l.ShippingCents,
		Brand:         deref(l.Brand),
		Location:      deref(l.Location),
		Description:   deref(l.Description),
		Photos:        l.Photos,
	}
}

// PriceObservation is one append-only price history row
type PriceObservation struct {
	ID            int64     `db:"id"`
	ListingID     int64     `db:"listing_id"`
	ObservedAt    time.Time `db:"observed_at"`
	PriceCents    *int      `db:"price_cents"`
	ShippingCents *int      `db:"shipping_cents"`
	TotalCents    *int      `db:"total_cents"`
	Currency      *string   `db:"currency"`
}

// DetailUpdate carries the fields the backfill worker may write
type DetailUpdate struct {
	ShippingCents *int
	Brand         string
	Location      string
	Description   string
	SellerName    string
	Photos        []string
}

// DetailUpdateFrom keeps only what the backfill pipeline is allowed to touch
func DetailUpdateFrom(d *Detail) DetailUpdate {
	return DetailUpdate{
		ShippingCents: d.ShippingCents,
		Brand:         d.Brand,
		Location:      d.Location,
		Description:   d.Description,
		SellerName:    d.SellerName,
		Photos:        d.Photos,
	}
}

// DetailFields are the fields that make a listing "details complete"
type DetailFields struct {
	ShippingCents *int
	Brand         string
	Location      string
	Description   string
	Photos        []string
}

// Complete reports whether shipping, brand, location, description and at
// least one photo are all present.
func (d DetailFields) Complete() bool {
	return len(d.Missing()) == 0
}

// Missing lists the detail fields that are absent, in a stable order
func (d DetailFields) Missing() []string {
	var missing []string
	if d.ShippingCents == nil {
		missing = append(missing, "shipping_cents")
	}
	if strings.TrimSpace(d.Brand) == "" {
		missing = append(missing, "brand")
	}
	if strings.TrimSpace(d.Location) == "" {
		missing = append(missing, "location")
	}
	if strings.TrimSpace(d.Description) == "" {
		missing = append(missing, "description")
	}
	if !hasPhoto(d.Photos) {
		missing = append(missing, "photos")
	}
	return missing
}

func hasPhoto(photos []string) bool {
	for _, p := range photos {
		if p != "" {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StatusUpdate is the verdict written by the status verifier
type StatusUpdate struct {
	IsVisible bool
	IsActive  bool
	// IsSold is nil when the check carries no sold evidence either way.
	IsSold *bool
}
