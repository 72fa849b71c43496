package store

import (
	"strings"
	"time"

	"sjsage522/listingworker/internal/models"
)

// PriceDedupWindow bounds same-price history rows to one per window
const PriceDedupWindow = 24 * time.Hour

// MergeListing applies a scrape onto the stored row. existing is nil for a
// first sighting. Fields the scrape did not produce keep their stored value;
// original_title is only ever filled once and is_sold never goes back to false.
func MergeListing(existing *models.Listing, in models.ListingInput, now time.Time) models.Listing {
	var l models.Listing
	if existing != nil {
		l = *existing
	} else {
		l.FirstSeenAt = now
	}

	l.URL = in.URL
	if in.MarketplaceID != nil {
		l.MarketplaceID = in.MarketplaceID
	}

	setString(&l.Title, in.Title)
	setString(&l.Description, in.Description)
	setString(&l.Language, in.Language)
	setString(&l.Currency, in.Currency)
	setString(&l.Brand, in.Brand)
	setString(&l.Size, in.Size)
	setString(&l.Condition, in.Condition)
	setString(&l.Location, in.Location)
	setString(&l.SellerID, in.SellerID)
	setString(&l.SellerName, in.SellerName)
	setString(&l.Photo, in.Photo)
	setString(&l.Source, in.Source)

	setInt(&l.PriceCents, in.PriceCents)
	setInt(&l.ShippingCents, in.ShippingCents)
	setInt(&l.TotalCents, in.TotalCents)

	setID(&l.ConditionID, in.ConditionID)
	setID(&l.CategoryID, in.CategoryID)
	setID(&l.SourceID, in.SourceID)

	if l.OriginalTitle == nil && in.OriginalTitle != nil {
		l.OriginalTitle = in.OriginalTitle
	}
	if photos := cleanPhotos(in.Photos); len(photos) > 0 {
		l.Photos = photos
	}
	if len(in.PlatformIDs) > 0 {
		l.PlatformIDs = append([]int64(nil), in.PlatformIDs...)
	}

	l.IsVisible = in.Visible
	l.IsActive = in.Visible
	l.IsSold = l.IsSold || (in.Sold != nil && *in.Sold)
	l.DetailsScraped = l.DetailFields().Complete()
	l.LastSeenAt = now
	return l
}

// ShouldAppendPrice decides whether an observed price gets a new history row:
// always for the first observation or a changed price, otherwise at most once
// per PriceDedupWindow. Unknown prices are not recorded.
func ShouldAppendPrice(last *models.PriceObservation, price *int, now time.Time) bool {
	if price == nil {
		return false
	}
	if last == nil || last.PriceCents == nil {
		return true
	}
	if *last.PriceCents != *price {
		return true
	}
	return now.Sub(last.ObservedAt) > PriceDedupWindow
}

// DetailMerge is the result of applying backfilled details to a listing
type DetailMerge struct {
	Listing  models.Listing
	Changed  bool
	Complete bool
	Missing  []string
}

// MergeDetails applies the detail fields a backfill produced. Empty values
// never erase stored ones.
func MergeDetails(l models.Listing, u models.DetailUpdate) DetailMerge {
	changed := false

	if u.ShippingCents != nil && (l.ShippingCents == nil || *l.ShippingCents != *u.ShippingCents) {
		v := *u.ShippingCents
		l.ShippingCents = &v
		changed = true
	}
	for _, f := range []struct {
		dst **string
		val string
	}{
		{&l.Brand, u.Brand},
		{&l.Location, u.Location},
		{&l.Description, u.Description},
		{&l.SellerName, u.SellerName},
	} {
		val := strings.TrimSpace(f.val)
		if val == "" || (*f.dst != nil && **f.dst == val) {
			continue
		}
		*f.dst = &val
		changed = true
	}

	if photos := cleanPhotos(u.Photos); len(photos) > 0 {
		if !equalStrings(l.Photos, photos) {
			l.Photos = photos
			changed = true
		}
		if l.Photo == nil || *l.Photo == "" {
			first := photos[0]
			l.Photo = &first
			changed = true
		}
	}

	fields := l.DetailFields()
	complete := fields.Complete()
	if complete != l.DetailsScraped {
		l.DetailsScraped = complete
		changed = true
	}

	return DetailMerge{
		Listing:  l,
		Changed:  changed,
		Complete: complete,
		Missing:  fields.Missing(),
	}
}

func setString(dst **string, v *string) {
	if v != nil {
		s := *v
		*dst = &s
	}
}

func setInt(dst **int, v *int) {
	if v != nil {
		n := *v
		*dst = &n
	}
}

func setID(dst **int64, v *int64) {
	if v != nil {
		n := *v
		*dst = &n
	}
}

// cleanPhotos trims, drops empties and dedupes, keeping order
func cleanPhotos(photos []string) []string {
	seen := make(map[string]bool, len(photos))
	var out []string
	for _, p := range photos {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
