package store

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"sjsage522/listingworker/internal/models"
	"sjsage522/listingworker/internal/taxonomy"
	"sjsage522/listingworker/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

var listingCols = []string{
	"id", "marketplace_id", "url", "title", "original_title", "description", "language", "currency",
	"price_cents", "shipping_cents", "total_cents", "brand", "size", "condition", "condition_id", "location",
	"seller_id", "seller_name", "photo", "photos", "category_id", "platform_ids", "source", "source_id",
	"is_active", "is_visible", "is_sold", "details_scraped", "first_seen_at", "last_seen_at",
}

var priceCols = []string{"id", "listing_id", "observed_at", "price_cents", "shipping_cents", "total_cents", "currency"}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	s := New(sqlx.NewDb(mockDB, "postgres"))
	s.now = func() time.Time { return testNow }
	return s, mock
}

// listingRow is a stored, sold, partially detailed listing with id 7
func listingRow() *sqlmock.Rows {
	first := testNow.Add(-72 * time.Hour)
	return sqlmock.NewRows(listingCols).AddRow(
		int64(7), int64(101), "https://www.vinted.sk/items/101", "PS5", "PS5 original", nil, "sk", "EUR",
		int64(29990), nil, int64(29990), "Sony", nil, "Very good", int64(4), nil,
		"7", "gamer7", "a.jpg", "{a.jpg}", int64(3026), "{1281}", "vinted", int64(1),
		true, true, true, false, first, first,
	)
}

func catalogInput() models.ListingInput {
	id := int64(101)
	category := int64(3026)
	return models.ListingInput{
		MarketplaceID: &id,
		URL:           "https://www.vinted.sk/items/101",
		Title:         strp("PS5"),
		OriginalTitle: strp("PS5"),
		Currency:      strp("EUR"),
		PriceCents:    intp(29990),
		TotalCents:    intp(29990),
		Condition:     strp("Very good"),
		Source:        strp("vinted"),
		CategoryID:    &category,
		PlatformIDs:   []int64{1281},
		Visible:       true,
	}
}

func TestSaveListingInsertsNew(t *testing.T) {
	s, mock := newTestStore(t)
	in := catalogInput()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM listings WHERE marketplace_id").
		WithArgs(int64(101)).
		WillReturnRows(sqlmock.NewRows(listingCols))
	mock.ExpectQuery("SELECT .+ FROM listings WHERE url").
		WithArgs(in.URL).
		WillReturnRows(sqlmock.NewRows(listingCols))
	mock.ExpectQuery("INSERT INTO listings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO price_history").
		WithArgs(int64(7), testNow, 29990, nil, 29990, "EUR").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := s.SaveListing(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, SaveResult{ID: 7, WasNew: true, PriceAppended: true}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveListingUpdatesWithoutDuplicatePrice(t *testing.T) {
	s, mock := newTestStore(t)
	in := catalogInput()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM listings WHERE marketplace_id").
		WithArgs(int64(101)).
		WillReturnRows(listingRow())
	mock.ExpectExec("UPDATE listings SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM price_history").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(priceCols).
			AddRow(int64(1), int64(7), testNow.Add(-time.Hour), int64(29990), nil, int64(29990), "EUR"))
	mock.ExpectCommit()

	res, err := s.SaveListing(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, SaveResult{ID: 7}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveListingAppendsChangedPrice(t *testing.T) {
	s, mock := newTestStore(t)
	in := catalogInput()
	in.PriceCents = intp(27500)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM listings WHERE marketplace_id").
		WithArgs(int64(101)).
		WillReturnRows(listingRow())
	mock.ExpectExec("UPDATE listings SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM price_history").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(priceCols).
			AddRow(int64(1), int64(7), testNow.Add(-time.Hour), int64(29990), nil, int64(29990), "EUR"))
	mock.ExpectExec("INSERT INTO price_history").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	res, err := s.SaveListing(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.PriceAppended)
	assert.False(t, res.WasNew)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveListingRollsBackOnFailure(t *testing.T) {
	s, mock := newTestStore(t)
	in := catalogInput()
	in.MarketplaceID = nil

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM listings WHERE url").
		WithArgs(in.URL).
		WillReturnRows(sqlmock.NewRows(listingCols))
	mock.ExpectQuery("INSERT INTO listings").
		WillReturnError(stderrors.New("duplicate key value violates unique constraint"))
	mock.ExpectRollback()

	_, err := s.SaveListing(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePersistence))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveListingCreatesUnknownCondition(t *testing.T) {
	s, mock := newTestStore(t)
	in := catalogInput()
	in.MarketplaceID = nil
	in.PriceCents = nil
	in.Condition = strp("Refurbished by seller")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM condition_options").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO condition_options").
		WithArgs("refurbished_by_seller", "Refurbished By Seller").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(100001)))
	mock.ExpectQuery("SELECT .+ FROM listings WHERE url").
		WithArgs(in.URL).
		WillReturnRows(sqlmock.NewRows(listingCols))
	mock.ExpectQuery("INSERT INTO listings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(8)))
	mock.ExpectCommit()

	res, err := s.SaveListing(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.WasNew)
	assert.False(t, res.PriceAppended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveListingRequiresURL(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.SaveListing(context.Background(), models.ListingInput{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestListingExists(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("https://www.vinted.sk/items/101").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.ListingExists(context.Background(), "https://www.vinted.sk/items/101")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateStale(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("UPDATE listings SET is_active = FALSE").
		WithArgs(testNow.Add(-48 * time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.DeactivateStale(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountActive(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := s.CountActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestStaleListings(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT id, url, last_seen_at FROM listings WHERE last_seen_at < .+ AND is_active ORDER BY last_seen_at ASC").
		WithArgs(testNow.Add(-24*time.Hour), 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "url", "last_seen_at"}).
			AddRow(int64(1), "https://www.vinted.sk/items/1", testNow.Add(-30*time.Hour)))

	rows, err := s.StaleListings(context.Background(), 24*time.Hour, false, 100)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "https://www.vinted.sk/items/1", rows[0].URL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("UPDATE listings SET is_visible").
		WithArgs(int64(5), false, false, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE listings SET is_visible").
		WithArgs(int64(6), false, false, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UpdateStatus(context.Background(), 5, models.StatusUpdate{}))
	require.NoError(t, s.UpdateStatus(context.Background(), 6, models.StatusUpdate{IsSold: boolp(true)}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDetailCandidates(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT id, url FROM listings WHERE is_active AND NOT details_scraped AND source = .+ ORDER BY last_seen_at DESC").
		WithArgs("vinted", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "url"}).
			AddRow(int64(3), "https://www.vinted.sk/items/3").
			AddRow(int64(2), "https://www.vinted.sk/items/2"))

	rows, err := s.DetailCandidates(context.Background(), "vinted", 50)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDetails(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM listings WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(listingRow())
	mock.ExpectExec("UPDATE listings SET shipping_cents").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := s.ApplyDetails(context.Background(), 7, models.DetailUpdate{
		ShippingCents: intp(365),
		Location:      "Bratislava",
		Description:   "Two controllers",
	})
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.True(t, res.Complete)
	assert.Empty(t, res.Missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDetailsMissingListing(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM listings WHERE id").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(listingCols))
	mock.ExpectRollback()

	_, err := s.ApplyDetails(context.Background(), 99, models.DetailUpdate{Brand: "Sony"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	for range taxonomy.Kinds() {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	for _, kind := range taxonomy.Kinds() {
		for range kind.Master() {
			mock.ExpectExec("INSERT INTO " + kind.Table()).WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectExec("SELECT setval").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
