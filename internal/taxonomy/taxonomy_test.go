package taxonomy

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeConditionSpellings(t *testing.T) {
	for _, raw := range []string{"Like New", "like-new", "LIKE_NEW", "  like new "} {
		opt, ok := NormalizeCondition(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, int64(3), opt.ID, raw)
		assert.Equal(t, "like_new", opt.Code, raw)
	}
}

func TestNormalizeConditionAliases(t *testing.T) {
	cases := map[string]int64{
		"New with tags": 1,
		"Brand new":     2,
		"Acceptable":    6,
		"for parts":     9,
		"Not specified": 10,
		"very_good":     4,
		"Needs repair":  9,
	}
	for raw, want := range cases {
		opt, ok := NormalizeCondition(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, opt.ID, raw)
	}
}

func TestNormalizeConditionUnknown(t *testing.T) {
	opt, ok := NormalizeCondition("Mint in box")
	assert.False(t, ok)
	assert.Equal(t, "mint_in_box", opt.Code)
	assert.Equal(t, "Mint In Box", opt.Label)

	_, ok = NormalizeCondition("   ")
	assert.False(t, ok)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "like_new", Slug("Like-New"))
	assert.Equal(t, "xbox_series_x_s", Slug("Xbox Series X/S"))
	assert.Equal(t, "", Slug(" - "))
}

func TestSearch(t *testing.T) {
	got := Search(KindPlatform, "xbox")
	require.Len(t, got, 4)
	assert.Equal(t, int64(1282), got[0].ID)

	assert.Len(t, Search(KindCategory, ""), len(Categories))
	assert.Empty(t, Search(KindCategory, "spaceships"))
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestResolveKnownConditionSkipsDatabase(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewResolver()

	ids := map[int64]bool{}
	for _, raw := range []string{"Like New", "like-new", "LIKE_NEW"} {
		id, err := r.Resolve(context.Background(), db, KindCondition, raw)
		require.NoError(t, err)
		require.NotNil(t, id)
		ids[*id] = true
	}
	assert.Len(t, ids, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveCreatesOnFirstSight(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewResolver()

	mock.ExpectQuery("SELECT id FROM category_options").
		WithArgs("Retro Handhelds", "retro_handhelds").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO category_options").
		WithArgs("retro_handhelds", "Retro Handhelds").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100001))

	mock.ExpectQuery("SELECT id FROM category_options").
		WithArgs("retro handhelds", "retro_handhelds").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100001))

	id, err := r.Resolve(context.Background(), db, KindCategory, "Retro Handhelds")
	require.NoError(t, err)
	assert.Equal(t, int64(100001), *id)

	id, err = r.Resolve(context.Background(), db, KindCategory, "retro handhelds")
	require.NoError(t, err)
	assert.Equal(t, int64(100001), *id)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveEmptyLabel(t *testing.T) {
	db, mock := newMockDB(t)
	id, err := NewResolver().Resolve(context.Background(), db, KindSource, " ")
	assert.NoError(t, err)
	assert.Nil(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveMasterSkipsDatabase(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewResolver()

	id, err := r.Resolve(context.Background(), db, KindSource, "Vinted")
	require.NoError(t, err)
	assert.Equal(t, int64(1), *id)

	id, err = r.Resolve(context.Background(), db, KindPlatform, "playstation 5")
	require.NoError(t, err)
	assert.Equal(t, int64(1281), *id)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureID(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO category_options").
		WithArgs(int64(777), "category_777", "Category 777").
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := NewResolver()
	// seeded master id, no statement
	require.NoError(t, r.EnsureID(context.Background(), db, KindPlatform, 1281))
	require.NoError(t, r.EnsureID(context.Background(), db, KindCategory, 777))
	// inserted once per resolver
	require.NoError(t, r.EnsureID(context.Background(), db, KindCategory, 777))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeed(t *testing.T) {
	db, mock := newMockDB(t)

	for _, kind := range Kinds() {
		for range kind.Master() {
			mock.ExpectExec("INSERT INTO " + kind.Table()).WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectExec("SELECT setval").
			WithArgs(int64(FirstDynamicID)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Seed(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
