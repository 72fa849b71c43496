package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"sjsage522/listingworker/helpers"
	"sjsage522/listingworker/internal/models"
	"sjsage522/listingworker/internal/store"
)

// MockSearcher serves canned pages keyed by page number and records which
// pages were requested
type MockSearcher struct {
	mu        sync.Mutex
	pages     map[int][]models.CatalogItem
	failPages map[int]error
	requested []int
}

var _ Searcher = (*MockSearcher)(nil)

func NewMockSearcher(pages map[int][]models.CatalogItem) *MockSearcher {
	return &MockSearcher{pages: pages, failPages: map[int]error{}}
}

func (m *MockSearcher) Search(ctx context.Context, catalogURL string, perPage int) ([]models.CatalogItem, error) {
	u, err := url.Parse(catalogURL)
	if err != nil {
		return nil, err
	}
	page, _ := strconv.Atoi(u.Query().Get("page"))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requested = append(m.requested, page)
	if err, ok := m.failPages[page]; ok {
		return nil, err
	}
	return m.pages[page], nil
}

func (m *MockSearcher) Requested() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.requested...)
}

// MockStore keeps listings in memory and applies the same merge and price
// rules as the Postgres store
type MockStore struct {
	mu          sync.Mutex
	now         time.Time
	nextID      int64
	byURL       map[string]*models.Listing
	prices      map[int64][]models.PriceObservation
	failURLs    map[string]error
	sweeps      int
	staleCutoff time.Duration
}

var _ Store = (*MockStore)(nil)

func NewMockStore(now time.Time) *MockStore {
	return &MockStore{
		now:      now,
		byURL:    map[string]*models.Listing{},
		prices:   map[int64][]models.PriceObservation{},
		failURLs: map[string]error{},
	}
}

func (m *MockStore) ListingExists(ctx context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byURL[url]
	return ok, nil
}

func (m *MockStore) SaveListing(ctx context.Context, in models.ListingInput) (store.SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failURLs[in.URL]; ok {
		return store.SaveResult{}, err
	}

	m.now = m.now.Add(time.Minute)
	existing := m.byURL[in.URL]
	merged := store.MergeListing(existing, in, m.now)

	var res store.SaveResult
	if existing == nil {
		m.nextID++
		merged.ID = m.nextID
		res.WasNew = true
	}
	m.byURL[in.URL] = &merged
	res.ID = merged.ID

	var last *models.PriceObservation
	if rows := m.prices[merged.ID]; len(rows) > 0 {
		last = &rows[len(rows)-1]
	}
	if store.ShouldAppendPrice(last, in.PriceCents, m.now) {
		m.prices[merged.ID] = append(m.prices[merged.ID], models.PriceObservation{
			ListingID:  merged.ID,
			ObservedAt: m.now,
			PriceCents: in.PriceCents,
		})
		res.PriceAppended = true
	}
	return res, nil
}

func (m *MockStore) DeactivateStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps++
	m.staleCutoff = olderThan

	var n int64
	for _, l := range m.byURL {
		if l.IsActive && m.now.Sub(l.LastSeenAt) > olderThan {
			l.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *MockStore) CountActive(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, l := range m.byURL {
		if l.IsActive {
			n++
		}
	}
	return n, nil
}

// MockDetails returns a canned detail for every URL it is asked about
type MockDetails struct {
	mu    sync.Mutex
	asked []string
}

var _ DetailSource = (*MockDetails)(nil)

func (m *MockDetails) EnrichAll(ctx context.Context, urls []string) map[string]*models.Detail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*models.Detail, len(urls))
	for _, u := range urls {
		m.asked = append(m.asked, u)
		shipping := 365
		out[u] = &models.Detail{
			Brand:         "playstation",
			Location:      "Bratislava",
			Description:   "Barely used",
			Language:      "sk",
			Photos:        []string{u + "/1.jpg"},
			ShippingCents: &shipping,
		}
	}
	return out
}

// MockFailures records what would have gone to the failure log
type MockFailures struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

var _ helpers.LoggerInterface = (*MockFailures)(nil)

func (m *MockFailures) LogError(component string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, component+": "+err.Error())
}

func (m *MockFailures) LogInfo(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, fmt.Sprintf(format, args...))
}

func noSleep(context.Context, time.Duration) error { return nil }
