package enricher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sjsage522/listingworker/internal/catalog"
	"sjsage522/listingworker/pkg/errors"
	"sjsage522/listingworker/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detailHTML = `<html lang="sk"><body>
<a data-testid="brand_link">Nintendo</a>
<div data-testid="item_description">Switch OLED</div>
</body></html>`

// MockFetcher records concurrency and fails the first failures[url] calls
type MockFetcher struct {
	mu       sync.Mutex
	failures map[string]int
	errs     map[string]error
	calls    map[string]int
	inFlight int32
	maxSeen  int32
	delay    time.Duration
	closed   bool
}

var _ Fetcher = (*MockFetcher)(nil)
var _ Fetcher = (*DirectFetcher)(nil)
var _ Fetcher = (*BrowserFetcher)(nil)

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		failures: map[string]int{},
		errs:     map[string]error{},
		calls:    map[string]int{},
	}
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	n := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&m.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&m.maxSeen, seen, n) {
			break
		}
	}
	time.Sleep(m.delay)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[url]++
	if err, ok := m.errs[url]; ok {
		return "", err
	}
	if m.calls[url] <= m.failures[url] {
		return "", errors.NewNetwork("mock", "timeout", nil)
	}
	return detailHTML, nil
}

func (m *MockFetcher) Close() error {
	m.closed = true
	return nil
}

func fastPolicy() retry.Policy {
	p := retry.DetailPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestEnrichRetriesTransientFailures(t *testing.T) {
	f := NewMockFetcher()
	f.failures["u1"] = 2

	e := New(f, 2, fastPolicy())
	d, err := e.Enrich(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Nintendo", d.Brand)
	assert.Equal(t, "Switch OLED", d.Description)
	assert.Equal(t, 3, f.calls["u1"])
}

func TestEnrichGivesUpOnNotFound(t *testing.T) {
	f := NewMockFetcher()
	f.errs["gone"] = errors.NewNotFound("mock", "gone")

	e := New(f, 2, fastPolicy())
	_, err := e.Enrich(context.Background(), "gone")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	assert.Equal(t, 1, f.calls["gone"])
}

func TestEnrichAllRespectsConcurrency(t *testing.T) {
	f := NewMockFetcher()
	f.delay = 20 * time.Millisecond
	f.failures["bad"] = 10

	var urls []string
	for i := 0; i < 8; i++ {
		urls = append(urls, fmt.Sprintf("u%d", i))
	}
	urls = append(urls, "bad")

	e := New(f, 2, fastPolicy())
	results := e.EnrichAll(context.Background(), urls)

	assert.Len(t, results, 8)
	assert.NotContains(t, results, "bad")
	assert.LessOrEqual(t, atomic.LoadInt32(&f.maxSeen), int32(2))

	require.NoError(t, e.Close())
	assert.True(t, f.closed)
}

func TestEnrichStopsOnCancel(t *testing.T) {
	f := NewMockFetcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(f, 1, fastPolicy())
	_, err := e.Enrich(ctx, "u1")
	assert.Error(t, err)
}

func TestDirectFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(detailHTML))
	}))
	defer srv.Close()

	e := New(NewDirectFetcher(catalog.NewClient(catalog.Options{})), 0, fastPolicy())
	d, err := e.Enrich(context.Background(), srv.URL+"/items/1")
	require.NoError(t, err)
	assert.Equal(t, "Nintendo", d.Brand)
	assert.Equal(t, "sk", d.Language)
}

func TestFindChromePrefersConfigured(t *testing.T) {
	assert.Equal(t, "/opt/chrome/chrome", FindChrome("/opt/chrome/chrome"))

	t.Setenv("CHROME_BIN", "/custom/chromium")
	assert.Equal(t, "/custom/chromium", FindChrome(""))
}
