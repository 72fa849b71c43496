package helpers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sjsage522/listingworker/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestFetchWithRandomHeaders(t *testing.T) {
	// Create a test server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check that headers are set
		assert.Contains(t, userAgents, r.Header.Get("User-Agent"))
		assert.Contains(t, acceptHeaders, r.Header.Get("Accept"))
		assert.Contains(t, acceptLanguages, r.Header.Get("Accept-Language"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		assert.Equal(t, "document", r.Header.Get("Sec-Fetch-Dest"))
		assert.Equal(t, "1", r.Header.Get("DNT"))

		cookie, err := r.Cookie("session")
		assert.NoError(t, err)
		assert.Equal(t, "abc", cookie.Value)

		// Send a response
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>Hello, World!</body></html>"))
	}))
	defer server.Close()

	page, err := FetchWithRandomHeaders(context.Background(), server.Client(), server.URL,
		[]*http.Cookie{{Name: "session", Value: "abc"}})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.Status)
	assert.Contains(t, page.Body, "Hello, World!")
}

func TestFetchPageNonUTF8(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.WriteHeader(http.StatusOK)
		// 0xE9 is é in ISO-8859-1
		w.Write([]byte("<html><body>Caf\xe9</body></html>"))
	}))
	defer server.Close()

	page, err := FetchPage(context.Background(), server.Client(), server.URL, BrowserHeaders(), nil)
	assert.NoError(t, err)
	assert.Contains(t, page.Body, "Café")
}

func TestFetchPageReturnsErrorStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	page, err := FetchPage(context.Background(), server.Client(), server.URL, RandomHeaders(), nil)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, page.Status)

	err = CheckStatus("vinted", server.URL, page.Status, "60")
	assert.True(t, errors.IsType(err, errors.ErrorTypeRateLimit))
	assert.Contains(t, err.Error(), "retry after 60")
}

func TestFetchPageInvalidURL(t *testing.T) {
	client := &http.Client{Timeout: time.Second}
	_, err := FetchPage(context.Background(), client, "http://invalid.url.that.does.not.exist", RandomHeaders(), nil)
	assert.Error(t, err)
	assert.Equal(t, errors.ClassTransient, errors.Classify(err))
}

func TestCheckStatus(t *testing.T) {
	assert.NoError(t, CheckStatus("vinted", "u", 200, ""))
	assert.NoError(t, CheckStatus("vinted", "u", 204, ""))
	assert.True(t, errors.IsType(CheckStatus("vinted", "u", 404, ""), errors.ErrorTypeNotFound))
	assert.True(t, errors.IsType(CheckStatus("vinted", "u", 403, ""), errors.ErrorTypeRateLimit))
	assert.True(t, errors.IsType(CheckStatus("vinted", "u", 502, ""), errors.ErrorTypeNetwork))
	assert.True(t, errors.IsType(CheckStatus("vinted", "u", 400, ""), errors.ErrorTypeValidation))
}

func TestJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		j := Jitter(500 * time.Millisecond)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, 500*time.Millisecond)
	}
	assert.Equal(t, time.Duration(0), Jitter(0))
}
