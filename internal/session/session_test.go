package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockProxyFinder struct {
	addr  string
	err   error
	calls int
}

var _ ProxyFinder = (*MockProxyFinder)(nil)

func (m *MockProxyFinder) FindWorking(context.Context) (string, error) {
	m.calls++
	return m.addr, m.err
}

func cookieServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://www.google.com/", r.Header.Get("Referer"))
		http.SetCookie(w, &http.Cookie{Name: "access_token_web", Value: "abc"})
		http.SetCookie(w, &http.Cookie{Name: "_vinted_fr_session", Value: "xyz"})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCookiePath(t *testing.T) {
	assert.Equal(t, "cookies.sk.json", CookiePath("cookies.json", "sk"))
	assert.Equal(t, "/tmp/state/cookies.pl.json", CookiePath("/tmp/state/cookies.json", "pl"))
	assert.Equal(t, "cookies.cz", CookiePath("cookies", "cz"))
	assert.Equal(t, "cookies.json", CookiePath("cookies.json", ""))
}

func TestWarmupSavesCookies(t *testing.T) {
	srv := cookieServer(t, http.StatusOK)
	file := filepath.Join(t.TempDir(), "cookies.sk.json")

	m := NewManager(Options{BaseURL: srv.URL + "/", CookiesFile: file})
	require.True(t, m.Warmup(context.Background()))

	cookies := m.Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "_vinted_fr_session", cookies[0].Name)
	assert.Equal(t, "access_token_web", cookies[1].Name)
	assert.Equal(t, "abc", cookies[1].Value)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(file))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWarmupFailureWithoutProxy(t *testing.T) {
	srv := cookieServer(t, http.StatusForbidden)
	finder := &MockProxyFinder{}

	m := NewManager(Options{
		BaseURL:     srv.URL + "/",
		CookiesFile: filepath.Join(t.TempDir(), "cookies.json"),
		Proxies:     finder,
	})
	assert.False(t, m.Warmup(context.Background()))
	assert.Equal(t, 0, finder.calls)
	assert.Empty(t, m.Cookies())
}

func TestWarmupFallsBackToProxy(t *testing.T) {
	blocked := cookieServer(t, http.StatusForbidden)
	// the proxy answers the forwarded request itself
	proxy := cookieServer(t, http.StatusOK)
	finder := &MockProxyFinder{addr: proxy.URL}
	file := filepath.Join(t.TempDir(), "cookies.json")

	m := NewManager(Options{
		BaseURL:     blocked.URL + "/",
		CookiesFile: file,
		UseProxy:    true,
		Proxies:     finder,
	})
	assert.True(t, m.Warmup(context.Background()))
	assert.Equal(t, 1, finder.calls)
	assert.Len(t, m.Cookies(), 2)
}

func TestWarmupProxyUnavailable(t *testing.T) {
	blocked := cookieServer(t, http.StatusTooManyRequests)
	finder := &MockProxyFinder{err: assert.AnError}

	m := NewManager(Options{
		BaseURL:     blocked.URL + "/",
		CookiesFile: filepath.Join(t.TempDir(), "cookies.json"),
		UseProxy:    true,
		Proxies:     finder,
	})
	assert.False(t, m.Warmup(context.Background()))
}

func TestLoadCookiesMissingFile(t *testing.T) {
	cookies, err := LoadCookies(filepath.Join(t.TempDir(), "nope.json"))
	assert.NoError(t, err)
	assert.Nil(t, cookies)
}

func TestSaveCookiesOverwrites(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, SaveCookies(file, []*http.Cookie{{Name: "a", Value: "1"}}))
	require.NoError(t, SaveCookies(file, []*http.Cookie{{Name: "b", Value: "2"}}))

	cookies, err := LoadCookies(file)
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "b", cookies[0].Name)
}
