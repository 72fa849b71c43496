package helpers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	mathrand "math/rand"
	"net/http"
	"sync"
	"time"

	"sjsage522/listingworker/pkg/errors"

	"golang.org/x/net/html/charset"
)

// Header pools used to vary the request fingerprint
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.1 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
		"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 7 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.1 Mobile Safari/537.36",
	}

	acceptLanguages = []string{
		"en-US,en;q=0.9",
		"en-GB,en;q=0.8,sk;q=0.6",
		"sk-SK,sk;q=0.9,en;q=0.7",
		"de-DE,de;q=0.9,en;q=0.6",
	}

	acceptHeaders = []string{
		"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"text/html,application/xml;q=0.9,application/xhtml+xml;q=0.9,image/webp,*/*;q=0.8",
	}

	rndMu sync.Mutex
	rnd   = mathrand.New(mathrand.NewSource(time.Now().UnixNano()))
)

// DesktopUserAgent is the fixed agent used by warmup, the verifier and the browser
const DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

func pick(pool []string) string {
	rndMu.Lock()
	defer rndMu.Unlock()
	return pool[rnd.Intn(len(pool))]
}

// Jitter returns a random duration in [0, max)
func Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	rndMu.Lock()
	defer rndMu.Unlock()
	return time.Duration(rnd.Int63n(int64(max)))
}

// RandomHeaders returns browser-like headers drawn from the pools
func RandomHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", pick(userAgents))
	h.Set("Accept", pick(acceptHeaders))
	h.Set("Accept-Language", pick(acceptLanguages))
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("DNT", "1")
	return h
}

// BrowserHeaders returns the fixed header set used for session warmup
func BrowserHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", DesktopUserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Referer", "https://www.google.com/")
	h.Set("DNT", "1")
	h.Set("Connection", "keep-alive")
	return h
}

// Page is a fetched document decoded to UTF-8
type Page struct {
	URL     string
	Status  int
	Body    string
	Cookies []*http.Cookie
}

// FetchPage sends a GET with the given headers and cookies. Non-2xx statuses
// are returned in Page.Status rather than as errors; use CheckStatus to
// classify them.
func FetchPage(ctx context.Context, client *http.Client, url string, header http.Header, cookies []*http.Cookie) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.NewNetwork("http", "fetch "+url, err)
	}
	defer resp.Body.Close()

	body, err := DecodeBody(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, errors.NewNetwork("http", "read "+url, err)
	}

	return &Page{
		URL:     url,
		Status:  resp.StatusCode,
		Body:    body,
		Cookies: resp.Cookies(),
	}, nil
}

// FetchWithRandomHeaders fetches url with a freshly randomized header set
func FetchWithRandomHeaders(ctx context.Context, client *http.Client, url string, cookies []*http.Cookie) (*Page, error) {
	return FetchPage(ctx, client, url, RandomHeaders(), cookies)
}

// CheckStatus maps an HTTP status onto the error taxonomy
func CheckStatus(provider, url string, status int, retryAfter string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound || status == http.StatusGone:
		return errors.NewNotFound(provider, url)
	case status == http.StatusTooManyRequests || status == http.StatusForbidden || status == 430:
		return errors.NewRateLimit(provider, status, retryAfter)
	case status >= 500:
		return errors.NewNetwork(provider, fmt.Sprintf("fetch %s unexpected status code: %d", url, status), nil)
	default:
		return errors.NewValidation(provider, fmt.Sprintf("fetch %s unexpected status code: %d", url, status))
	}
}

// DecodeBody reads r and converts it to UTF-8 using the Content-Type header
// and the body itself as hints.
func DecodeBody(r io.Reader, contentType string) (string, error) {
	bodyBytes, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	encoding, name, _ := charset.DetermineEncoding(bodyBytes, contentType)
	if name == "utf-8" || name == "UTF-8" {
		return string(bodyBytes), nil
	}

	utf8Reader := encoding.NewDecoder().Reader(bytes.NewReader(bodyBytes))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, utf8Reader); err != nil {
		return "", fmt.Errorf("failed to read converted UTF-8 body: %w", err)
	}
	return buf.String(), nil
}
