// Package session warms up a marketplace session and shares its cookies
// through a per-locale cookie file.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"sjsage522/listingworker/helpers"
	"sjsage522/listingworker/logger"
)

// ProxyFinder returns a reachable proxy URL
type ProxyFinder interface {
	FindWorking(ctx context.Context) (string, error)
}

// Options configures a Manager
type Options struct {
	// BaseURL is the marketplace root, e.g. https://www.vinted.sk/
	BaseURL     string
	CookiesFile string
	UseProxy    bool
	Proxies     ProxyFinder
	Timeout     time.Duration
	// ProxyTimeout applies to the warmup retried through a proxy.
	ProxyTimeout time.Duration
}

// Manager establishes cookies for one locale
type Manager struct {
	opts Options
	log  *logger.Logger
}

// BaseURL returns the marketplace root for a locale
func BaseURL(locale string) string {
	return fmt.Sprintf("https://www.vinted.%s/", locale)
}

// CookiePath namespaces the cookie file per locale so concurrent runs for
// different locales never share a file: cookies.json -> cookies.sk.json.
func CookiePath(file, locale string) string {
	if locale == "" {
		return file
	}
	ext := filepath.Ext(file)
	return strings.TrimSuffix(file, ext) + "." + locale + ext
}

// NewManager creates a session manager
func NewManager(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.ProxyTimeout <= 0 {
		opts.ProxyTimeout = 20 * time.Second
	}
	return &Manager{
		opts: opts,
		log:  logger.ForSession().WithField("url", opts.BaseURL),
	}
}

// Warmup fetches the marketplace root and saves the returned cookies. When
// the direct request fails and proxy use is enabled, it retries once through
// the first working proxy. Failure is logged and reported, never fatal.
func (m *Manager) Warmup(ctx context.Context) bool {
	m.log.Info().Msg("Warming up session")

	err := m.warmup(ctx, &http.Client{Timeout: m.opts.Timeout})
	if err == nil {
		return true
	}
	m.log.Warn().Err(err).Msg("Direct warmup failed")

	if !m.opts.UseProxy || m.opts.Proxies == nil {
		m.log.Info().Msg("Proxy disabled, skipping proxy retry")
		return false
	}

	addr, err := m.opts.Proxies.FindWorking(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("No working proxy found")
		return false
	}
	proxyURL, err := url.Parse(addr)
	if err != nil {
		m.log.Warn().Err(err).Str("proxy", addr).Msg("Invalid proxy URL")
		return false
	}

	m.log.Info().Str("proxy", addr).Msg("Retrying warmup via proxy")
	client := &http.Client{
		Timeout:   m.opts.ProxyTimeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}
	if err := m.warmup(ctx, client); err != nil {
		m.log.Warn().Err(err).Str("proxy", addr).Msg("Proxy warmup also failed")
		return false
	}
	return true
}

func (m *Manager) warmup(ctx context.Context, client *http.Client) error {
	page, err := helpers.FetchPage(ctx, client, m.opts.BaseURL, helpers.BrowserHeaders(), nil)
	if err != nil {
		return err
	}
	if page.Status >= 400 {
		return helpers.CheckStatus("warmup", m.opts.BaseURL, page.Status, "")
	}

	if len(page.Cookies) == 0 {
		m.log.Warn().Msg("No cookies captured")
		return nil
	}
	if err := SaveCookies(m.opts.CookiesFile, page.Cookies); err != nil {
		m.log.Warn().Err(err).Str("file", m.opts.CookiesFile).Msg("Failed to save cookies")
		return nil
	}
	m.log.Info().Str("file", m.opts.CookiesFile).Int("cookies", len(page.Cookies)).Msg("Warmup OK, cookies saved")
	return nil
}

// Cookies loads the saved cookies for this manager's locale
func (m *Manager) Cookies() []*http.Cookie {
	cookies, err := LoadCookies(m.opts.CookiesFile)
	if err != nil {
		m.log.Warn().Err(err).Str("file", m.opts.CookiesFile).Msg("Failed to load cookies")
		return nil
	}
	return cookies
}

// SaveCookies writes cookies as a name->value JSON object. The file is
// written to a temp file and renamed, so readers never observe a partial write.
func SaveCookies(path string, cookies []*http.Cookie) error {
	values := make(map[string]string, len(cookies))
	for _, c := range cookies {
		values[c.Name] = c.Value
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cookie file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cookies: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cookie file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace cookie file: %w", err)
	}
	return nil
}

// LoadCookies reads a cookie file written by SaveCookies. A missing file
// yields no cookies and no error.
func LoadCookies(path string) ([]*http.Cookie, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode cookies: %w", err)
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	cookies := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		cookies = append(cookies, &http.Cookie{Name: name, Value: values[name]})
	}
	return cookies, nil
}
