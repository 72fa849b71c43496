// Package catalog talks to the marketplace: catalog search over the JSON API
// and direct detail page fetches.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"sjsage522/listingworker/helpers"
	"sjsage522/listingworker/internal/models"
	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/pkg/errors"
	"sjsage522/listingworker/services/cache"

	"github.com/go-resty/resty/v2"
)

const provider = "vinted"

// DefaultBlockWindow is how long catalog requests short-circuit after the
// marketplace rate limits us
const DefaultBlockWindow = time.Minute

// Options configures a Client
type Options struct {
	Timeout time.Duration
	// Cache is optional. CacheTTL of zero disables page caching but keeps the
	// rate-limit block key.
	Cache       cache.CacheService
	CacheTTL    time.Duration
	BlockWindow time.Duration
}

// Client is the marketplace client
type Client struct {
	http *resty.Client
	opts Options
	log  *logger.Logger

	mutex   sync.RWMutex
	cookies []*http.Cookie
}

// NewClient creates a marketplace client
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.BlockWindow <= 0 {
		opts.BlockWindow = DefaultBlockWindow
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetHeader("User-Agent", helpers.DesktopUserAgent)

	return &Client{
		http: client,
		opts: opts,
		log:  logger.ForCrawler("catalog"),
	}
}

// SetCookies replaces the session cookies sent with every request
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cookies = cookies
}

func (c *Client) sessionCookies() []*http.Cookie {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.cookies
}

type searchResponse struct {
	Items []apiItem `json:"items"`
}

type apiItem struct {
	ID         int64           `json:"id"`
	Title      string          `json:"title"`
	Price      json.RawMessage `json:"price"`
	Currency   string          `json:"currency"`
	URL        string          `json:"url"`
	BrandTitle string          `json:"brand_title"`
	SizeTitle  string          `json:"size_title"`
	Status     string          `json:"status"`
	User       *struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
	} `json:"user"`
	Photo *struct {
		URL string `json:"url"`
	} `json:"photo"`
}

// Search fetches one catalog page. catalogURL is a catalog page URL as built
// by BuildCatalogURL and WithPage.
func (c *Client) Search(ctx context.Context, catalogURL string, perPage int) ([]models.CatalogItem, error) {
	apiURL, err := APIURL(catalogURL, perPage)
	if err != nil {
		return nil, errors.NewValidation(provider, err.Error())
	}
	host := hostOf(apiURL)

	if c.blocked(host) {
		return nil, errors.NewRateLimit(provider, http.StatusTooManyRequests, "cached block")
	}

	body, cached := c.cachedPage(apiURL)
	if !cached {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Accept", "application/json, text/plain, */*").
			SetCookies(c.sessionCookies()).
			Get(apiURL)
		if err != nil {
			return nil, errors.NewNetwork(provider, "catalog search "+apiURL, err)
		}

		if err := helpers.CheckStatus(provider, apiURL, resp.StatusCode(), resp.Header().Get("Retry-After")); err != nil {
			if errors.IsType(err, errors.ErrorTypeRateLimit) {
				c.block(host)
			}
			return nil, err
		}
		body = resp.Body()
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.NewParsing(provider, "decode catalog response", err)
	}
	if !cached {
		c.storePage(apiURL, body)
	}

	items := make([]models.CatalogItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		items = append(items, toCatalogItem(it, apiURL))
	}

	c.log.Debug().
		Str("url", apiURL).
		Int("items", len(items)).
		Bool("cached", cached).
		Msg("Catalog page fetched")

	return items, nil
}

// Detail fetches a detail page directly and returns its HTML
func (c *Client) Detail(ctx context.Context, itemURL string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.9").
		SetCookies(c.sessionCookies()).
		Get(itemURL)
	if err != nil {
		return "", errors.NewNetwork(provider, "detail fetch "+itemURL, err)
	}
	if err := helpers.CheckStatus(provider, itemURL, resp.StatusCode(), resp.Header().Get("Retry-After")); err != nil {
		return "", err
	}

	html, err := helpers.DecodeBody(bytes.NewReader(resp.Body()), resp.Header().Get("Content-Type"))
	if err != nil {
		return "", errors.NewParsing(provider, "decode detail page", err)
	}
	return html, nil
}

func (c *Client) blocked(host string) bool {
	if c.opts.Cache == nil {
		return false
	}
	_, err := c.opts.Cache.Get(blockKey(host))
	return err == nil
}

func (c *Client) block(host string) {
	if c.opts.Cache == nil {
		return
	}
	if err := c.opts.Cache.Set(blockKey(host), []byte("1"), c.opts.BlockWindow); err != nil {
		c.log.Warn().Err(err).Str("host", host).Msg("Failed to store rate-limit block")
	}
}

func (c *Client) cachedPage(apiURL string) ([]byte, bool) {
	if c.opts.Cache == nil || c.opts.CacheTTL <= 0 {
		return nil, false
	}
	body, err := c.opts.Cache.Get(cache.Key("catalog", apiURL))
	if err != nil {
		if !stderrors.Is(err, cache.ErrMiss) {
			c.log.Debug().Err(err).Msg("Catalog cache unavailable")
		}
		return nil, false
	}
	return body, true
}

func (c *Client) storePage(apiURL string, body []byte) {
	if c.opts.Cache == nil || c.opts.CacheTTL <= 0 {
		return
	}
	if err := c.opts.Cache.Set(cache.Key("catalog", apiURL), body, c.opts.CacheTTL); err != nil {
		c.log.Debug().Err(err).Msg("Failed to cache catalog page")
	}
}

func blockKey(host string) string {
	return cache.Key("catalog-block", host)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

func toCatalogItem(it apiItem, apiURL string) models.CatalogItem {
	item := models.CatalogItem{
		URL:       absoluteURL(it.URL, apiURL),
		Title:     strings.TrimSpace(it.Title),
		Currency:  it.Currency,
		Brand:     it.BrandTitle,
		Size:      it.SizeTitle,
		Condition: it.Status,
	}
	if it.ID != 0 {
		id := it.ID
		item.MarketplaceID = &id
	}

	price, currency := parsePrice(it.Price)
	item.Price = price
	if item.Currency == "" {
		item.Currency = currency
	}

	if it.User != nil {
		item.SellerName = it.User.Login
		if it.User.ID != 0 {
			item.SellerID = strconv.FormatInt(it.User.ID, 10)
		}
	}
	if it.Photo != nil {
		item.Photo = it.Photo.URL
	}
	return item
}

// parsePrice accepts a number, a numeric string, or an
// {"amount": ..., "currency_code": ...} object.
func parsePrice(raw json.RawMessage) (*float64, string) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ""
	}

	var obj struct {
		Amount       json.RawMessage `json:"amount"`
		CurrencyCode string          `json:"currency_code"`
	}
	if raw[0] == '{' {
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, ""
		}
		price, _ := parsePrice(obj.Amount)
		return price, obj.CurrencyCode
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, ""
	}
	return &f, ""
}

func absoluteURL(ref, base string) string {
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil || r.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
