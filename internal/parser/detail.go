// Package parser extracts listing details from a rendered detail page.
package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"sjsage522/listingworker/internal/models"
	"sjsage522/listingworker/pkg/errors"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the visible markup, tried after the embedded state payload
const (
	brandSelector       = `[data-testid="brand_link"], a[href*="/brand/"]`
	sizeSelector        = `[data-testid="size"], [class*="size"]`
	conditionSelector   = `[data-testid="item_condition"], [class*="condition"]`
	locationSelector    = `[data-testid="location"], [class*="item-location"]`
	sellerSelector      = `[data-testid="user_link"], [class*="UserInfo"] a`
	descriptionSelector = `[data-testid="item_description"], [class*="ItemDescription"], [itemprop="description"]`
	photoSelector       = `img[data-testid="item-photo"], meta[property="og:image"], img[src]`
	shippingSelector    = `[data-testid*="shipping"], [class*="shipping"]`
)

var (
	preloadedStateRe = regexp.MustCompile(`(?s)window\.__PRELOADED_STATE__\s*=\s*(\{.*?\});`)
	shippingTextRe   = regexp.MustCompile(`(?i)od\s+([\d,]+)\s*€`)
)

type preloadedState struct {
	Item struct {
		ShippingPrice json.RawMessage `json:"shipping_price"`
		User          struct {
			City         string `json:"city"`
			CountryTitle string `json:"country_title"`
			Country      string `json:"country"`
		} `json:"user"`
	} `json:"item"`
}

// ParseDetail extracts detail fields from page HTML. Missing fields are left
// empty; only an unparseable document is an error.
func ParseDetail(html string) (*models.Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.NewParsing("detail", "HTML parsing failed", err)
	}

	d := &models.Detail{
		Brand:       firstText(doc, brandSelector),
		Size:        firstText(doc, sizeSelector),
		Condition:   firstText(doc, conditionSelector),
		Location:    firstText(doc, locationSelector),
		SellerName:  firstText(doc, sellerSelector),
		Description: firstText(doc, descriptionSelector),
		Photos:      photos(doc),
	}
	if lang, ok := doc.Find("html").First().Attr("lang"); ok {
		d.Language = strings.TrimSpace(lang)
	}

	applyPreloadedState(doc, d)

	if d.ShippingCents == nil {
		d.ShippingCents = shippingFromText(doc)
	}

	return d, nil
}

func firstText(doc *goquery.Document, selector string) string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(sel.Text())
}

func photos(doc *goquery.Document) []string {
	var out []string
	seen := map[string]bool{}
	doc.Find(photoSelector).Each(func(_ int, s *goquery.Selection) {
		attr := "src"
		if goquery.NodeName(s) == "meta" {
			attr = "content"
		}
		src, _ := s.Attr(attr)
		src = strings.TrimSpace(src)
		if src == "" || seen[src] {
			return
		}
		seen[src] = true
		out = append(out, src)
	})
	return out
}

// applyPreloadedState reads shipping price and seller location from the
// embedded state script. Location from the payload replaces the selector value.
func applyPreloadedState(doc *goquery.Document, d *models.Detail) {
	var state *preloadedState
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, "window.__PRELOADED_STATE__") {
			return true
		}
		m := preloadedStateRe.FindStringSubmatch(text)
		if m == nil {
			return true
		}
		var st preloadedState
		if err := json.Unmarshal([]byte(m[1]), &st); err != nil {
			return true
		}
		state = &st
		return false
	})
	if state == nil {
		return
	}

	if cents, ok := centsFromJSON(state.Item.ShippingPrice); ok {
		d.ShippingCents = &cents
	}

	user := state.Item.User
	country := user.CountryTitle
	if country == "" {
		country = user.Country
	}
	switch {
	case user.City != "" && country != "":
		d.Location = fmt.Sprintf("%s, %s", user.City, country)
	case country != "":
		d.Location = country
	case user.City != "":
		d.Location = user.City
	}
}

// centsFromJSON accepts a number or a numeric string. Zero and null count as
// absent.
func centsFromJSON(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f == 0 {
		return 0, false
	}
	return int(math.Round(f * 100)), true
}

func shippingFromText(doc *goquery.Document) *int {
	sel := doc.Find(shippingSelector).First()
	if sel.Length() == 0 {
		return nil
	}
	m := shippingTextRe.FindStringSubmatch(strings.TrimSpace(sel.Text()))
	if m == nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return nil
	}
	cents := int(math.Round(f * 100))
	return &cents
}
