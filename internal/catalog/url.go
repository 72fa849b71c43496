package catalog

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Filters narrows a catalog search
type Filters struct {
	SearchText string
	Categories []int64
	Platforms  []int64
	// Extra holds raw k=v query parameters; entries without '=' are ignored.
	Extra []string
	Order string
}

// CatalogURL returns the catalog root for a locale
func CatalogURL(locale string) string {
	return fmt.Sprintf("https://www.vinted.%s/catalog", locale)
}

// BuildCatalogURL constructs a catalog URL. Parameters keep their insertion
// order: search_text, catalog[i], video_game_platform_ids[i], order, extras.
func BuildCatalogURL(base string, f Filters) string {
	var params []string
	add := func(k, v string) {
		params = append(params, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}

	if f.SearchText != "" {
		add("search_text", f.SearchText)
	}
	for i, c := range f.Categories {
		add(fmt.Sprintf("catalog[%d]", i), strconv.FormatInt(c, 10))
	}
	for i, p := range f.Platforms {
		add(fmt.Sprintf("video_game_platform_ids[%d]", i), strconv.FormatInt(p, 10))
	}
	if f.Order != "" {
		add("order", f.Order)
	}
	for _, e := range f.Extra {
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		add(k, v)
	}

	return base + "?" + strings.Join(params, "&")
}

// WithPage sets the page query parameter, replacing any existing value
func WithPage(rawURL string, page int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse catalog url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// APIURL converts a catalog page URL into the JSON search endpoint on the
// same host. catalog[i] and video_game_platform_ids[i] collapse into
// comma-separated lists; other parameters pass through.
func APIURL(catalogURL string, perPage int) (string, error) {
	u, err := url.Parse(catalogURL)
	if err != nil {
		return "", fmt.Errorf("parse catalog url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("catalog url %q is not absolute", catalogURL)
	}

	in := u.Query()
	out := url.Values{}
	var catalogs, platforms []string
	for key, values := range in {
		switch {
		case key == "catalog[]" || strings.HasPrefix(key, "catalog["):
			catalogs = append(catalogs, values...)
		case key == "video_game_platform_ids[]" || strings.HasPrefix(key, "video_game_platform_ids["):
			platforms = append(platforms, values...)
		case key == "page" || key == "per_page":
		default:
			for _, v := range values {
				out.Add(key, v)
			}
		}
	}
	if len(catalogs) > 0 {
		out.Set("catalog_ids", strings.Join(sortedNumeric(catalogs), ","))
	}
	if len(platforms) > 0 {
		out.Set("video_game_platform_ids", strings.Join(sortedNumeric(platforms), ","))
	}

	page := in.Get("page")
	if page == "" {
		page = "1"
	}
	out.Set("page", page)
	if perPage > 0 {
		out.Set("per_page", strconv.Itoa(perPage))
	}

	api := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/api/v2/catalog/items", RawQuery: out.Encode()}
	return api.String(), nil
}

// sortedNumeric orders IDs numerically so map iteration order never leaks
// into the request URL.
func sortedNumeric(values []string) []string {
	out := append([]string(nil), values...)
	sort.Slice(out, func(i, j int) bool { return lessNumeric(out[i], out[j]) })
	return out
}

func lessNumeric(a, b string) bool {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return x < y
}
