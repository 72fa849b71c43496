// Package taxonomy holds the canonical categories, platforms, conditions and
// sources, and resolves free text onto their IDs.
package taxonomy

import "sort"

// Option is one canonical (ID, code, label) triple
type Option struct {
	ID    int64
	Code  string
	Label string
	Group string
}

// Categories are the marketplace catalog IDs seeded into category_options
var Categories = []Option{
	{2994, "electronics", "Electronics", "Electronics & Gaming"},
	{3026, "video_games", "Video Games", "Electronics & Gaming"},
	{1953, "computers", "Computers", "Electronics & Gaming"},
	{184, "mobile_phones", "Mobile Phones", "Electronics & Gaming"},
	{188, "tablets", "Tablets", "Electronics & Gaming"},
	{3013, "consoles", "Consoles", "Electronics & Gaming"},
	{3055, "accessories", "Accessories", "Electronics & Gaming"},
	{5, "books_entertainment", "Books & Entertainment", "Home & Lifestyle"},
	{1243, "home_living", "Home & Living", "Home & Lifestyle"},
	{1261, "collectibles", "Collectibles", "Home & Lifestyle"},
	{16, "womens_clothing", "Women's Clothing", "Fashion"},
	{18, "mens_clothing", "Men's Clothing", "Fashion"},
	{12, "kids_baby", "Kids & Baby", "Fashion"},
	{1, "women", "Women", "Fashion"},
	{2, "men", "Men", "Fashion"},
	{4, "kids", "Kids", "Fashion"},
}

// Platforms are the video_game_platform_ids values seeded into platform_options
var Platforms = []Option{
	{1281, "ps5", "PlayStation 5", "PlayStation"},
	{1280, "ps4", "PlayStation 4", "PlayStation"},
	{1279, "ps3", "PlayStation 3", "PlayStation"},
	{1278, "ps2", "PlayStation 2", "PlayStation"},
	{1277, "ps1", "PlayStation 1", "PlayStation"},
	{1286, "psp", "PlayStation Portable (PSP)", "PlayStation"},
	{1287, "ps_vita", "PlayStation Vita", "PlayStation"},
	{1282, "xbox_series", "Xbox Series X/S", "Xbox"},
	{1283, "xbox_one", "Xbox One", "Xbox"},
	{1284, "xbox_360", "Xbox 360", "Xbox"},
	{1285, "xbox", "Xbox", "Xbox"},
	{1288, "switch", "Nintendo Switch", "Nintendo"},
	{1289, "wii_u", "Nintendo Wii U", "Nintendo"},
	{1290, "wii", "Nintendo Wii", "Nintendo"},
	{1291, "ds", "Nintendo DS", "Nintendo"},
	{1292, "3ds", "Nintendo 3DS", "Nintendo"},
	{1293, "gamecube", "Nintendo GameCube", "Nintendo"},
	{1294, "n64", "Nintendo 64", "Nintendo"},
	{1295, "game_boy", "Game Boy", "Nintendo"},
	{1296, "sega", "Sega", "Other"},
	{1297, "pc", "PC Gaming", "Other"},
}

// Conditions are the canonical item conditions
var Conditions = []Option{
	{1, "new_with_tags", "New with tags", ""},
	{2, "new", "New", ""},
	{3, "like_new", "Like new", ""},
	{4, "very_good", "Very good", ""},
	{5, "good", "Good", ""},
	{6, "satisfactory", "Satisfactory", ""},
	{7, "fair", "Fair", ""},
	{8, "poor", "Poor", ""},
	{9, "needs_repair", "Needs repair", ""},
	{10, "unknown", "Unknown", ""},
}

// Sources are the marketplaces listings can come from
var Sources = []Option{
	{1, "vinted", "Vinted", ""},
	{2, "bazos", "Bazos", ""},
	{3, "manual", "Manual import", ""},
	{4, "unknown", "Unknown", ""},
}

// FirstDynamicID is where IDs for options created on first sight start, well
// above any marketplace-assigned ID in the master lists.
const FirstDynamicID = 100000

// Kind selects one of the option tables
type Kind string

const (
	KindCategory  Kind = "category"
	KindPlatform  Kind = "platform"
	KindCondition Kind = "condition"
	KindSource    Kind = "source"
)

// Table returns the backing table name
func (k Kind) Table() string {
	return string(k) + "_options"
}

// Master returns the seed list for a kind
func (k Kind) Master() []Option {
	switch k {
	case KindCategory:
		return Categories
	case KindPlatform:
		return Platforms
	case KindCondition:
		return Conditions
	case KindSource:
		return Sources
	}
	return nil
}

// Kinds lists every option kind in seeding order
func Kinds() []Kind {
	return []Kind{KindCategory, KindPlatform, KindCondition, KindSource}
}

// Lookup finds a master option by ID
func Lookup(k Kind, id int64) (Option, bool) {
	for _, o := range k.Master() {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Search returns master options whose label contains query, case-insensitively,
// ordered by ID.
func Search(k Kind, query string) []Option {
	q := Slug(query)
	var out []Option
	for _, o := range k.Master() {
		if q == "" || containsFold(o.Label, query) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
