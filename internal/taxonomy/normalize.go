package taxonomy

import (
	"strings"
	"unicode"
)

var conditionAliases = map[string]string{
	"new with tags": "new_with_tags",
	"brand new":     "new",
	"new":           "new",
	"like new":      "like_new",
	"very good":     "very_good",
	"good":          "good",
	"satisfactory":  "satisfactory",
	"acceptable":    "satisfactory",
	"fair":          "fair",
	"poor":          "poor",
	"needs repair":  "needs_repair",
	"for parts":     "needs_repair",
	"unknown":       "unknown",
	"not specified": "unknown",
}

// Slug lowercases s and joins its words with underscores; '-', '/', '_' and
// whitespace all separate words.
func Slug(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		switch r {
		case '-', '/', '_', ' ', '\t', '\n':
			return true
		}
		return false
	})
	return strings.Join(fields, "_")
}

// NormalizeCondition maps raw condition text onto a canonical condition.
// ok is false when the text is empty or matches nothing canonical; code and
// label are still filled for non-empty text so a new option can be created.
func NormalizeCondition(raw string) (opt Option, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Option{}, false
	}

	lower := strings.ToLower(raw)
	slug := Slug(raw)
	candidates := []string{lower, strings.ReplaceAll(slug, "_", " ")}
	for _, c := range candidates {
		if code, found := conditionAliases[c]; found {
			return conditionByCode(code)
		}
	}
	if o, found := conditionByCode(slug); found {
		return o, true
	}
	for _, o := range Conditions {
		if strings.EqualFold(o.Label, raw) {
			return o, true
		}
	}

	return Option{Code: slug, Label: titleWords(slug)}, false
}

func conditionByCode(code string) (Option, bool) {
	for _, o := range Conditions {
		if o.Code == code {
			return o, true
		}
	}
	return Option{}, false
}

func titleWords(slug string) string {
	words := strings.Split(slug, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(sub)))
}
