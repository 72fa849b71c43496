package helpers

import (
	"strings"
	"unicode"
)

// StandardizeBrand folds the console makers onto one spelling and title-cases
// everything else. Empty input stays empty.
func StandardizeBrand(brand string) string {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return ""
	}

	lower := strings.ToLower(brand)
	switch {
	case strings.Contains(lower, "sony"), strings.Contains(lower, "playstation"):
		return "Sony"
	case strings.Contains(lower, "microsoft"), strings.Contains(lower, "xbox"):
		return "Microsoft"
	case strings.Contains(lower, "nintendo"):
		return "Nintendo"
	}
	return titleCase(lower)
}

// titleCase upper-cases the first letter after every non-letter
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(r)
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

var languageKeywords = []struct {
	lang     string
	keywords []string
}{
	{"pl", []string{"gra", "nowa", "nowy", "nowe", "folia", "używana", "stan", "edycja"}},
	{"sk", []string{"hra", "nová", "nový", "nové", "konzola", "použitá"}},
	{"cs", []string{"perfektní", "stavu", "bazarový"}},
}

// DetectLanguage guesses a listing language from words in its title.
// Returns "" when nothing matches.
func DetectLanguage(title string) string {
	lower := strings.ToLower(title)
	if lower == "" {
		return ""
	}
	for _, l := range languageKeywords {
		for _, kw := range l.keywords {
			if strings.Contains(lower, kw) {
				return l.lang
			}
		}
	}
	return ""
}
