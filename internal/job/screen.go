package job

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// FindBannedTerms returns the terms that occur in text, ignoring case,
// in the order they are configured. Blank terms never match.
func FindBannedTerms(text string, terms []string) []string {
	if len(terms) == 0 || text == "" {
		return nil
	}

	fold := cases.Fold()
	folded := fold.String(text)

	var found []string
	seen := make(map[string]bool)
	for _, term := range terms {
		t := strings.TrimSpace(term)
		if t == "" {
			continue
		}
		key := fold.String(t)
		if seen[key] {
			continue
		}
		if strings.Contains(folded, key) {
			seen[key] = true
			found = append(found, t)
		}
	}
	return found
}

// CharCount returns the number of characters in text
func CharCount(text string) int {
	return utf8.RuneCountInString(text)
}
