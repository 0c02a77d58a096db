// Package normalize canonicalizes free-text menu item names into a
// comparable token form and builds stable target signatures.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopwords are dropped from normalized names. Marketing filler that
// carries no identity signal.
var stopwords = map[string]struct{}{
	"the":     {},
	"a":       {},
	"an":      {},
	"and":     {},
	"with":    {},
	"style":   {},
	"special": {},
}

// foldDiacritics decomposes to NFD and strips combining marks, so
// "Jalapeño" and "Jalapeno" normalize identically.
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, folds diacritics, strips non-alphanumeric runes
// to whitespace, drops stopwords and rejoins with single spaces. It is
// idempotent: normalizing an already-normalized string returns it
// unchanged.
func Normalize(text string) string {
	return strings.Join(Tokenize(text), " ")
}

// Tokenize runs the normalization pipeline and returns the ordered
// token list.
func Tokenize(text string) []string {
	folded, _, err := transform.String(foldDiacritics, text)
	if err != nil {
		folded = text
	}
	lower := strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	fields := strings.Fields(b.String())
	tokens := fields[:0]
	for _, tok := range fields {
		if _, skip := stopwords[tok]; skip {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// BuildSignature normalizes the item, category and variant independently,
// drops empty results and joins the rest with "|". The signature is the
// stable identity used to correlate matches to a target across runs.
func BuildSignature(item, category, variant string) string {
	parts := make([]string, 0, 3)
	for _, field := range []string{item, category, variant} {
		if n := Normalize(field); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}
