package discovery

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold strips diacritics and lowercases s ("Lagos Université" -> "lagos universite").
func Fold(s string) string {
	// Chained transformers keep state, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Tokenize folds s and splits it on anything that is not a letter or digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// FoldKey is the comparison form of a facet value or keyword: folded, with
// runs of whitespace collapsed.
func FoldKey(v string) string {
	return strings.Join(strings.Fields(Fold(v)), " ")
}

// bag returns the sorted, de-duplicated tokens of every text field.
func bag(fields ...string) []string {
	var toks []string
	for _, f := range fields {
		toks = append(toks, Tokenize(f)...)
	}
	slices.Sort(toks)
	return slices.Compact(toks)
}
