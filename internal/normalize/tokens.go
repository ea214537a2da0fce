// Package normalize converts raw decoded rows into canonical transaction
// tuples and provides the shared description tokenizer.
package normalize

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// accentFolder strips combining marks so "Salário" and "salario" tokenize
// identically.
var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldAccents lowercases s and removes diacritical marks.
func FoldAccents(s string) string {
	folded, _, err := transform.String(accentFolder, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}

// Tokenize splits a description into a sorted set of unique, case- and
// accent-insensitive tokens. Both the rule engine and the duplicate detector
// use this so keyword matching and similarity agree on what a word is.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(FoldAccents(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}

	sort.Strings(tokens)
	return tokens
}

// TokenSet builds a membership set from Tokenize output.
func TokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
