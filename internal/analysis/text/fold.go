// Package text provides the accent-insensitive normalization shared by the
// intake heuristics and the directory resolvers.
package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics and collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Words splits folded text into word tokens, dropping punctuation. Digits,
// '@', '_' and '.' inside a token are kept so handles and amounts survive.
func Words(s string) []string {
	raw := strings.FieldsFunc(Fold(s), func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		switch r {
		case '@', '_', '.', ',', '%', '$':
			return false
		}
		return true
	})

	words := raw[:0]
	for _, w := range raw {
		if w = CleanToken(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// CleanToken trims sentence punctuation from the edges of a token.
func CleanToken(tok string) string {
	return strings.Trim(tok, ".,;:!?\"'()[]")
}

// ContainsWord reports whether the folded haystack contains needle as a whole
// word or phrase.
func ContainsWord(haystack, needle string) bool {
	h := " " + strings.Join(Words(haystack), " ") + " "
	n := strings.Join(Words(needle), " ")
	if n == "" {
		return false
	}
	return strings.Contains(h, " "+n+" ")
}

// ContainsAny reports whether any needle occurs as a whole word or phrase.
func ContainsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if ContainsWord(haystack, n) {
			return true
		}
	}
	return false
}

// Capitalize upper-cases the first letter of s.
func Capitalize(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}
