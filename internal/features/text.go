package features

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var longDigitRun = regexp.MustCompile(`\d{4,}`)

// NormalizeText lowercases s, strips accents, drops digit runs of four or
// more, replaces everything but letters with spaces and collapses whitespace.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)
	s = stripAccents(s)
	s = longDigitRun.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return ' '
	}, s)

	return strings.Join(strings.Fields(s), " ")
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Terms returns the unigrams and bigrams of an already normalized string.
// Single character words are dropped before bigrams are formed.
func Terms(normalized string) []string {
	words := make([]string, 0, 8)
	for _, w := range strings.Fields(normalized) {
		if utf8.RuneCountInString(w) >= 2 {
			words = append(words, w)
		}
	}

	terms := make([]string, 0, 2*len(words))
	terms = append(terms, words...)
	for i := 0; i+1 < len(words); i++ {
		terms = append(terms, words[i]+" "+words[i+1])
	}
	return terms
}
