// Package entity resolves named entities extracted from articles against
// the canonical entity table: normalization, name matching (aliases,
// negative-match vetoes, fuzzy matching) and alias mining from article
// text.
package entity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jeremyandrews/argus/internal/core"
)

// isJoiner reports punctuation that commonly appears inside names and
// should be preserved rather than treated as a word boundary (spec §4.5:
// "punctuation removal (keeping alphanumerics and spaces)" still needs to
// keep multiword names like "O'Brien" or "AT&T" coherent before the space
// collapse runs).
func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '‘',
		'-', '–', '—':
		return true
	default:
		return false
	}
}

var diacriticFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// strokeFold covers letters whose stroke is part of the base character and
// so has no NFD decomposition for diacriticFold to strip.
var strokeFold = strings.NewReplacer("ø", "o", "Ø", "O", "ł", "l", "Ł", "L", "đ", "d", "Đ", "D")

// foldDiacritics maps accented letters to their closest ASCII form (e.g.
// "café" -> "cafe", "Møller" -> "Moller").
func foldDiacritics(s string) string {
	s = strokeFold.Replace(s)
	out, _, err := transform.String(diacriticFold, s)
	if err != nil {
		return s
	}
	return out
}

// commonSuffixes is the Porter-style suffix table applied to non-Person
// types (spec §4.5: "per-type stemming ... disabled for Person names").
var commonSuffixes = []string{"ing", "ed", "ization", "ational", "s"}

func stem(word string) string {
	for _, suffix := range commonSuffixes {
		if len(word) > len(suffix)+2 && strings.HasSuffix(word, suffix) {
			return strings.TrimSuffix(word, suffix)
		}
	}
	return word
}

// Normalize applies the spec's normalization pipeline in order: lower-case,
// whitespace collapse, punctuation removal (keeping alphanumerics, spaces
// and name-internal joiners), per-type stemming (skipped for Person), and
// finally diacritic folding (spec §4.5).
func Normalize(name string, entityType core.EntityType) string {
	var out strings.Builder
	lastWasSpace := true
	for _, r := range name {
		c := unicode.ToLower(r)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}
		switch {
		case unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c):
			out.WriteRune(c)
			lastWasSpace = false
		case c == ' ' || unicode.IsSpace(c):
			if !lastWasSpace {
				out.WriteRune(' ')
				lastWasSpace = true
			}
		default:
			// drop punctuation that is not a joiner or a separator-worthy space
		}
	}
	normalized := strings.TrimSpace(out.String())

	if entityType != core.EntityPerson {
		tokens := strings.Fields(normalized)
		for i, tok := range tokens {
			tokens[i] = stem(tok)
		}
		normalized = strings.Join(tokens, " ")
	}

	return foldDiacritics(normalized)
}
