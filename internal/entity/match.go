package entity

import "strings"

// variationTable holds fixed common spelling variants that should be
// treated as equal once substituted (spec §4.5). Substitution is tried in
// both directions.
var variationTable = map[string]string{
	"project":     "projekt",
	"center":      "centre",
	"color":       "colour",
	"organization": "organisation",
	"defense":     "defence",
}

// applyVariations substitutes any known variant word in s with its
// counterpart from variationTable, returning both possible rewrites (s is
// tried against both the forward and reverse direction of the table).
func applyVariations(s string) []string {
	variants := map[string]bool{}
	words := strings.Fields(s)
	for i, w := range words {
		if alt, ok := variationTable[w]; ok {
			rewritten := append([]string{}, words...)
			rewritten[i] = alt
			variants[strings.Join(rewritten, " ")] = true
		}
		for k, v := range variationTable {
			if w == v {
				rewritten := append([]string{}, words...)
				rewritten[i] = k
				variants[strings.Join(rewritten, " ")] = true
			}
		}
	}
	out := make([]string, 0, len(variants))
	for v := range variants {
		out = append(out, v)
	}
	return out
}

// tokenContainment reports whether every token of the shorter of a, b
// appears as a token of the longer one. person additionally requires the
// shorter side to carry at least two tokens, so "John" does not falsely
// contain-match "John Doe Smith" (spec §4.5).
func tokenContainment(a, b string, person bool) bool {
	ta, tb := strings.Fields(a), strings.Fields(b)
	shorter, longer := ta, tb
	if len(tb) < len(ta) {
		shorter, longer = tb, ta
	}
	if len(shorter) == 0 {
		return false
	}
	if person && len(shorter) < 2 {
		return false
	}

	longerSet := make(map[string]bool, len(longer))
	for _, t := range longer {
		longerSet[t] = true
	}
	for _, t := range shorter {
		if !longerSet[t] {
			return false
		}
	}
	return true
}

// damerauLevenshtein computes the bounded Damerau-Levenshtein edit distance
// between a and b. When the lengths alone differ by more than limit it
// returns limit+1 without computing the table, since the caller only cares
// about the threshold comparison; otherwise it returns the full distance.
func damerauLevenshtein(a, b string, limit int) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	if abs(la-lb) > limit {
		return limit + 1
	}

	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
	}
	for i := 0; i <= la; i++ {
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}

	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d[i][j] = min3(
				d[i-1][j]+1,
				d[i][j-1]+1,
				d[i-1][j-1]+cost,
			)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				if t := d[i-2][j-2] + 1; t < d[i][j] {
					d[i][j] = t
				}
			}
		}
	}
	return d[la][lb]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// editDistanceThreshold returns the bounded Damerau-Levenshtein threshold
// for a name of the given length (spec §4.5).
func editDistanceThreshold(length int) int {
	switch {
	case length <= 10:
		return 1
	case length <= 20:
		return 2
	default:
		return 3
	}
}

// firstToken returns the first whitespace-delimited token of s, or "" if s
// is empty.
func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
