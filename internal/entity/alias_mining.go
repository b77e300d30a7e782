package entity

import (
	"regexp"

	"github.com/jeremyandrews/argus/internal/core"
)

// miningPattern pairs an anchored regex with the confidence assigned to
// matches it produces and which capture group holds the canonical name vs
// the alias (spec §4.5 alias mining).
type miningPattern struct {
	re             *regexp.Regexp
	confidence     float64
	canonicalGroup int
	aliasGroup     int
}

var miningPatterns = []miningPattern{
	{
		re:             regexp.MustCompile(`(?i)([A-Z][\w' -]+?),?\s+also known as\s+([A-Z][\w' -]+)`),
		confidence:     0.8,
		canonicalGroup: 1,
		aliasGroup:     2,
	},
	{
		re:             regexp.MustCompile(`(?i)([A-Z][\w' -]+?)\s*\(aka\s+([A-Z][\w' -]+)\)`),
		confidence:     0.75,
		canonicalGroup: 1,
		aliasGroup:     2,
	},
	{
		re:             regexp.MustCompile(`(?i)([A-Z][\w' -]+?),?\s+now known as\s+([A-Z][\w' -]+)`),
		confidence:     0.7,
		canonicalGroup: 2,
		aliasGroup:     1,
	},
	{
		re:             regexp.MustCompile(`(?i)([A-Z][\w' -]+?),?\s+which was founded by\s+([A-Z][\w' -]+)`),
		confidence:     0.6,
		canonicalGroup: 1,
		aliasGroup:     2,
	},
}

// MineAliases scans text for the fixed set of anchored alias patterns and
// returns pending alias candidates (source "pattern") for review.
func MineAliases(text string, entityType core.EntityType) []core.Alias {
	var out []core.Alias
	for _, p := range miningPatterns {
		for _, match := range p.re.FindAllStringSubmatch(text, -1) {
			canonical := match[p.canonicalGroup]
			alias := match[p.aliasGroup]
			if canonical == "" || alias == "" {
				continue
			}
			out = append(out, core.Alias{
				CanonicalName:   canonical,
				AliasText:       alias,
				NormalizedCanon: Normalize(canonical, entityType),
				NormalizedAlias: Normalize(alias, entityType),
				Type:            entityType,
				Source:          core.AliasSourcePattern,
				Confidence:      p.confidence,
				Status:          core.AliasPending,
			})
		}
	}
	return out
}
