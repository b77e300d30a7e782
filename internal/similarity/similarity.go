// Package similarity scores candidate article pairs by combining dense
// vector cosine similarity with weighted, per-type entity overlap and
// temporal proximity into the single match score the clustering engine
// acts on.
package similarity

import (
	"math"
	"time"

	"github.com/jeremyandrews/argus/internal/core"
)

// MatchThreshold is the minimum final score treated as a match.
const MatchThreshold = 0.75

const (
	weightPerson   = 0.25
	weightOrg      = 0.20
	weightLocation = 0.10
	weightEvent    = 0.10
	weightProduct  = 0.20
	weightTemporal = 0.15

	weightVector = 0.60
	weightEntity = 0.40
)

// EntitySide is one article's importance-weighted entities for scoring,
// grouped by type.
type EntitySide struct {
	Person       []core.WeightedEntity
	Organization []core.WeightedEntity
	Location     []core.WeightedEntity
	Event        []core.WeightedEntity
	Product      []core.WeightedEntity
}

// Candidate is the input to Score: two articles' L2-normalized vectors,
// entity sides, and the date each side sorts by (event_date falling back
// to pub_date).
type Candidate struct {
	SourceVector []float64
	TargetVector []float64
	SourceDate   *time.Time
	TargetDate   *time.Time
	SourceSide   EntitySide
	TargetSide   EntitySide
}

// Result is the scoring breakdown for one candidate pair.
type Result struct {
	VectorScore  float64
	EntityScore  float64
	FinalScore   float64
	IsMatch      bool
	HasOverlap   bool
	NearMiss     bool
	NearMissWhy  string
}

// Score computes the full similarity breakdown for a candidate pair (spec
// §4.6).
func Score(c Candidate) Result {
	vectorScore := clamp01(cosine(c.SourceVector, c.TargetVector))

	personOverlap, personMatched := overlap(c.SourceSide.Person, c.TargetSide.Person)
	orgOverlap, orgMatched := overlap(c.SourceSide.Organization, c.TargetSide.Organization)
	locOverlap, locMatched := overlap(c.SourceSide.Location, c.TargetSide.Location)
	eventOverlap, eventMatched := overlap(c.SourceSide.Event, c.TargetSide.Event)
	productOverlap, productMatched := overlap(c.SourceSide.Product, c.TargetSide.Product)
	hasOverlap := personMatched || orgMatched || locMatched || eventMatched || productMatched

	temporal := temporalProximity(c.SourceDate, c.TargetDate)

	entityScore := weightPerson*personOverlap + weightOrg*orgOverlap + weightLocation*locOverlap +
		weightEvent*eventOverlap + weightProduct*productOverlap + weightTemporal*temporal

	finalScore := weightVector*vectorScore + weightEntity*entityScore

	result := Result{
		VectorScore: vectorScore,
		EntityScore: entityScore,
		FinalScore:  finalScore,
		HasOverlap:  hasOverlap,
		IsMatch:     hasOverlap && finalScore >= MatchThreshold,
	}

	if !hasOverlap {
		// Zero overlap is a hard non-match regardless of vector score
		// (spec §4.6); it is never reported as a NearMiss.
		return result
	}
	if !result.IsMatch {
		result.NearMiss = true
		result.NearMissWhy = nearMissReason(vectorScore, entityScore, finalScore)
	}
	return result
}

func nearMissReason(vectorScore, entityScore, finalScore float64) string {
	switch {
	case vectorScore < 0.5:
		return "Low vector similarity"
	case entityScore < 0.3:
		return "Weak entity similarity"
	default:
		return "Combined score below threshold"
	}
}

// overlap computes the per-type importance-weighted overlap fraction
// between two sides (spec §4.6). Entities only pair off if they share an
// EntityID — the entity subsystem's resolution (alias/normalization
// matching, done once at extraction time) is what decides two mentions are
// "the same" entity; this function does one-to-one greedy assignment over
// that shared identity, taking source entities in order and giving each the
// highest-weight unused target, so a source entity that
// appears (degenerately) more than once doesn't double-claim a target.
func overlap(source, target []core.WeightedEntity) (float64, bool) {
	if len(source) == 0 || len(target) == 0 {
		return 0, false
	}

	used := make([]bool, len(target))
	var sum float64
	matched := 0
	for _, s := range source {
		bestIdx := -1
		bestWeight := -1.0
		for i, t := range target {
			if used[i] || t.EntityID != s.EntityID {
				continue
			}
			if t.Importance.Weight() > bestWeight {
				bestWeight = t.Importance.Weight()
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			continue
		}
		used[bestIdx] = true
		sum += (s.Importance.Weight() + bestWeight) / 2
		matched++
	}

	denominator := float64(len(source)+len(target)) / 2
	if denominator == 0 {
		return 0, false
	}
	return sum / denominator, matched > 0
}

// temporalProximity buckets the day delta between two dates into the
// fixed decay schedule (spec §4.6).
func temporalProximity(a, b *time.Time) float64 {
	if a == nil || b == nil {
		return 0.0
	}
	delta := a.Sub(*b)
	if delta < 0 {
		delta = -delta
	}
	days := int(delta.Hours() / 24)

	switch {
	case days == 0:
		return 1.0
	case days == 1:
		return 0.9
	case days <= 7:
		return 0.7
	case days <= 30:
		return 0.5
	case days <= 90:
		return 0.3
	case days <= 365:
		return 0.1
	default:
		return 0.0
	}
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// EffectiveDate returns event_date if set, else pub_date (spec §4.6:
// "event_date ?? pub_date").
func EffectiveDate(a *core.Article) *time.Time {
	if a.EventDate != nil {
		return a.EventDate
	}
	return a.PubDate
}
