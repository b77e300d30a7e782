package similarity

import (
	"testing"
	"time"

	"github.com/jeremyandrews/argus/internal/core"
)

func TestZeroOverlapIsHardNonMatch(t *testing.T) {
	result := Score(Candidate{
		SourceVector: []float64{1, 0, 0},
		TargetVector: []float64{1, 0, 0},
	})
	if result.IsMatch {
		t.Fatal("expected zero entity overlap to never match, even with identical vectors")
	}
	if result.NearMiss {
		t.Fatal("expected zero overlap to be excluded from NearMiss reporting")
	}
}

func TestThresholdNearMissExample(t *testing.T) {
	// Vector cosine 0.78; one shared Mentioned location (overlap 0.3) and no
	// dates give entity_score 0.10*0.3 = 0.03 -> final 0.6*0.78 + 0.4*0.03
	// = 0.48 < 0.75 -> NearMiss "Weak entity similarity".
	result := Score(Candidate{
		SourceVector: []float64{0.78, 0.6258},
		TargetVector: []float64{1, 0},
		SourceSide:   EntitySide{Location: []core.WeightedEntity{{EntityID: 1, Importance: core.ImportanceMentioned}}},
		TargetSide:   EntitySide{Location: []core.WeightedEntity{{EntityID: 1, Importance: core.ImportanceMentioned}}},
	})
	if result.IsMatch {
		t.Fatal("expected score below threshold to not match")
	}
	if !result.NearMiss {
		t.Fatal("expected a NearMiss to be reported")
	}
}

func TestTemporalProximityBuckets(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		delta time.Duration
		want  float64
	}{
		{0, 1.0},
		{24 * time.Hour, 0.9},
		{5 * 24 * time.Hour, 0.7},
		{20 * 24 * time.Hour, 0.5},
		{60 * 24 * time.Hour, 0.3},
		{200 * 24 * time.Hour, 0.1},
		{400 * 24 * time.Hour, 0.0},
	}
	for _, c := range cases {
		other := base.Add(c.delta)
		if got := temporalProximity(&base, &other); got != c.want {
			t.Errorf("delta %v: got %v, want %v", c.delta, got, c.want)
		}
	}
}

func TestOverlapGreedyAssignment(t *testing.T) {
	source := []core.WeightedEntity{
		{EntityID: 1, Importance: core.ImportancePrimary},
		{EntityID: 2, Importance: core.ImportanceSecondary},
	}
	target := []core.WeightedEntity{
		{EntityID: 1, Importance: core.ImportancePrimary},
		{EntityID: 2, Importance: core.ImportanceMentioned},
	}

	got, matched := overlap(source, target)
	if !matched {
		t.Fatal("expected a match")
	}
	// entity 1: source primary (1.0) vs target primary (1.0): (1.0+1.0)/2 = 1.0
	// entity 2: source secondary (0.6) vs target mentioned (0.3): (0.6+0.3)/2 = 0.45
	// sum = 1.45, denominator = (2+2)/2 = 2 -> 0.725
	want := 1.45 / 2.0
	if got < want-0.001 || got > want+0.001 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOverlapOnlyMatchesSharedEntityIDs(t *testing.T) {
	source := []core.WeightedEntity{{EntityID: 1, Importance: core.ImportancePrimary}}
	target := []core.WeightedEntity{{EntityID: 2, Importance: core.ImportancePrimary}}

	got, matched := overlap(source, target)
	if matched || got != 0 {
		t.Errorf("expected distinct entity ids to never overlap, got %v matched=%v", got, matched)
	}
}

func TestOverlapEmptySideYieldsZero(t *testing.T) {
	got, matched := overlap(nil, []core.WeightedEntity{{EntityID: 1, Importance: core.ImportancePrimary}})
	if got != 0 || matched {
		t.Errorf("expected empty side to yield zero, got %v matched=%v", got, matched)
	}
}

func TestCosineClampedToUnitRange(t *testing.T) {
	got := clamp01(1.0000001)
	if got != 1.0 {
		t.Errorf("expected clamp to 1.0, got %v", got)
	}
}
