package embedder

import (
	"math"
	"testing"

	"github.com/jeremyandrews/argus/internal/core"
)

func unitVector() []float32 {
	vec := make([]float32, core.VectorDimensions)
	vec[0] = 1.0
	return vec
}

func TestValidRejectsWrongDimensions(t *testing.T) {
	if Valid(make([]float32, 512)) {
		t.Fatal("expected wrong dimension count to be invalid")
	}
}

func TestValidRejectsNaN(t *testing.T) {
	vec := unitVector()
	vec[1] = float32(math.NaN())
	if Valid(vec) {
		t.Fatal("expected NaN vector to be invalid")
	}
}

func TestValidRejectsTinyMagnitude(t *testing.T) {
	vec := make([]float32, core.VectorDimensions)
	if Valid(vec) {
		t.Fatal("expected zero vector to be invalid")
	}
}

func TestValidAcceptsUnitVector(t *testing.T) {
	if !Valid(unitVector()) {
		t.Fatal("expected unit vector to be valid")
	}
}

func TestL2NormalizeProducesUnitMagnitude(t *testing.T) {
	vec := make([]float32, core.VectorDimensions)
	for i := range vec {
		vec[i] = 2.0
	}
	normalized := l2Normalize(vec)

	var sumSquares float64
	for _, x := range normalized {
		sumSquares += float64(x) * float64(x)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude < 0.999 || magnitude > 1.001 {
		t.Fatalf("expected magnitude ~1.0, got %v", magnitude)
	}
}
