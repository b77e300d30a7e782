// Package embedder produces the fixed-dimension dense vectors the
// similarity engine and vector store operate on. The encoder and its
// tokenizer are created once at startup and never mutated afterward
// (spec §5 "lazily-initialised embedding model + tokenizer").
package embedder

import (
	"context"
	"fmt"
	"math"
	"sync"

	fastembed "github.com/anush008/fastembed-go"

	"github.com/jeremyandrews/argus/internal/core"
	"github.com/jeremyandrews/argus/internal/logger"
)

const (
	passagePrefix = "passage: "
	queryPrefix   = "query: "

	minValidMagnitude = 1e-3
)

// Embedder wraps a frozen text-embedding model. CPU-bound inference runs on
// a bounded worker pool rather than inline, so a burst of embedding calls
// cannot starve the orchestrator's other suspension points (spec §5).
type Embedder struct {
	model *fastembed.FlagEmbedding
	sem   chan struct{}

	initOnce sync.Once
	initErr  error
}

// New creates an Embedder backed by a BAAI/bge-large-en-v1.5 model, the
// fastembed-go default that produces 1024-dim output matching
// core.VectorDimensions. maxConcurrent bounds the blocking executor.
func New(maxConcurrent int) (*Embedder, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	model, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model: fastembed.BGELargeENV15,
	})
	if err != nil {
		return nil, fmt.Errorf("load embedding model: %w", err)
	}
	return &Embedder{model: model, sem: make(chan struct{}, maxConcurrent)}, nil
}

// EmbedPassage embeds article text for storage.
func (e *Embedder) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, passagePrefix+text)
}

// EmbedQuery embeds query text for a similarity search.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, queryPrefix+text)
}

func (e *Embedder) embed(ctx context.Context, prefixed string) ([]float32, error) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.sem }()

	vectors, err := e.model.Embed([]string{prefixed}, 1)
	if err != nil {
		logger.Warn("embedding inference failed", "error", err)
		return nil, nil
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	vec := l2Normalize(vectors[0])
	if !Valid(vec) {
		logger.Warn("embedding failed validity check", "dimensions", len(vec))
		return nil, nil
	}
	return vec, nil
}

// Valid reports whether vec meets the spec's validity contract: exactly
// core.VectorDimensions floats, magnitude >= 1e-3, and no NaN.
func Valid(vec []float32) bool {
	if len(vec) != core.VectorDimensions {
		return false
	}
	var sumSquares float64
	for _, x := range vec {
		if math.IsNaN(float64(x)) {
			return false
		}
		sumSquares += float64(x) * float64(x)
	}
	return math.Sqrt(sumSquares) >= minValidMagnitude
}

func l2Normalize(vec []float32) []float32 {
	var sumSquares float64
	for _, x := range vec {
		sumSquares += float64(x) * float64(x)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, x := range vec {
		out[i] = float32(float64(x) / magnitude)
	}
	return out
}
