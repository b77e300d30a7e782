// Package vectorstore is the dense-vector index backing the similarity
// engine and clustering assignment: one point per article, keyed by
// article ID, carrying the bit-stable payload the spec requires for
// entity/date filtering at query time.
package vectorstore

import (
	"context"

	"github.com/jeremyandrews/argus/internal/core"
)

// VectorStore stores and searches the per-article dense vectors used for
// cluster assignment (spec §4.6, §4.8).
type VectorStore interface {
	// Upsert stores or replaces the vector and payload for articleID.
	Upsert(ctx context.Context, articleID int64, vector []float32, payload core.VectorPayload) error

	// Get returns the stored point for articleID, or nil if absent.
	Get(ctx context.Context, articleID int64) (*Point, error)

	// Search returns the TopK nearest points to query.Vector, filtered by
	// query.EntityIDs (match-any) and query.PubDateWindow when set.
	Search(ctx context.Context, query SearchQuery) ([]SearchResult, error)

	// Delete removes the point for articleID, if present.
	Delete(ctx context.Context, articleID int64) error

	// EnsureCollection creates the backing collection if it does not
	// already exist, sized for core.VectorDimensions.
	EnsureCollection(ctx context.Context) error
}

// Point is one stored vector and its payload.
type Point struct {
	ArticleID int64
	Vector    []float32
	Payload   core.VectorPayload
}

// PubDateWindow bounds a search to articles published within [From, To].
type PubDateWindow struct {
	From string
	To   string
}

// SearchQuery configures a nearest-neighbor query (spec §4.8: top-K=50,
// filtered by shared primary entity and a ±30-day pub_date window).
type SearchQuery struct {
	Vector        []float32
	TopK          int
	EntityIDs     []int64
	PubDateWindow *PubDateWindow
}

// SearchResult is one candidate returned by Search, ranked by cosine score.
type SearchResult struct {
	ArticleID int64
	Score     float64
	Payload   core.VectorPayload
}
