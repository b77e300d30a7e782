// Package clustering assigns analysed articles to evolving "story"
// clusters, keeps each cluster's primary-entity set and summary current as
// membership changes, and folds together clusters whose primary entities
// have converged (spec §4.8).
package clustering

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jeremyandrews/argus/internal/core"
	"github.com/jeremyandrews/argus/internal/llm"
	"github.com/jeremyandrews/argus/internal/logger"
	"github.com/jeremyandrews/argus/internal/similarity"
	"github.com/jeremyandrews/argus/internal/vectorstore"
)

const (
	// candidateTopK is the number of nearest neighbors fetched from the
	// vector store per assignment attempt (spec §4.8 step 1).
	candidateTopK = 50
	// pubDateWindowDays bounds vector-store candidates to articles
	// published within this many days of the new article.
	pubDateWindowDays = 30
	// candidateScoreFloor is the minimum full similarity score (§4.6) a
	// candidate pair must clear to count toward a cluster's aggregate
	// score (spec §4.8 step 2).
	candidateScoreFloor = 0.60
	// assignmentThreshold is the minimum aggregate cluster score needed to
	// join an existing cluster rather than seed a new one (spec §4.8 step 4).
	assignmentThreshold = 0.60
	// maxPrimaryEntityIDs caps a cluster's recomputed primary-entity set
	// (spec §4.8 step 5).
	maxPrimaryEntityIDs = 10
	// MaxSummaryArticles bounds how many recent members feed a cluster
	// summary prompt (spec §4.8 "Generate-cluster-summary").
	MaxSummaryArticles = 10
	// defaultMergeThreshold is θ in "find merge candidates" (spec §4.8).
	defaultMergeThreshold = 0.6
)

// ArticleStore is the subset of *store.Store the clustering engine reads
// articles and their entity links through.
type ArticleStore interface {
	GetArticleByID(id int64) (*core.Article, error)
	PrimaryEntityIDs(articleID int64) ([]int64, error)
	EntityImportancesByType(articleID int64) (map[core.EntityType][]core.WeightedEntity, error)
}

// ClusterStore is the subset of *store.Store the clustering engine reads
// and writes cluster state through.
type ClusterStore interface {
	CreateCluster(c *core.Cluster) error
	UpdateCluster(c *core.Cluster) error
	GetCluster(id int64) (*core.Cluster, error)
	ActiveClustersForEntities(entityIDs []int64) ([]core.Cluster, error)
	AssignArticleToCluster(articleID, clusterID int64, similarity float64) error
	ArticlesInCluster(clusterID int64) ([]int64, error)
	MergeClusters(sourceID, destinationID int64, reason string) error
}

// Store is the combined dependency the engine needs from the relational
// store.
type Store interface {
	ArticleStore
	ClusterStore
}

// Engine is the clustering engine (spec §4.8): it consults the vector
// store for candidate neighbors, the relational store for cluster and
// entity state, and an LLM worker for cluster-summary generation.
type Engine struct {
	store  Store
	vector vectorstore.VectorStore
}

// New builds an Engine over the relational and vector stores.
func New(store Store, vector vectorstore.VectorStore) *Engine {
	return &Engine{store: store, vector: vector}
}

// AssignResult reports the outcome of AssignToCluster.
type AssignResult struct {
	ClusterID int64
	Created   bool
	Score     float64
}

// AssignToCluster assigns articleID — which must already have a valid
// vector in the vector store and at least one Primary entity — to an
// existing cluster, or seeds a new one (spec §4.8 steps 1-6).
func (e *Engine) AssignToCluster(ctx context.Context, articleID int64) (*AssignResult, error) {
	article, err := e.store.GetArticleByID(articleID)
	if err != nil {
		return nil, fmt.Errorf("load article: %w", err)
	}
	if article == nil {
		return nil, fmt.Errorf("article %d not found", articleID)
	}

	primaryIDs, err := e.store.PrimaryEntityIDs(articleID)
	if err != nil {
		return nil, fmt.Errorf("load primary entities: %w", err)
	}
	if len(primaryIDs) == 0 {
		return nil, fmt.Errorf("article %d has no primary entities, cannot cluster", articleID)
	}

	point, err := e.vector.Get(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("load article vector: %w", err)
	}
	if point == nil {
		return nil, fmt.Errorf("article %d has no stored vector, cannot cluster", articleID)
	}

	window := pubDateWindow(article)
	candidates, err := e.vector.Search(ctx, vectorstore.SearchQuery{
		Vector:        point.Vector,
		TopK:          candidateTopK,
		EntityIDs:     primaryIDs,
		PubDateWindow: window,
	})
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}

	sourceSide, err := e.entitySide(articleID)
	if err != nil {
		return nil, fmt.Errorf("load source entity side: %w", err)
	}
	sourceVec := toFloat64(point.Vector)

	clusterScores := make(map[int64][]float64)
	for _, cand := range candidates {
		if cand.ArticleID == articleID {
			continue
		}
		candArticle, err := e.store.GetArticleByID(cand.ArticleID)
		if err != nil {
			return nil, fmt.Errorf("load candidate article %d: %w", cand.ArticleID, err)
		}
		if candArticle == nil || candArticle.ClusterID == nil {
			continue
		}
		candCluster, err := e.store.GetCluster(*candArticle.ClusterID)
		if err != nil {
			return nil, fmt.Errorf("load candidate cluster: %w", err)
		}
		if candCluster == nil || candCluster.Status != core.ClusterActive {
			continue
		}

		candPoint, err := e.vector.Get(ctx, cand.ArticleID)
		if err != nil {
			return nil, fmt.Errorf("load candidate vector: %w", err)
		}
		if candPoint == nil {
			continue
		}

		targetSide, err := e.entitySide(cand.ArticleID)
		if err != nil {
			return nil, fmt.Errorf("load candidate entity side: %w", err)
		}
		result := similarity.Score(similarity.Candidate{
			SourceVector: sourceVec,
			TargetVector: toFloat64(candPoint.Vector),
			SourceDate:   similarity.EffectiveDate(article),
			TargetDate:   effectiveDateFromPayload(cand.Payload),
			SourceSide:   sourceSide,
			TargetSide:   targetSide,
		})
		if result.FinalScore < candidateScoreFloor {
			continue
		}
		clusterScores[candCluster.ID] = append(clusterScores[candCluster.ID], result.FinalScore)
	}

	bestCluster, bestScore := int64(0), -1.0
	for clusterID, scores := range clusterScores {
		mean := meanOf(scores)
		if mean > bestScore {
			bestCluster, bestScore = clusterID, mean
		}
	}

	var destination int64
	created := false
	if bestScore >= assignmentThreshold {
		destination = bestCluster
	} else {
		cluster := &core.Cluster{
			PrimaryEntityIDs: primaryIDs,
			Status:           core.ClusterActive,
		}
		if err := e.store.CreateCluster(cluster); err != nil {
			return nil, fmt.Errorf("create cluster: %w", err)
		}
		destination = cluster.ID
		created = true
		bestScore = 1.0
	}

	if err := e.store.AssignArticleToCluster(articleID, destination, bestScore); err != nil {
		return nil, fmt.Errorf("assign article to cluster: %w", err)
	}
	if err := e.refreshCluster(destination); err != nil {
		return nil, fmt.Errorf("refresh cluster: %w", err)
	}

	logger.Info("clustering assigned article", "article_id", articleID, "cluster_id", destination,
		"created", created, "score", bestScore)
	return &AssignResult{ClusterID: destination, Created: created, Score: bestScore}, nil
}

// refreshCluster recomputes a cluster's primary-entity set (majority-
// weighted, capped at maxPrimaryEntityIDs), article count, significance
// score and needs_summary_update flag after a membership change (spec
// §4.8 steps 5-6).
func (e *Engine) refreshCluster(clusterID int64) error {
	cluster, err := e.store.GetCluster(clusterID)
	if err != nil {
		return fmt.Errorf("load cluster: %w", err)
	}
	if cluster == nil {
		return fmt.Errorf("cluster %d not found", clusterID)
	}

	members, err := e.store.ArticlesInCluster(clusterID)
	if err != nil {
		return fmt.Errorf("load cluster members: %w", err)
	}

	previousCount := cluster.ArticleCount
	primaryCounts := make(map[int64]int)
	sources := make(map[string]bool)
	var latest time.Time
	for _, articleID := range members {
		ids, err := e.store.PrimaryEntityIDs(articleID)
		if err != nil {
			return fmt.Errorf("load member primary entities: %w", err)
		}
		for _, id := range ids {
			primaryCounts[id]++
		}
		if a, err := e.store.GetArticleByID(articleID); err == nil && a != nil {
			if u, err := url.Parse(a.NormalizedURL); err == nil && u.Hostname() != "" {
				sources[strings.ToLower(u.Hostname())] = true
			}
			if a.FirstSeen.After(latest) {
				latest = a.FirstSeen
			}
		}
	}

	majorityThreshold := int(math.Ceil(float64(len(members)) / 3.0))
	if majorityThreshold < 1 {
		majorityThreshold = 1
	}
	cluster.PrimaryEntityIDs = topPrimaryEntities(primaryCounts, majorityThreshold, maxPrimaryEntityIDs)
	cluster.ArticleCount = len(members)
	cluster.ImportanceScore = Significance(cluster.ArticleCount, len(sources), daysSince(latest))
	if cluster.ArticleCount > previousCount {
		cluster.NeedsSummaryUpdate = true
	}

	return e.store.UpdateCluster(cluster)
}

// topPrimaryEntities returns the entity IDs that are Primary in at least
// minCount member articles, ordered by count descending and capped at max.
func topPrimaryEntities(counts map[int64]int, minCount, max int) []int64 {
	type kv struct {
		id    int64
		count int
	}
	var kept []kv
	for id, count := range counts {
		if count >= minCount {
			kept = append(kept, kv{id, count})
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].count != kept[j].count {
			return kept[i].count > kept[j].count
		}
		return kept[i].id < kept[j].id
	})
	if len(kept) > max {
		kept = kept[:max]
	}
	out := make([]int64, len(kept))
	for i, k := range kept {
		out[i] = k.id
	}
	return out
}

// Significance computes a cluster's importance score (spec §4.8):
// log2(1+article_count) · log2(1+unique_sources) · decay(days_since_update).
func Significance(articleCount, uniqueSources int, daysSinceUpdate float64) float64 {
	decay := 1 - daysSinceUpdate/30
	if decay < 0.1 {
		decay = 0.1
	}
	return math.Log2(1+float64(articleCount)) * math.Log2(1+float64(uniqueSources)) * decay
}

func daysSince(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return time.Since(t).Hours() / 24
}

// SummaryGenerator asks an LLM worker to synthesize a cluster summary. It
// is a narrow seam over *llm.Worker so tests can fake LLM output.
type SummaryGenerator interface {
	GenerateText(ctx context.Context, prompt string, temperature float64, thinking *llm.ThinkingConfig, noThink bool) string
}

const clusterSummaryPrompt = `The following articles, most recent first, describe an evolving news story. Write a coherent, multi-paragraph narrative summary of the story so far, grounded only in what these articles report.

%s`

// GenerateClusterSummary fetches up to MaxSummaryArticles recent members
// ordered by recency, asks the LLM for a narrative summary, stores it with
// an incremented summary_version, and clears needs_summary_update (spec
// §4.8 "Generate-cluster-summary").
func (e *Engine) GenerateClusterSummary(ctx context.Context, clusterID int64, gen SummaryGenerator) error {
	cluster, err := e.store.GetCluster(clusterID)
	if err != nil {
		return fmt.Errorf("load cluster: %w", err)
	}
	if cluster == nil {
		return fmt.Errorf("cluster %d not found", clusterID)
	}

	memberIDs, err := e.store.ArticlesInCluster(clusterID)
	if err != nil {
		return fmt.Errorf("load cluster members: %w", err)
	}

	var members []*core.Article
	for _, id := range memberIDs {
		a, err := e.store.GetArticleByID(id)
		if err != nil {
			return fmt.Errorf("load member %d: %w", id, err)
		}
		if a != nil {
			members = append(members, a)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].FirstSeen.After(members[j].FirstSeen) })
	if len(members) > MaxSummaryArticles {
		members = members[:MaxSummaryArticles]
	}

	var prompt string
	for _, a := range members {
		prompt += fmt.Sprintf("- %s: %s\n", a.Analysis.TinyTitle, a.TinySummary)
	}

	summary := gen.GenerateText(ctx, fmt.Sprintf(clusterSummaryPrompt, prompt), 0.3, nil, false)
	if summary == "" {
		logger.Warn("cluster summary generation produced no text", "cluster_id", clusterID)
		return nil
	}

	cluster.Summary = summary
	cluster.SummaryVersion++
	cluster.NeedsSummaryUpdate = false
	return e.store.UpdateCluster(cluster)
}

// FindMergeCandidates groups, by union-find, those active clusters whose
// primary_entity_ids overlap at or above threshold (spec §4.8 "Find merge
// candidates"). Each returned group has at least two cluster IDs and is
// transitive: if A merges with B and B merges with C, all three are
// returned together even if A and C do not directly overlap enough.
func (e *Engine) FindMergeCandidates(ctx context.Context, clusters []core.Cluster, threshold float64) [][]int64 {
	if threshold <= 0 {
		threshold = defaultMergeThreshold
	}
	uf := newUnionFind()
	for _, c := range clusters {
		uf.add(c.ID)
	}

	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			a, b := clusters[i], clusters[j]
			if overlapRatio(a.PrimaryEntityIDs, b.PrimaryEntityIDs) >= threshold {
				uf.union(a.ID, b.ID)
			}
		}
	}

	groups := uf.groups()
	var out [][]int64
	for _, g := range groups {
		if len(g) >= 2 {
			sort.Slice(g, func(i, j int) bool { return g[i] < g[j] })
			out = append(out, g)
		}
	}
	return out
}

// overlapRatio computes |A∩B| / min(|A|,|B|).
func overlapRatio(a, b []int64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[int64]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	var shared int
	for _, id := range b {
		if set[id] {
			shared++
		}
	}
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	return float64(shared) / float64(minLen)
}

// Merge folds every cluster in ids except the survivor into the survivor,
// transactionally (via store.MergeClusters), appending merge-history rows.
// The survivor is the cluster with the highest article_count among ids
// (spec §4.8 "Merge": "retain the one with highest article_count"). Merge
// is idempotent: a source already marked merged is skipped, so re-running
// Merge on the same group is a no-op beyond the survivor refresh.
func (e *Engine) Merge(ctx context.Context, ids []int64, reason string) (survivor int64, err error) {
	if len(ids) < 2 {
		return 0, fmt.Errorf("merge requires at least two clusters, got %d", len(ids))
	}

	var clusters []*core.Cluster
	for _, id := range ids {
		c, err := e.store.GetCluster(id)
		if err != nil {
			return 0, fmt.Errorf("load cluster %d: %w", id, err)
		}
		if c == nil {
			return 0, fmt.Errorf("cluster %d not found", id)
		}
		clusters = append(clusters, c)
	}

	survivorCluster := clusters[0]
	for _, c := range clusters[1:] {
		if c.ArticleCount > survivorCluster.ArticleCount {
			survivorCluster = c
		}
	}

	for _, c := range clusters {
		if c.ID == survivorCluster.ID || c.Status == core.ClusterMerged {
			continue
		}
		if err := e.store.MergeClusters(c.ID, survivorCluster.ID, reason); err != nil {
			return 0, fmt.Errorf("merge cluster %d into %d: %w", c.ID, survivorCluster.ID, err)
		}
		logger.Info("clustering merged cluster", "source", c.ID, "destination", survivorCluster.ID, "reason", reason)
	}

	if err := e.refreshCluster(survivorCluster.ID); err != nil {
		return 0, fmt.Errorf("refresh survivor cluster: %w", err)
	}
	return survivorCluster.ID, nil
}

func (e *Engine) entitySide(articleID int64) (similarity.EntitySide, error) {
	byType, err := e.store.EntityImportancesByType(articleID)
	if err != nil {
		return similarity.EntitySide{}, err
	}
	return similarity.EntitySide{
		Person:       byType[core.EntityPerson],
		Organization: byType[core.EntityOrganization],
		Location:     byType[core.EntityLocation],
		Event:        byType[core.EntityEvent],
		Product:      byType[core.EntityProduct],
	}, nil
}

func pubDateWindow(a *core.Article) *vectorstore.PubDateWindow {
	date := similarity.EffectiveDate(a)
	if date == nil {
		return nil
	}
	from := date.AddDate(0, 0, -pubDateWindowDays).Format("2006-01-02")
	to := date.AddDate(0, 0, pubDateWindowDays).Format("2006-01-02")
	return &vectorstore.PubDateWindow{From: from, To: to}
}

func effectiveDateFromPayload(p core.VectorPayload) *time.Time {
	raw := p.EventDate
	if raw == nil {
		raw = p.PubDate
	}
	if raw == nil || *raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", *raw)
	if err != nil {
		return nil
	}
	return &t
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func meanOf(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}
