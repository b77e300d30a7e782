package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jeremyandrews/argus/internal/core"
	"github.com/jeremyandrews/argus/internal/entity"
	"github.com/jeremyandrews/argus/internal/llm"
	"github.com/jeremyandrews/argus/internal/logger"
	"github.com/jeremyandrews/argus/internal/store"
)

// decide runs steps 1-3 of the pipeline (spec §4.7) for one dequeued RSS
// item: duplicate gate, relevance gate, threat gate. On success it persists
// the article's initial row and hands off to the analysis phase.
func (o *Orchestrator) decide(ctx context.Context, w *llm.Worker, item core.RSSQueueItem) {
	traceID := newTraceID()
	normalizedURL := normalizeURLForDedup(item.URL)

	if existing, err := o.deps.Store.GetArticleByNormalizedURL(normalizedURL); err != nil {
		logger.Error("duplicate gate lookup failed", "trace_id", traceID, "url", item.URL, "error", err)
		return
	} else if existing != nil {
		logger.Info("duplicate gate dropped article", "trace_id", traceID, "url", item.URL)
		return
	}

	title, body, err := o.deps.Fetcher.Fetch(ctx, item.URL)
	if err != nil {
		logger.Warn("content fetch failed", "trace_id", traceID, "url", item.URL, "error", err)
		return
	}

	contentHash := sha256Hex(body)
	if existing, err := o.deps.Store.FindByContentHash(contentHash); err != nil {
		logger.Error("content hash lookup failed", "trace_id", traceID, "error", err)
		return
	} else if existing != nil {
		logger.Info("duplicate gate dropped near-duplicate article", "trace_id", traceID, "url", item.URL)
		return
	}
	titleDomainHash := sha256Hex(title + "|" + domainOf(item.URL))

	topics, err := o.deps.Store.DistinctTopics()
	if err != nil {
		logger.Warn("loading subscription topics failed", "trace_id", traceID, "error", err)
	}
	candidateTopics, err := o.deps.TopicGate.Candidates(ctx, title, body, topics)
	if err != nil {
		logger.Warn("topic pre-filter failed", "trace_id", traceID, "error", err)
	}

	relevant := false
	if len(candidateTopics) > 0 {
		relevant = o.askYesNo(ctx, w, relevancePrompt(title, body, candidateTopics))
	}
	threat := o.askYesNo(ctx, w, threatPrompt(title, body))

	article := &core.Article{
		URL:             item.URL,
		NormalizedURL:   normalizedURL,
		Relevant:        relevant,
		ContentHash:     contentHash,
		TitleDomainHash: titleDomainHash,
	}
	if err := o.deps.Store.UpsertArticle(article); err != nil {
		logger.Error("persist article failed", "trace_id", traceID, "url", item.URL, "error", err)
		return
	}

	if threat {
		if err := o.deps.Notifier.Notify(ctx, core.QueueLifeSafety, core.NotificationQueueItem{
			ArticleID: article.ID,
			Topics:    append([]string{}, candidateTopics...),
		}); err != nil {
			logger.Error("life safety notification enqueue failed", "trace_id", traceID, "article_id", article.ID, "error", err)
		}
	}

	logger.Info("decision gate complete", "trace_id", traceID, "article_id", article.ID,
		"relevant", relevant, "threat", threat, "topics", candidateTopics)

	select {
	case o.analysisQueue <- pendingAnalysis{articleID: article.ID, title: title, body: body, topics: candidateTopics, traceID: traceID}:
	case <-ctx.Done():
	}
}

// askYesNo runs a bounded-deadline yes/no call, collapsing Unknown to false.
func (o *Orchestrator) askYesNo(ctx context.Context, w *llm.Worker, prompt string) bool {
	callCtx, cancel := context.WithTimeout(ctx, o.deps.RequestTimeout)
	defer cancel()
	return w.GenerateYesNo(callCtx, prompt, 0.0) == llm.Yes
}

// analyze runs steps 4-8 of the pipeline (spec §4.7) for one article that
// cleared the decision phase: content analysis, entity extraction,
// embedding, clustering, and notification handoff.
func (o *Orchestrator) analyze(ctx context.Context, w *llm.Worker, work pendingAnalysis) {
	analysis := o.runContentAnalyses(ctx, w, work.title, work.body)

	article, err := o.deps.Store.GetArticleByID(work.articleID)
	if err != nil || article == nil {
		logger.Error("reload article before analysis failed", "trace_id", work.traceID, "article_id", work.articleID, "error", err)
		return
	}
	article.Analysis = analysis
	article.TinySummary = analysis.TinySummary
	article.Quality = int8(clampQuality(analysis.Quality))
	article.Category = analysis.SourceType

	hasPrimaryEntity := o.extractEntities(ctx, w, article, work.body)

	if vec := o.embed(ctx, article, work.body); vec != nil && hasPrimaryEntity {
		if result, err := o.deps.Clustering.AssignToCluster(ctx, article.ID); err != nil {
			logger.Error("clustering assignment failed", "trace_id", work.traceID, "article_id", article.ID, "error", err)
		} else {
			article.ClusterID = &result.ClusterID
			o.maybeRefreshSummary(ctx, w, result.ClusterID, work.traceID)
		}
	}

	if err := o.deps.Store.UpsertArticle(article); err != nil {
		logger.Error("persist analysed article failed", "trace_id", work.traceID, "article_id", article.ID, "error", err)
		return
	}

	if article.Relevant && len(work.topics) > 0 {
		if err := o.deps.Notifier.Notify(ctx, core.QueueMatchedTopics, core.NotificationQueueItem{
			ArticleID: article.ID,
			Topics:    work.topics,
		}); err != nil {
			logger.Error("matched topics notification enqueue failed", "trace_id", work.traceID, "article_id", article.ID, "error", err)
		}
	}

	logger.Info("analysis complete", "trace_id", work.traceID, "article_id", article.ID, "cluster_id", article.ClusterID)
}

func (o *Orchestrator) maybeRefreshSummary(ctx context.Context, w *llm.Worker, clusterID int64, traceID string) {
	cluster, err := o.deps.Store.GetCluster(clusterID)
	if err != nil || cluster == nil || !cluster.NeedsSummaryUpdate {
		return
	}
	if err := o.deps.Clustering.GenerateClusterSummary(ctx, clusterID, w); err != nil {
		logger.Error("cluster summary generation failed", "trace_id", traceID, "cluster_id", clusterID, "error", err)
	}
}

// extractEntities runs step 5: extraction, resolution, edge replacement and
// alias mining. It returns whether the article ended up with >=1 Primary
// entity, the precondition for clustering (spec §4.8, §8 invariant).
func (o *Orchestrator) extractEntities(ctx context.Context, w *llm.Worker, article *core.Article, body string) bool {
	callCtx, cancel := context.WithTimeout(ctx, o.deps.RequestTimeout)
	defer cancel()

	extracted, err := entity.Extract(callCtx, w, body)
	if err != nil {
		logger.Warn("entity extraction failed, skipping entities for article", "article_id", article.ID, "error", err)
		return false
	}
	if extracted.EventDate != "" {
		if t, err := time.Parse("2006-01-02", extracted.EventDate); err == nil {
			article.EventDate = &t
		}
	}

	var edges []core.ArticleEntity
	seenTypes := make(map[core.EntityType]bool)
	hasPrimary := false
	for _, ee := range extracted.Entities {
		canonical, err := o.deps.Matcher.Resolve(ee)
		if err != nil {
			logger.Warn("entity resolution failed", "article_id", article.ID, "name", ee.Name, "error", err)
			continue
		}
		edges = append(edges, core.ArticleEntity{
			ArticleID:  article.ID,
			EntityID:   canonical.ID,
			Importance: ee.Importance,
			Context:    ee.Context,
		})
		if ee.Importance == core.ImportancePrimary {
			hasPrimary = true
		}
		seenTypes[ee.Type] = true
	}

	if err := o.deps.Store.ReplaceArticleEntities(article.ID, edges); err != nil {
		logger.Error("replace article entities failed", "article_id", article.ID, "error", err)
		return false
	}

	for t := range seenTypes {
		for _, alias := range entity.MineAliases(body, t) {
			if err := o.deps.Store.InsertAlias(&alias); err != nil {
				logger.Warn("insert mined alias failed", "article_id", article.ID, "error", err)
			}
		}
	}

	return hasPrimary
}

// embed runs step 6: passage embedding and vector-store upsert. Returns the
// stored vector, or nil if embedding failed or was invalid.
func (o *Orchestrator) embed(ctx context.Context, article *core.Article, body string) []float32 {
	callCtx, cancel := context.WithTimeout(ctx, o.deps.EmbedTimeout)
	defer cancel()

	vec, err := o.deps.Embedder.EmbedPassage(callCtx, body)
	if err != nil || vec == nil {
		if err != nil {
			logger.Warn("embedding failed", "article_id", article.ID, "error", err)
		}
		return nil
	}

	primaryIDs, err := o.deps.Store.PrimaryEntityIDs(article.ID)
	if err != nil {
		logger.Warn("load primary entities for payload failed", "article_id", article.ID, "error", err)
	}

	payload := core.VectorPayload{Quality: article.Quality, EntityIDs: primaryIDs}
	if article.PubDate != nil {
		s := article.PubDate.Format("2006-01-02")
		payload.PubDate = &s
	}
	if article.EventDate != nil {
		s := article.EventDate.Format("2006-01-02")
		payload.EventDate = &s
	}
	if article.Category != "" {
		payload.Category = &article.Category
	}

	if err := o.deps.Vector.Upsert(ctx, article.ID, vec, payload); err != nil {
		logger.Error("vector upsert failed", "article_id", article.ID, "error", err)
		return nil
	}
	return vec
}

func clampQuality(q int) int {
	if q < 0 {
		return 0
	}
	if q > 100 {
		return 100
	}
	return q
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// normalizeURLForDedup is the one call site for the duplicate-gate URL key,
// so the derivation has a single definition to audit.
func normalizeURLForDedup(raw string) string {
	return store.NormalizeURL(raw)
}

func relevancePrompt(title, body string, topics []string) string {
	return fmt.Sprintf("Title: %s\n\nArticle:\n%s\n\nIs this article about any of the following topics: %s? Answer yes or no.",
		title, truncate(body, 4000), strings.Join(topics, ", "))
}

func threatPrompt(title, body string) string {
	return fmt.Sprintf("Title: %s\n\nArticle:\n%s\n\nIs this article reporting an ongoing, active threat to human life or safety (e.g. an unfolding disaster, attack, or public-health emergency)? Answer yes or no.",
		title, truncate(body, 4000))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func parseScore(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
