// Package core defines the data model shared across the analysis and
// clustering pipeline: articles, entities, clusters and the FIFO queues
// that connect them.
package core

import "time"

// EntityType enumerates the kinds of named entities the extractor produces.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityEvent        EntityType = "event"
	EntityProduct      EntityType = "product"
	EntityDate         EntityType = "date"
	EntityOther        EntityType = "other"
)

// Importance reflects how central an entity is to the article it was
// extracted from.
type Importance string

const (
	ImportancePrimary   Importance = "primary"
	ImportanceSecondary Importance = "secondary"
	ImportanceMentioned Importance = "mentioned"
)

// Weight returns the per-importance weight used by the similarity engine.
func (i Importance) Weight() float64 {
	switch i {
	case ImportancePrimary:
		return 1.0
	case ImportanceSecondary:
		return 0.6
	case ImportanceMentioned:
		return 0.3
	default:
		return 0.0
	}
}

// WeightedEntity is one entity linked to an article, carrying just enough
// to score per-type overlap against another article's entities: its
// identity (so two articles only overlap on entities resolved to the same
// row) and its importance weight.
type WeightedEntity struct {
	EntityID   int64
	Importance Importance
}

// ClusterStatus is the lifecycle state of a Cluster.
type ClusterStatus string

const (
	ClusterActive ClusterStatus = "active"
	ClusterMerged ClusterStatus = "merged"
)

// AliasSource records where an Alias candidate came from.
type AliasSource string

const (
	AliasSourceStatic  AliasSource = "static"
	AliasSourcePattern AliasSource = "pattern"
	AliasSourceLLM     AliasSource = "llm"
	AliasSourceAdmin   AliasSource = "admin"
)

// AliasStatus is the review state of an Alias.
type AliasStatus string

const (
	AliasPending  AliasStatus = "pending"
	AliasApproved AliasStatus = "approved"
	AliasRejected AliasStatus = "rejected"
)

// ApprovedAliasConfidence is the minimum confidence an approved alias needs
// to participate in name matching (spec §4.5).
const ApprovedAliasConfidence = 0.7

// Article is a single piece of syndicated content that has cleared (or
// failed) the analysis pipeline. Identity is the integer ID; uniqueness is
// enforced by NormalizedURL.
type Article struct {
	ID              int64      `json:"id"`
	URL             string     `json:"url"`
	NormalizedURL   string     `json:"normalized_url"`
	FirstSeen       time.Time  `json:"first_seen"`
	PubDate         *time.Time `json:"pub_date,omitempty"`
	EventDate       *time.Time `json:"event_date,omitempty"`
	Relevant        bool       `json:"relevant"`
	Category        string     `json:"category"`
	TinySummary     string     `json:"tiny_summary"`
	Analysis        Analysis   `json:"analysis"`
	ContentHash     string     `json:"content_hash"`
	TitleDomainHash string     `json:"title_domain_hash"`
	BlobURL         string     `json:"blob_url,omitempty"`
	ClusterID       *int64     `json:"cluster_id,omitempty"`
	Quality         int8       `json:"quality"`
}

// Analysis is the aggregated LLM output for one article (spec §4.7 step 4,
// §6 "Article analysis JSON"). Any field may be empty if its LLM call
// failed or timed out; a partially-empty Analysis is not an error.
type Analysis struct {
	ArticleBody           string   `json:"article_body"`
	PubDate               string   `json:"pub_date"`
	Quality               int      `json:"quality"`
	Summary               string   `json:"summary"`
	TinySummary           string   `json:"tiny_summary"`
	TinyTitle             string   `json:"tiny_title"`
	CriticalAnalysis      string   `json:"critical_analysis"`
	LogicalFallacies      string   `json:"logical_fallacies"`
	SourceAnalysis        string   `json:"source_analysis"`
	SourceType            string   `json:"source_type"`
	ArgumentQualityScore  float64  `json:"argument_quality_score"`
	SourceQualityScore    float64  `json:"source_quality_score"`
	ActionRecommendations string   `json:"action_recommendations"`
	TalkingPoints         string   `json:"talking_points"`
	ELI5                  string   `json:"eli5"`
	Topics                []string `json:"topics,omitempty"`
}

// Entity is a normalized named entity. Uniqueness is (NormalizedName, Type).
type Entity struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	Type           EntityType `json:"type"`
	ParentID       *int64     `json:"parent_id,omitempty"`
}

// ArticleEntity is the edge between an Article and an Entity.
type ArticleEntity struct {
	ArticleID  int64      `json:"article_id"`
	EntityID   int64      `json:"entity_id"`
	Importance Importance `json:"importance"`
	Context    string     `json:"context,omitempty"`
}

// ExtractedEntity is one entity as returned by the entity extractor, before
// it has been resolved against the Entity table.
type ExtractedEntity struct {
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name,omitempty"`
	Type           EntityType `json:"type"`
	Importance     Importance `json:"importance"`
	Context        string     `json:"context,omitempty"`
}

// ExtractedEntities is the round-trippable result of one extraction call.
type ExtractedEntities struct {
	EventDate string             `json:"event_date,omitempty"`
	Entities  []ExtractedEntity  `json:"entities"`
}

// Alias links an alternate name to a canonical one for entity matching.
type Alias struct {
	ID              int64       `json:"id"`
	EntityID        *int64      `json:"entity_id,omitempty"`
	CanonicalName   string      `json:"canonical_name"`
	AliasText       string      `json:"alias_text"`
	NormalizedCanon string      `json:"normalized_canonical"`
	NormalizedAlias string      `json:"normalized_alias"`
	Type            EntityType  `json:"type"`
	Source          AliasSource `json:"source"`
	Confidence      float64     `json:"confidence"`
	CreatedAt       time.Time   `json:"created_at"`
	ApproverID      string      `json:"approver_id,omitempty"`
	ApprovedAt      *time.Time  `json:"approved_at,omitempty"`
	Status          AliasStatus `json:"status"`
}

// AliasReviewBatch is a materialized batch of pending aliases handed to an
// (out-of-core) review workflow, mirroring manage_aliases.rs's
// create_alias_review_batch/get_alias_review_batch pair.
type AliasReviewBatch struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Aliases   []Alias   `json:"aliases"`
}

// NegativeMatch records a pair of normalized names that must never be
// treated as matching, irrespective of any alias or variation table.
type NegativeMatch struct {
	ID          int64      `json:"id"`
	NormalizedA string     `json:"normalized_a"`
	NormalizedB string     `json:"normalized_b"`
	Type        EntityType `json:"type"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Cluster is a dynamic grouping of articles describing the same evolving
// story.
type Cluster struct {
	ID                 int64         `json:"id"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	PrimaryEntityIDs   []int64       `json:"primary_entity_ids"`
	Summary            string        `json:"summary"`
	SummaryVersion     int           `json:"summary_version"`
	ArticleCount       int           `json:"article_count"`
	ImportanceScore    float64       `json:"importance_score"`
	HasTimeline        bool          `json:"has_timeline"`
	NeedsSummaryUpdate bool          `json:"needs_summary_update"`
	Status             ClusterStatus `json:"status"`
}

// ArticleClusterMapping is the authoritative membership record; Article.ClusterID
// is a denormalized cache of the single active mapping for that article.
type ArticleClusterMapping struct {
	ArticleID  int64     `json:"article_id"`
	ClusterID  int64     `json:"cluster_id"`
	Similarity float64   `json:"similarity"`
	AssignedAt time.Time `json:"assigned_at"`
	Active     bool      `json:"active"`
}

// ClusterMergeHistory is an append-only record of a cluster having been
// folded into a survivor. (original_cluster_id) is unique.
type ClusterMergeHistory struct {
	ID                int64     `json:"id"`
	OriginalClusterID int64     `json:"original_cluster_id"`
	MergedIntoID      int64     `json:"merged_into_id"`
	MergedAt          time.Time `json:"merged_at"`
	Reason            string    `json:"reason,omitempty"`
}

// Device is a push-notification target, identified by an opaque token.
// Devices and Subscriptions are read-only from the core; they are
// maintained by the (out-of-scope) mobile API surface.
type Device struct {
	ID    int64  `json:"id"`
	Token string `json:"token"`
}

// Subscription ties a Device to a topic at a priority.
type Subscription struct {
	ID       int64  `json:"id"`
	DeviceID int64  `json:"device_id"`
	Topic    string `json:"topic"`
	Priority int    `json:"priority"`
}

// QueueName identifies one of the three FIFO queues the core reads from or
// writes to.
type QueueName string

const (
	QueueRSS           QueueName = "rss_queue"
	QueueMatchedTopics QueueName = "matched_topics_queue"
	QueueLifeSafety    QueueName = "life_safety_queue"
)

// RSSQueueItem is a URL pending analysis.
type RSSQueueItem struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	Source     string    `json:"source,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NotificationQueueItem is an analysed article pending fan-out, used for
// both matched_topics_queue and life_safety_queue.
type NotificationQueueItem struct {
	ID         int64     `json:"id"`
	ArticleID  int64     `json:"article_id"`
	Topics     []string  `json:"topics"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// VectorPayload is the bit-stable payload stored alongside each article's
// vector (spec §6).
type VectorPayload struct {
	PubDate   *string `json:"pub_date"`
	Category  *string `json:"category"`
	Quality   int8    `json:"quality"`
	EntityIDs []int64 `json:"entity_ids"`
	EventDate *string `json:"event_date"`
}

// VectorDimensions is the fixed dense-vector width the embedder and vector
// store agree on.
const VectorDimensions = 1024
