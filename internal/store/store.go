// Package store is the relational store: a single SQLite database holding
// articles, entities, clusters and the three FIFO queues that connect the
// pipeline stages. It follows the same database/sql + mattn/go-sqlite3
// pattern as the rest of this codebase's ancestry: plain SQL strings,
// INSERT ... ON CONFLICT DO UPDATE for upserts, sql.Null* for optional
// columns.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jeremyandrews/argus/internal/core"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite connection the pipeline reads and writes through.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path and ensures its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver: single writer, avoid SQLITE_BUSY

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL,
			normalized_url TEXT NOT NULL UNIQUE,
			first_seen DATETIME NOT NULL,
			pub_date DATETIME,
			event_date DATETIME,
			relevant BOOLEAN NOT NULL DEFAULT 0,
			category TEXT,
			tiny_summary TEXT,
			analysis_json TEXT,
			content_hash TEXT,
			title_domain_hash TEXT,
			blob_url TEXT,
			cluster_id INTEGER,
			quality INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_articles_content_hash ON articles(content_hash);`,
		`CREATE INDEX IF NOT EXISTS idx_articles_title_domain_hash ON articles(title_domain_hash);`,
		`CREATE INDEX IF NOT EXISTS idx_articles_cluster_id ON articles(cluster_id);`,

		`CREATE TABLE IF NOT EXISTS entities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			normalized_name TEXT NOT NULL,
			type TEXT NOT NULL,
			parent_id INTEGER,
			UNIQUE(normalized_name, type)
		);`,

		`CREATE TABLE IF NOT EXISTS article_entities (
			article_id INTEGER NOT NULL,
			entity_id INTEGER NOT NULL,
			importance TEXT NOT NULL,
			context TEXT,
			PRIMARY KEY (article_id, entity_id),
			FOREIGN KEY (article_id) REFERENCES articles(id),
			FOREIGN KEY (entity_id) REFERENCES entities(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_article_entities_entity ON article_entities(entity_id);`,

		`CREATE TABLE IF NOT EXISTS aliases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_id INTEGER,
			canonical_name TEXT NOT NULL,
			alias_text TEXT NOT NULL,
			normalized_canonical TEXT NOT NULL,
			normalized_alias TEXT NOT NULL,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			confidence REAL NOT NULL,
			created_at DATETIME NOT NULL,
			approver_id TEXT,
			approved_at DATETIME,
			status TEXT NOT NULL DEFAULT 'pending',
			FOREIGN KEY (entity_id) REFERENCES entities(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_aliases_normalized_alias ON aliases(normalized_alias, type, status);`,

		`CREATE TABLE IF NOT EXISTS alias_review_batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at DATETIME NOT NULL,
			total_count INTEGER NOT NULL DEFAULT 0
		);`,

		`CREATE TABLE IF NOT EXISTS alias_review_items (
			batch_id INTEGER NOT NULL,
			alias_id INTEGER NOT NULL,
			PRIMARY KEY (batch_id, alias_id),
			FOREIGN KEY (batch_id) REFERENCES alias_review_batches(id),
			FOREIGN KEY (alias_id) REFERENCES aliases(id)
		);`,

		`CREATE TABLE IF NOT EXISTS negative_matches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			normalized_a TEXT NOT NULL,
			normalized_b TEXT NOT NULL,
			type TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE(normalized_a, normalized_b, type)
		);`,

		`CREATE TABLE IF NOT EXISTS clusters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			primary_entity_ids TEXT NOT NULL,
			summary TEXT,
			summary_version INTEGER NOT NULL DEFAULT 0,
			article_count INTEGER NOT NULL DEFAULT 0,
			importance_score REAL NOT NULL DEFAULT 0,
			has_timeline BOOLEAN NOT NULL DEFAULT 0,
			needs_summary_update BOOLEAN NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_clusters_status ON clusters(status);`,

		`CREATE TABLE IF NOT EXISTS article_cluster_mappings (
			article_id INTEGER NOT NULL,
			cluster_id INTEGER NOT NULL,
			similarity REAL NOT NULL,
			assigned_at DATETIME NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1,
			PRIMARY KEY (article_id, cluster_id),
			FOREIGN KEY (article_id) REFERENCES articles(id),
			FOREIGN KEY (cluster_id) REFERENCES clusters(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_acm_cluster ON article_cluster_mappings(cluster_id, active);`,

		`CREATE TABLE IF NOT EXISTS cluster_merge_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			original_cluster_id INTEGER NOT NULL UNIQUE,
			merged_into_id INTEGER NOT NULL,
			merged_at DATETIME NOT NULL,
			reason TEXT
		);`,

		`CREATE TABLE IF NOT EXISTS devices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token TEXT NOT NULL UNIQUE
		);`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id INTEGER NOT NULL,
			topic TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (device_id) REFERENCES devices(id)
		);`,

		`CREATE TABLE IF NOT EXISTS rss_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL,
			source TEXT,
			enqueued_at DATETIME NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS matched_topics_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id INTEGER NOT NULL,
			topics_json TEXT NOT NULL,
			enqueued_at DATETIME NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS life_safety_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id INTEGER NOT NULL,
			topics_json TEXT NOT NULL,
			enqueued_at DATETIME NOT NULL
		);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

// UpsertArticle inserts a by normalized URL, or replaces the existing row.
// Conflict is not an error here: per the error taxonomy, re-ingesting an
// already-known URL is a success that returns the existing row's identity.
func (s *Store) UpsertArticle(a *core.Article) error {
	analysisJSON, err := json.Marshal(a.Analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	if a.FirstSeen.IsZero() {
		a.FirstSeen = time.Now().UTC()
	}

	_, err = s.db.Exec(`
		INSERT INTO articles (url, normalized_url, first_seen, pub_date, event_date, relevant,
			category, tiny_summary, analysis_json, content_hash, title_domain_hash, blob_url, cluster_id, quality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(normalized_url) DO UPDATE SET
			relevant=excluded.relevant, category=excluded.category, tiny_summary=excluded.tiny_summary,
			analysis_json=excluded.analysis_json, content_hash=excluded.content_hash,
			title_domain_hash=excluded.title_domain_hash, blob_url=excluded.blob_url,
			cluster_id=excluded.cluster_id, quality=excluded.quality`,
		a.URL, a.NormalizedURL, a.FirstSeen, a.PubDate, a.EventDate, a.Relevant,
		a.Category, a.TinySummary, string(analysisJSON), a.ContentHash, a.TitleDomainHash, a.BlobURL, a.ClusterID, a.Quality,
	)
	if err != nil {
		return fmt.Errorf("upsert article: %w", err)
	}

	// LastInsertId is not updated when the conflict branch runs, so the
	// row's identity is always read back by its unique key.
	return s.db.QueryRow(`SELECT id FROM articles WHERE normalized_url = ?`, a.NormalizedURL).Scan(&a.ID)
}

// GetArticleByNormalizedURL returns the article with that normalized URL, or
// nil if none exists.
func (s *Store) GetArticleByNormalizedURL(normalizedURL string) (*core.Article, error) {
	return s.scanArticle(s.db.QueryRow(`
		SELECT id, url, normalized_url, first_seen, pub_date, event_date, relevant, category,
			tiny_summary, analysis_json, content_hash, title_domain_hash, blob_url, cluster_id, quality
		FROM articles WHERE normalized_url = ?`, normalizedURL))
}

// GetArticleByID returns the article with that ID, or nil if none exists.
func (s *Store) GetArticleByID(id int64) (*core.Article, error) {
	return s.scanArticle(s.db.QueryRow(`
		SELECT id, url, normalized_url, first_seen, pub_date, event_date, relevant, category,
			tiny_summary, analysis_json, content_hash, title_domain_hash, blob_url, cluster_id, quality
		FROM articles WHERE id = ?`, id))
}

// FindByContentHash returns an existing article sharing content_hash, used
// by the duplicate gate (spec §4.7 step 1).
func (s *Store) FindByContentHash(hash string) (*core.Article, error) {
	return s.scanArticle(s.db.QueryRow(`
		SELECT id, url, normalized_url, first_seen, pub_date, event_date, relevant, category,
			tiny_summary, analysis_json, content_hash, title_domain_hash, blob_url, cluster_id, quality
		FROM articles WHERE content_hash = ? LIMIT 1`, hash))
}

func (s *Store) scanArticle(row *sql.Row) (*core.Article, error) {
	var a core.Article
	var pubDate, eventDate sql.NullTime
	var category, tinySummary, analysisJSON, blobURL sql.NullString
	var clusterID sql.NullInt64

	err := row.Scan(&a.ID, &a.URL, &a.NormalizedURL, &a.FirstSeen, &pubDate, &eventDate, &a.Relevant,
		&category, &tinySummary, &analysisJSON, &a.ContentHash, &a.TitleDomainHash, &blobURL, &clusterID, &a.Quality)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan article: %w", err)
	}

	if pubDate.Valid {
		a.PubDate = &pubDate.Time
	}
	if eventDate.Valid {
		a.EventDate = &eventDate.Time
	}
	a.Category = category.String
	a.TinySummary = tinySummary.String
	a.BlobURL = blobURL.String
	if clusterID.Valid {
		a.ClusterID = &clusterID.Int64
	}
	if analysisJSON.Valid && analysisJSON.String != "" {
		_ = json.Unmarshal([]byte(analysisJSON.String), &a.Analysis)
	}
	return &a, nil
}

// UpsertEntity inserts an entity keyed by (normalized_name, type), returning
// the existing ID on conflict.
func (s *Store) UpsertEntity(e *core.Entity) error {
	_, err := s.db.Exec(`
		INSERT INTO entities (name, normalized_name, type, parent_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(normalized_name, type) DO UPDATE SET name=excluded.name`,
		e.Name, e.NormalizedName, e.Type, e.ParentID,
	)
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	return s.db.QueryRow(`SELECT id FROM entities WHERE normalized_name = ? AND type = ?`, e.NormalizedName, e.Type).Scan(&e.ID)
}

// GetEntityByNormalizedName looks up an entity by its matching key.
func (s *Store) GetEntityByNormalizedName(normalizedName string, entityType core.EntityType) (*core.Entity, error) {
	var e core.Entity
	var parentID sql.NullInt64
	err := s.db.QueryRow(`SELECT id, name, normalized_name, type, parent_id FROM entities WHERE normalized_name = ? AND type = ?`,
		normalizedName, entityType).Scan(&e.ID, &e.Name, &e.NormalizedName, &e.Type, &parentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	if parentID.Valid {
		e.ParentID = &parentID.Int64
	}
	return &e, nil
}

// LinkArticleEntity records one article-entity edge, replacing any existing
// edge for the pair (an article can only carry one importance per entity).
func (s *Store) LinkArticleEntity(ae core.ArticleEntity) error {
	_, err := s.db.Exec(`
		INSERT INTO article_entities (article_id, entity_id, importance, context)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(article_id, entity_id) DO UPDATE SET importance=excluded.importance, context=excluded.context`,
		ae.ArticleID, ae.EntityID, ae.Importance, ae.Context,
	)
	if err != nil {
		return fmt.Errorf("link article entity: %w", err)
	}
	return nil
}

// ReplaceArticleEntities atomically replaces every article-entity edge for
// articleID with edges, used when an article is (re-)analysed (spec §3:
// "replaced wholesale when an article is re-analysed").
func (s *Store) ReplaceArticleEntities(articleID int64, edges []core.ArticleEntity) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace-entities transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM article_entities WHERE article_id = ?`, articleID); err != nil {
		return fmt.Errorf("clear existing edges: %w", err)
	}
	for _, ae := range edges {
		if _, err := tx.Exec(`
			INSERT INTO article_entities (article_id, entity_id, importance, context)
			VALUES (?, ?, ?, ?)`,
			articleID, ae.EntityID, ae.Importance, ae.Context,
		); err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
	}
	return tx.Commit()
}

// EntitiesForArticle returns every entity linked to articleID with its
// importance.
func (s *Store) EntitiesForArticle(articleID int64) ([]core.ArticleEntity, error) {
	rows, err := s.db.Query(`SELECT article_id, entity_id, importance, context FROM article_entities WHERE article_id = ?`, articleID)
	if err != nil {
		return nil, fmt.Errorf("query article entities: %w", err)
	}
	defer rows.Close()

	var out []core.ArticleEntity
	for rows.Next() {
		var ae core.ArticleEntity
		var context sql.NullString
		if err := rows.Scan(&ae.ArticleID, &ae.EntityID, &ae.Importance, &context); err != nil {
			return nil, fmt.Errorf("scan article entity: %w", err)
		}
		ae.Context = context.String
		out = append(out, ae)
	}
	return out, rows.Err()
}

// EntityImportancesByType returns articleID's linked entities' ids and
// importances, grouped by entity type, for feeding the similarity engine's
// per-type overlap computation (spec §4.6). Entity identity (not just
// type+weight) is required there: two articles only "overlap" on an entity
// they were both resolved against the same entity row for.
func (s *Store) EntityImportancesByType(articleID int64) (map[core.EntityType][]core.WeightedEntity, error) {
	rows, err := s.db.Query(`
		SELECT e.type, ae.entity_id, ae.importance
		FROM article_entities ae JOIN entities e ON e.id = ae.entity_id
		WHERE ae.article_id = ?`, articleID)
	if err != nil {
		return nil, fmt.Errorf("query article entity types: %w", err)
	}
	defer rows.Close()

	out := make(map[core.EntityType][]core.WeightedEntity)
	for rows.Next() {
		var t core.EntityType
		var we core.WeightedEntity
		if err := rows.Scan(&t, &we.EntityID, &we.Importance); err != nil {
			return nil, fmt.Errorf("scan article entity type: %w", err)
		}
		out[t] = append(out[t], we)
	}
	return out, rows.Err()
}

// PrimaryEntityIDs returns the entity IDs linked to articleID at primary
// importance, used to seed vector-store candidate filters (spec §4.8).
func (s *Store) PrimaryEntityIDs(articleID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT entity_id FROM article_entities WHERE article_id = ? AND importance = ?`,
		articleID, core.ImportancePrimary)
	if err != nil {
		return nil, fmt.Errorf("query primary entities: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan primary entity id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// EntitiesByType returns every entity of entityType, used by the matcher
// to scan candidates when no exact or approved-alias match exists.
func (s *Store) EntitiesByType(entityType core.EntityType) ([]core.Entity, error) {
	rows, err := s.db.Query(`SELECT id, name, normalized_name, type, parent_id FROM entities WHERE type = ?`, entityType)
	if err != nil {
		return nil, fmt.Errorf("query entities by type: %w", err)
	}
	defer rows.Close()

	var out []core.Entity
	for rows.Next() {
		var e core.Entity
		var parentID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Name, &e.NormalizedName, &e.Type, &parentID); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		if parentID.Valid {
			e.ParentID = &parentID.Int64
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertAlias inserts an alias candidate. (normalized_alias,
// type) is not unique at the schema level — multiple candidates with
// different sources may coexist pending review — so this always inserts.
func (s *Store) InsertAlias(a *core.Alias) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = core.AliasPending
	}
	res, err := s.db.Exec(`
		INSERT INTO aliases (entity_id, canonical_name, alias_text, normalized_canonical, normalized_alias,
			type, source, confidence, created_at, approver_id, approved_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.EntityID, a.CanonicalName, a.AliasText, a.NormalizedCanon, a.NormalizedAlias,
		a.Type, a.Source, a.Confidence, a.CreatedAt, a.ApproverID, a.ApprovedAt, a.Status,
	)
	if err != nil {
		return fmt.Errorf("insert alias: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert alias: last insert id: %w", err)
	}
	a.ID = id
	return nil
}

// ApprovedAliasFor returns an approved alias matching normalizedAlias at or
// above the approval confidence threshold, or nil if none exists.
func (s *Store) ApprovedAliasFor(normalizedAlias string, entityType core.EntityType) (*core.Alias, error) {
	row := s.db.QueryRow(`
		SELECT id, entity_id, canonical_name, alias_text, normalized_canonical, normalized_alias, type, source,
			confidence, created_at, approver_id, approved_at, status
		FROM aliases
		WHERE normalized_alias = ? AND type = ? AND status = ? AND confidence >= ?
		ORDER BY confidence DESC LIMIT 1`,
		normalizedAlias, entityType, core.AliasApproved, core.ApprovedAliasConfidence)
	return scanAlias(row)
}

func scanAlias(row *sql.Row) (*core.Alias, error) {
	var a core.Alias
	var entityID sql.NullInt64
	var approverID sql.NullString
	var approvedAt sql.NullTime
	err := row.Scan(&a.ID, &entityID, &a.CanonicalName, &a.AliasText, &a.NormalizedCanon, &a.NormalizedAlias,
		&a.Type, &a.Source, &a.Confidence, &a.CreatedAt, &approverID, &approvedAt, &a.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan alias: %w", err)
	}
	if entityID.Valid {
		a.EntityID = &entityID.Int64
	}
	a.ApproverID = approverID.String
	if approvedAt.Valid {
		a.ApprovedAt = &approvedAt.Time
	}
	return &a, nil
}

// PendingAliases returns every alias awaiting review, oldest first.
func (s *Store) PendingAliases() ([]core.Alias, error) {
	rows, err := s.db.Query(`
		SELECT id, entity_id, canonical_name, alias_text, normalized_canonical, normalized_alias, type, source,
			confidence, created_at, approver_id, approved_at, status
		FROM aliases WHERE status = ? ORDER BY created_at ASC`, core.AliasPending)
	if err != nil {
		return nil, fmt.Errorf("query pending aliases: %w", err)
	}
	defer rows.Close()

	var out []core.Alias
	for rows.Next() {
		var a core.Alias
		var entityID sql.NullInt64
		var approverID sql.NullString
		var approvedAt sql.NullTime
		if err := rows.Scan(&a.ID, &entityID, &a.CanonicalName, &a.AliasText, &a.NormalizedCanon, &a.NormalizedAlias,
			&a.Type, &a.Source, &a.Confidence, &a.CreatedAt, &approverID, &approvedAt, &a.Status); err != nil {
			return nil, fmt.Errorf("scan pending alias: %w", err)
		}
		if entityID.Valid {
			a.EntityID = &entityID.Int64
		}
		a.ApproverID = approverID.String
		if approvedAt.Valid {
			a.ApprovedAt = &approvedAt.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PendingAliasBatch materializes a size-bounded review batch: it selects up
// to limit pending aliases (oldest first), records them as an
// alias_review_batches row plus one alias_review_items row per alias, and
// returns the batch. This mirrors manage_aliases.rs's
// create_alias_review_batch(size)/get_alias_review_batch(batch_id) pair,
// collapsed into a single call since the core has no interactive review
// loop of its own (spec §4.5 "Alias mining").
func (s *Store) PendingAliasBatch(limit int) (*core.AliasReviewBatch, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin alias review batch: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT id, entity_id, canonical_name, alias_text, normalized_canonical, normalized_alias, type, source,
			confidence, created_at, approver_id, approved_at, status
		FROM aliases WHERE status = ? ORDER BY created_at ASC LIMIT ?`, core.AliasPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending aliases for batch: %w", err)
	}
	var aliases []core.Alias
	for rows.Next() {
		var a core.Alias
		var entityID sql.NullInt64
		var approverID sql.NullString
		var approvedAt sql.NullTime
		if err := rows.Scan(&a.ID, &entityID, &a.CanonicalName, &a.AliasText, &a.NormalizedCanon, &a.NormalizedAlias,
			&a.Type, &a.Source, &a.Confidence, &a.CreatedAt, &approverID, &approvedAt, &a.Status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pending alias for batch: %w", err)
		}
		if entityID.Valid {
			a.EntityID = &entityID.Int64
		}
		a.ApproverID = approverID.String
		if approvedAt.Valid {
			a.ApprovedAt = &approvedAt.Time
		}
		aliases = append(aliases, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate pending aliases for batch: %w", err)
	}
	rows.Close()

	createdAt := time.Now().UTC()
	res, err := tx.Exec(`INSERT INTO alias_review_batches (created_at, total_count) VALUES (?, ?)`,
		createdAt, len(aliases))
	if err != nil {
		return nil, fmt.Errorf("insert alias review batch: %w", err)
	}
	batchID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert alias review batch: last insert id: %w", err)
	}

	for _, a := range aliases {
		if _, err := tx.Exec(`INSERT INTO alias_review_items (batch_id, alias_id) VALUES (?, ?)`, batchID, a.ID); err != nil {
			return nil, fmt.Errorf("insert alias review item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit alias review batch: %w", err)
	}

	return &core.AliasReviewBatch{ID: batchID, CreatedAt: createdAt, Aliases: aliases}, nil
}

// DecideAlias sets an alias's status to approved or rejected.
func (s *Store) DecideAlias(aliasID int64, approve bool, approverID string) error {
	status := core.AliasRejected
	var approvedAt interface{}
	if approve {
		status = core.AliasApproved
		approvedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`UPDATE aliases SET status = ?, approver_id = ?, approved_at = ? WHERE id = ?`,
		status, approverID, approvedAt, aliasID)
	if err != nil {
		return fmt.Errorf("decide alias: %w", err)
	}
	return nil
}

// IsNegativeMatch reports whether (a, b) of entityType has been recorded as
// a hard veto, checked in either order.
func (s *Store) IsNegativeMatch(normalizedA, normalizedB string, entityType core.EntityType) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM negative_matches
		WHERE type = ? AND ((normalized_a = ? AND normalized_b = ?) OR (normalized_a = ? AND normalized_b = ?))`,
		entityType, normalizedA, normalizedB, normalizedB, normalizedA).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check negative match: %w", err)
	}
	return count > 0, nil
}

// AddNegativeMatch records a veto pair.
func (s *Store) AddNegativeMatch(nm core.NegativeMatch) error {
	if nm.CreatedAt.IsZero() {
		nm.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO negative_matches (normalized_a, normalized_b, type, created_at)
		VALUES (?, ?, ?, ?)`, nm.NormalizedA, nm.NormalizedB, nm.Type, nm.CreatedAt)
	if err != nil {
		return fmt.Errorf("add negative match: %w", err)
	}
	return nil
}

// CreateCluster inserts a new cluster and sets its ID.
func (s *Store) CreateCluster(c *core.Cluster) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	entityIDsJSON, err := json.Marshal(c.PrimaryEntityIDs)
	if err != nil {
		return fmt.Errorf("marshal primary entity ids: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO clusters (created_at, updated_at, primary_entity_ids, summary, summary_version,
			article_count, importance_score, has_timeline, needs_summary_update, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CreatedAt, c.UpdatedAt, string(entityIDsJSON), c.Summary, c.SummaryVersion,
		c.ArticleCount, c.ImportanceScore, c.HasTimeline, c.NeedsSummaryUpdate, c.Status,
	)
	if err != nil {
		return fmt.Errorf("insert cluster: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert cluster: last insert id: %w", err)
	}
	c.ID = id
	return nil
}

// UpdateCluster persists mutable cluster fields (primary entity ids,
// summary, counts, scores, status). created_at is left as set at creation.
func (s *Store) UpdateCluster(c *core.Cluster) error {
	c.UpdatedAt = time.Now().UTC()
	entityIDsJSON, err := json.Marshal(c.PrimaryEntityIDs)
	if err != nil {
		return fmt.Errorf("marshal primary entity ids: %w", err)
	}
	_, err = s.db.Exec(`
		UPDATE clusters SET updated_at = ?, primary_entity_ids = ?, summary = ?, summary_version = ?,
			article_count = ?, importance_score = ?, has_timeline = ?, needs_summary_update = ?, status = ?
		WHERE id = ?`,
		c.UpdatedAt, string(entityIDsJSON), c.Summary, c.SummaryVersion,
		c.ArticleCount, c.ImportanceScore, c.HasTimeline, c.NeedsSummaryUpdate, c.Status, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update cluster: %w", err)
	}
	return nil
}

// GetCluster fetches a cluster by ID.
func (s *Store) GetCluster(id int64) (*core.Cluster, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, updated_at, primary_entity_ids, summary, summary_version, article_count,
			importance_score, has_timeline, needs_summary_update, status
		FROM clusters WHERE id = ?`, id)
	return scanCluster(row)
}

func scanCluster(row *sql.Row) (*core.Cluster, error) {
	var c core.Cluster
	var entityIDsJSON string
	var summary sql.NullString
	err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &entityIDsJSON, &summary, &c.SummaryVersion,
		&c.ArticleCount, &c.ImportanceScore, &c.HasTimeline, &c.NeedsSummaryUpdate, &c.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan cluster: %w", err)
	}
	c.Summary = summary.String
	if entityIDsJSON != "" {
		_ = json.Unmarshal([]byte(entityIDsJSON), &c.PrimaryEntityIDs)
	}
	return &c, nil
}

// ActiveClustersForEntities returns clusters whose primary_entity_ids share
// at least one ID with entityIDs and whose status is active, used to seed
// merge-candidate discovery (spec §4.8).
func (s *Store) ActiveClustersForEntities(entityIDs []int64) ([]core.Cluster, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`
		SELECT id, created_at, updated_at, primary_entity_ids, summary, summary_version, article_count,
			importance_score, has_timeline, needs_summary_update, status
		FROM clusters WHERE status = ?`, core.ClusterActive)
	if err != nil {
		return nil, fmt.Errorf("query active clusters: %w", err)
	}
	defer rows.Close()

	want := make(map[int64]bool, len(entityIDs))
	for _, id := range entityIDs {
		want[id] = true
	}

	var out []core.Cluster
	for rows.Next() {
		var c core.Cluster
		var entityIDsJSON string
		var summary sql.NullString
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &entityIDsJSON, &summary, &c.SummaryVersion,
			&c.ArticleCount, &c.ImportanceScore, &c.HasTimeline, &c.NeedsSummaryUpdate, &c.Status); err != nil {
			return nil, fmt.Errorf("scan active cluster: %w", err)
		}
		c.Summary = summary.String
		if entityIDsJSON != "" {
			_ = json.Unmarshal([]byte(entityIDsJSON), &c.PrimaryEntityIDs)
		}
		for _, id := range c.PrimaryEntityIDs {
			if want[id] {
				out = append(out, c)
				break
			}
		}
	}
	return out, rows.Err()
}

// AssignArticleToCluster records a (possibly new) active mapping and
// updates the article's denormalized cluster_id cache, transactionally.
func (s *Store) AssignArticleToCluster(articleID, clusterID int64, similarity float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin assign transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE article_cluster_mappings SET active = 0 WHERE article_id = ? AND active = 1`, articleID); err != nil {
		return fmt.Errorf("deactivate prior mappings: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO article_cluster_mappings (article_id, cluster_id, similarity, assigned_at, active)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(article_id, cluster_id) DO UPDATE SET similarity=excluded.similarity, assigned_at=excluded.assigned_at, active=1`,
		articleID, clusterID, similarity, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert mapping: %w", err)
	}
	if _, err := tx.Exec(`UPDATE articles SET cluster_id = ? WHERE id = ?`, clusterID, articleID); err != nil {
		return fmt.Errorf("update article cluster cache: %w", err)
	}
	return tx.Commit()
}

// ArticlesInCluster returns the active article IDs assigned to clusterID.
func (s *Store) ArticlesInCluster(clusterID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT article_id FROM article_cluster_mappings WHERE cluster_id = ? AND active = 1`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("query cluster articles: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cluster article id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MergeClusters folds source into destination: every active mapping is
// repointed, source is marked merged, and an append-only merge-history row
// is written. Rejects the merge if it would close a cycle in the merge
// forest (destination's merge history already leads, transitively, to
// source).
func (s *Store) MergeClusters(sourceID, destinationID int64, reason string) error {
	if sourceID == destinationID {
		return fmt.Errorf("cannot merge cluster %d into itself", sourceID)
	}

	root, err := s.mergeRoot(destinationID)
	if err != nil {
		return fmt.Errorf("resolve merge root: %w", err)
	}
	if root == sourceID {
		return fmt.Errorf("merge of %d into %d would close a cycle in the merge history", sourceID, destinationID)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin merge transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE article_cluster_mappings SET cluster_id = ? WHERE cluster_id = ? AND active = 1`,
		destinationID, sourceID); err != nil {
		return fmt.Errorf("repoint mappings: %w", err)
	}
	if _, err := tx.Exec(`UPDATE articles SET cluster_id = ? WHERE cluster_id = ?`, destinationID, sourceID); err != nil {
		return fmt.Errorf("repoint article cache: %w", err)
	}
	if _, err := tx.Exec(`UPDATE clusters SET status = ? WHERE id = ?`, core.ClusterMerged, sourceID); err != nil {
		return fmt.Errorf("mark source merged: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO cluster_merge_history (original_cluster_id, merged_into_id, merged_at, reason)
		VALUES (?, ?, ?, ?)`, sourceID, destinationID, time.Now().UTC(), reason); err != nil {
		return fmt.Errorf("insert merge history: %w", err)
	}
	return tx.Commit()
}

// mergeRoot follows merge history from clusterID until it finds a cluster
// that has never itself been merged away, used to reject cycle-forming
// merges before they are committed.
func (s *Store) mergeRoot(clusterID int64) (int64, error) {
	current := clusterID
	for i := 0; i < 10_000; i++ {
		var mergedInto int64
		err := s.db.QueryRow(`SELECT merged_into_id FROM cluster_merge_history WHERE original_cluster_id = ?`, current).Scan(&mergedInto)
		if err == sql.ErrNoRows {
			return current, nil
		}
		if err != nil {
			return 0, fmt.Errorf("walk merge history: %w", err)
		}
		current = mergedInto
	}
	return 0, fmt.Errorf("merge history walk exceeded depth limit starting at cluster %d", clusterID)
}

// EnqueueRSS appends a URL to rss_queue.
func (s *Store) EnqueueRSS(item core.RSSQueueItem) error {
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO rss_queue (url, source, enqueued_at) VALUES (?, ?, ?)`,
		item.URL, item.Source, item.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("enqueue rss item: %w", err)
	}
	return nil
}

// DequeueRSS removes and returns the oldest rss_queue item within a single
// transaction (read-then-delete), giving at-most-once delivery. Returns nil
// if the queue is empty.
func (s *Store) DequeueRSS() (*core.RSSQueueItem, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin dequeue transaction: %w", err)
	}
	defer tx.Rollback()

	var item core.RSSQueueItem
	var source sql.NullString
	err = tx.QueryRow(`SELECT id, url, source, enqueued_at FROM rss_queue ORDER BY id ASC LIMIT 1`).
		Scan(&item.ID, &item.URL, &source, &item.EnqueuedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan rss queue item: %w", err)
	}
	item.Source = source.String

	if _, err := tx.Exec(`DELETE FROM rss_queue WHERE id = ?`, item.ID); err != nil {
		return nil, fmt.Errorf("delete rss queue item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue transaction: %w", err)
	}
	return &item, nil
}

// EnqueueNotification appends an analysed article to queueName, which must
// be matched_topics_queue or life_safety_queue.
func (s *Store) EnqueueNotification(queueName core.QueueName, item core.NotificationQueueItem) error {
	table, err := notificationTable(queueName)
	if err != nil {
		return err
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}
	topicsJSON, err := json.Marshal(item.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	_, err = s.db.Exec(fmt.Sprintf(`INSERT INTO %s (article_id, topics_json, enqueued_at) VALUES (?, ?, ?)`, table),
		item.ArticleID, string(topicsJSON), item.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("enqueue notification item: %w", err)
	}
	return nil
}

// DequeueNotification removes and returns the oldest item from queueName
// within a single transaction. Returns nil if the queue is empty.
func (s *Store) DequeueNotification(queueName core.QueueName) (*core.NotificationQueueItem, error) {
	table, err := notificationTable(queueName)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin dequeue transaction: %w", err)
	}
	defer tx.Rollback()

	var item core.NotificationQueueItem
	var topicsJSON string
	err = tx.QueryRow(fmt.Sprintf(`SELECT id, article_id, topics_json, enqueued_at FROM %s ORDER BY id ASC LIMIT 1`, table)).
		Scan(&item.ID, &item.ArticleID, &topicsJSON, &item.EnqueuedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification queue item: %w", err)
	}
	_ = json.Unmarshal([]byte(topicsJSON), &item.Topics)

	if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), item.ID); err != nil {
		return nil, fmt.Errorf("delete notification queue item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue transaction: %w", err)
	}
	return &item, nil
}

func notificationTable(queueName core.QueueName) (string, error) {
	switch queueName {
	case core.QueueMatchedTopics:
		return "matched_topics_queue", nil
	case core.QueueLifeSafety:
		return "life_safety_queue", nil
	default:
		return "", fmt.Errorf("not a notification queue: %s", queueName)
	}
}

// SubscriptionsForTopic returns every device subscribed to topic, used by
// the notification handoff (spec §4.7 step 8). Devices and subscriptions
// are read-only from this core's point of view.
func (s *Store) SubscriptionsForTopic(topic string) ([]core.Subscription, error) {
	rows, err := s.db.Query(`SELECT id, device_id, topic, priority FROM subscriptions WHERE topic = ?`, topic)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []core.Subscription
	for rows.Next() {
		var sub core.Subscription
		if err := rows.Scan(&sub.ID, &sub.DeviceID, &sub.Topic, &sub.Priority); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// DistinctTopics returns every topic with at least one active subscription,
// feeding the relevance gate's "is this about any of {topics}" prompt (spec
// §4.7 step 2).
func (s *Store) DistinctTopics() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT topic FROM subscriptions ORDER BY topic ASC`)
	if err != nil {
		return nil, fmt.Errorf("query distinct topics: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, topic)
	}
	return out, rows.Err()
}

// normalizeURL lower-cases the scheme/host, strips a trailing slash and
// drops utm_* tracking query parameters, so re-ingested URLs collide with
// what is already stored (spec §4.2). The path keeps its case.
func normalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(s, "/")
	}
	u.Scheme, u.Host = strings.ToLower(u.Scheme), strings.ToLower(u.Host)
	q := u.Query()
	for k := range q {
		if strings.HasPrefix(strings.ToLower(k), "utm_") {
			q.Del(k)
			u.RawQuery = q.Encode()
		}
	}
	return strings.TrimSuffix(u.String(), "/")
}

// NormalizeURL exposes normalizeURL for callers outside the package that
// need to derive the dedup key before an UpsertArticle call.
func NormalizeURL(raw string) string { return normalizeURL(raw) }
