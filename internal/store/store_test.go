package store

import (
	"testing"
	"time"

	"github.com/jeremyandrews/argus/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertArticleAssignsID(t *testing.T) {
	s := openTestStore(t)
	a := &core.Article{URL: "https://example.com/a", NormalizedURL: "https://example.com/a"}
	if err := s.UpsertArticle(a); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if a.ID == 0 {
		t.Fatal("expected ID to be assigned")
	}
}

func TestUpsertArticleConflictReturnsExistingID(t *testing.T) {
	s := openTestStore(t)
	a := &core.Article{URL: "https://example.com/a", NormalizedURL: "https://example.com/a", Category: "first"}
	if err := s.UpsertArticle(a); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	firstID := a.ID

	b := &core.Article{URL: "https://example.com/a", NormalizedURL: "https://example.com/a", Category: "second"}
	if err := s.UpsertArticle(b); err != nil {
		t.Fatalf("upsert conflict: %v", err)
	}
	if b.ID != firstID {
		t.Fatalf("expected conflict to resolve to existing id %d, got %d", firstID, b.ID)
	}

	got, err := s.GetArticleByNormalizedURL("https://example.com/a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Category != "second" {
		t.Fatalf("expected update to apply, got category %q", got.Category)
	}
}

func TestUpsertEntityKeyedByNormalizedNameAndType(t *testing.T) {
	s := openTestStore(t)
	e := &core.Entity{Name: "Acme Corp", NormalizedName: "acme corp", Type: core.EntityOrganization}
	if err := s.UpsertEntity(e); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	dup := &core.Entity{Name: "ACME CORP", NormalizedName: "acme corp", Type: core.EntityOrganization}
	if err := s.UpsertEntity(dup); err != nil {
		t.Fatalf("upsert dup: %v", err)
	}
	if dup.ID != e.ID {
		t.Fatalf("expected same entity id, got %d vs %d", dup.ID, e.ID)
	}
}

func TestEntityImportancesByTypeCarriesEntityIdentity(t *testing.T) {
	s := openTestStore(t)
	a := &core.Article{URL: "https://example.com/a", NormalizedURL: "https://example.com/a"}
	if err := s.UpsertArticle(a); err != nil {
		t.Fatalf("upsert article: %v", err)
	}

	amazon := &core.Entity{Name: "Amazon", NormalizedName: "amazon", Type: core.EntityOrganization}
	if err := s.UpsertEntity(amazon); err != nil {
		t.Fatalf("upsert entity: %v", err)
	}
	bezos := &core.Entity{Name: "Jeff Bezos", NormalizedName: "jeff bezos", Type: core.EntityPerson}
	if err := s.UpsertEntity(bezos); err != nil {
		t.Fatalf("upsert entity: %v", err)
	}

	err := s.ReplaceArticleEntities(a.ID, []core.ArticleEntity{
		{ArticleID: a.ID, EntityID: amazon.ID, Importance: core.ImportancePrimary},
		{ArticleID: a.ID, EntityID: bezos.ID, Importance: core.ImportanceMentioned},
	})
	if err != nil {
		t.Fatalf("replace article entities: %v", err)
	}

	byType, err := s.EntityImportancesByType(a.ID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	orgs := byType[core.EntityOrganization]
	if len(orgs) != 1 || orgs[0].EntityID != amazon.ID || orgs[0].Importance != core.ImportancePrimary {
		t.Fatalf("expected amazon as primary organization, got %+v", orgs)
	}
	people := byType[core.EntityPerson]
	if len(people) != 1 || people[0].EntityID != bezos.ID || people[0].Importance != core.ImportanceMentioned {
		t.Fatalf("expected bezos as mentioned person, got %+v", people)
	}
}

func TestApprovedAliasRespectsConfidenceThreshold(t *testing.T) {
	s := openTestStore(t)
	lowConfidence := &core.Alias{
		CanonicalName: "Acme Corporation", AliasText: "Acme",
		NormalizedCanon: "acme corporation", NormalizedAlias: "acme",
		Type: core.EntityOrganization, Source: core.AliasSourcePattern,
		Confidence: 0.5, Status: core.AliasApproved,
	}
	if err := s.InsertAlias(lowConfidence); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.ApprovedAliasFor("acme", core.EntityOrganization)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no match below confidence threshold, got %+v", got)
	}

	highConfidence := &core.Alias{
		CanonicalName: "Acme Corporation", AliasText: "Acme",
		NormalizedCanon: "acme corporation", NormalizedAlias: "acme",
		Type: core.EntityOrganization, Source: core.AliasSourceAdmin,
		Confidence: 0.95, Status: core.AliasApproved,
	}
	if err := s.InsertAlias(highConfidence); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err = s.ApprovedAliasFor("acme", core.EntityOrganization)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got == nil || got.ID != highConfidence.ID {
		t.Fatalf("expected to match high-confidence alias, got %+v", got)
	}
}

func TestPendingAliasBatchIsSizeBoundedAndOldestFirst(t *testing.T) {
	s := openTestStore(t)
	for i, name := range []string{"alpha", "beta", "gamma"} {
		a := &core.Alias{
			CanonicalName: name, AliasText: name + "-alt",
			NormalizedCanon: name, NormalizedAlias: name + "-alt",
			Type: core.EntityOrganization, Source: core.AliasSourcePattern,
			Confidence: 0.7, Status: core.AliasPending,
			CreatedAt: time.Unix(int64(i), 0).UTC(),
		}
		if err := s.InsertAlias(a); err != nil {
			t.Fatalf("insert alias %d: %v", i, err)
		}
	}

	batch, err := s.PendingAliasBatch(2)
	if err != nil {
		t.Fatalf("pending alias batch: %v", err)
	}
	if batch.ID == 0 {
		t.Fatal("expected batch to be assigned an id")
	}
	if len(batch.Aliases) != 2 {
		t.Fatalf("expected batch limited to 2 aliases, got %d", len(batch.Aliases))
	}
	if batch.Aliases[0].CanonicalName != "alpha" || batch.Aliases[1].CanonicalName != "beta" {
		t.Fatalf("expected oldest-first ordering, got %+v", batch.Aliases)
	}

	var itemCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM alias_review_items WHERE batch_id = ?`, batch.ID).Scan(&itemCount); err != nil {
		t.Fatalf("count batch items: %v", err)
	}
	if itemCount != 2 {
		t.Fatalf("expected 2 alias_review_items rows, got %d", itemCount)
	}
}

func TestNegativeMatchVetoIsOrderInsensitive(t *testing.T) {
	s := openTestStore(t)
	if err := s.AddNegativeMatch(core.NegativeMatch{NormalizedA: "john smith", NormalizedB: "john smyth", Type: core.EntityPerson}); err != nil {
		t.Fatalf("add: %v", err)
	}

	veto, err := s.IsNegativeMatch("john smyth", "john smith", core.EntityPerson)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !veto {
		t.Fatal("expected veto to apply regardless of argument order")
	}
}

func TestAssignArticleToClusterUpdatesDenormalizedCache(t *testing.T) {
	s := openTestStore(t)
	a := &core.Article{URL: "https://example.com/a", NormalizedURL: "https://example.com/a"}
	if err := s.UpsertArticle(a); err != nil {
		t.Fatalf("upsert article: %v", err)
	}
	c := &core.Cluster{PrimaryEntityIDs: []int64{1}, Status: core.ClusterActive}
	if err := s.CreateCluster(c); err != nil {
		t.Fatalf("create cluster: %v", err)
	}

	if err := s.AssignArticleToCluster(a.ID, c.ID, 0.82); err != nil {
		t.Fatalf("assign: %v", err)
	}

	got, err := s.GetArticleByNormalizedURL(a.NormalizedURL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ClusterID == nil || *got.ClusterID != c.ID {
		t.Fatalf("expected cluster_id cache to be set to %d, got %+v", c.ID, got.ClusterID)
	}

	members, err := s.ArticlesInCluster(c.ID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0] != a.ID {
		t.Fatalf("expected article to be an active cluster member, got %+v", members)
	}
}

func TestMergeClustersRejectsCycle(t *testing.T) {
	s := openTestStore(t)
	a := &core.Cluster{PrimaryEntityIDs: []int64{1}, Status: core.ClusterActive}
	b := &core.Cluster{PrimaryEntityIDs: []int64{2}, Status: core.ClusterActive}
	if err := s.CreateCluster(a); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if err := s.CreateCluster(b); err != nil {
		t.Fatalf("create b: %v", err)
	}

	if err := s.MergeClusters(a.ID, b.ID, "shared entity"); err != nil {
		t.Fatalf("merge a into b: %v", err)
	}

	if err := s.MergeClusters(b.ID, a.ID, "cycle attempt"); err == nil {
		t.Fatal("expected cycle-forming merge to be rejected")
	}
}

func TestRSSQueueFIFODequeue(t *testing.T) {
	s := openTestStore(t)
	if err := s.EnqueueRSS(core.RSSQueueItem{URL: "https://example.com/1", EnqueuedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("enqueue 1: %v", err)
	}
	if err := s.EnqueueRSS(core.RSSQueueItem{URL: "https://example.com/2", EnqueuedAt: time.Now().UTC().Add(time.Second)}); err != nil {
		t.Fatalf("enqueue 2: %v", err)
	}

	first, err := s.DequeueRSS()
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if first == nil || first.URL != "https://example.com/1" {
		t.Fatalf("expected FIFO order, got %+v", first)
	}

	second, err := s.DequeueRSS()
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if second == nil || second.URL != "https://example.com/2" {
		t.Fatalf("expected second item, got %+v", second)
	}

	empty, err := s.DequeueRSS()
	if err != nil {
		t.Fatalf("dequeue empty: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected nil on empty queue, got %+v", empty)
	}
}

func TestNotificationQueueRoundTrip(t *testing.T) {
	s := openTestStore(t)
	if err := s.EnqueueNotification(core.QueueMatchedTopics, core.NotificationQueueItem{ArticleID: 42, Topics: []string{"weather"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	item, err := s.DequeueNotification(core.QueueMatchedTopics)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if item == nil || item.ArticleID != 42 || len(item.Topics) != 1 || item.Topics[0] != "weather" {
		t.Fatalf("unexpected item: %+v", item)
	}
}
