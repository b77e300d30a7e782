package clustering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyandrews/argus/internal/core"
	"github.com/jeremyandrews/argus/internal/llm"
	"github.com/jeremyandrews/argus/internal/vectorstore"
)

type fakeStore struct {
	articles   map[int64]*core.Article
	primaries  map[int64][]int64
	importance map[int64]map[core.EntityType][]core.WeightedEntity
	clusters   map[int64]*core.Cluster
	members    map[int64][]int64
	nextID     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		articles:   make(map[int64]*core.Article),
		primaries:  make(map[int64][]int64),
		importance: make(map[int64]map[core.EntityType][]core.WeightedEntity),
		clusters:   make(map[int64]*core.Cluster),
		members:    make(map[int64][]int64),
	}
}

func (f *fakeStore) GetArticleByID(id int64) (*core.Article, error) {
	return f.articles[id], nil
}

func (f *fakeStore) PrimaryEntityIDs(articleID int64) ([]int64, error) {
	return f.primaries[articleID], nil
}

func (f *fakeStore) EntityImportancesByType(articleID int64) (map[core.EntityType][]core.WeightedEntity, error) {
	return f.importance[articleID], nil
}

func (f *fakeStore) CreateCluster(c *core.Cluster) error {
	f.nextID++
	c.ID = f.nextID
	if c.Status == "" {
		c.Status = core.ClusterActive
	}
	f.clusters[c.ID] = c
	return nil
}

func (f *fakeStore) UpdateCluster(c *core.Cluster) error {
	f.clusters[c.ID] = c
	return nil
}

func (f *fakeStore) GetCluster(id int64) (*core.Cluster, error) {
	return f.clusters[id], nil
}

func (f *fakeStore) ActiveClustersForEntities(entityIDs []int64) ([]core.Cluster, error) {
	var out []core.Cluster
	for _, c := range f.clusters {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeStore) AssignArticleToCluster(articleID, clusterID int64, similarity float64) error {
	f.members[clusterID] = append(f.members[clusterID], articleID)
	if a := f.articles[articleID]; a != nil {
		id := clusterID
		a.ClusterID = &id
	}
	return nil
}

func (f *fakeStore) ArticlesInCluster(clusterID int64) ([]int64, error) {
	return f.members[clusterID], nil
}

func (f *fakeStore) MergeClusters(sourceID, destinationID int64, reason string) error {
	if sourceID == destinationID {
		return assertErrf("cannot merge cluster into itself")
	}
	f.members[destinationID] = append(f.members[destinationID], f.members[sourceID]...)
	f.members[sourceID] = nil
	for _, aid := range f.members[destinationID] {
		id := destinationID
		if a := f.articles[aid]; a != nil {
			a.ClusterID = &id
		}
	}
	if c := f.clusters[sourceID]; c != nil {
		c.Status = core.ClusterMerged
	}
	return nil
}

func assertErrf(msg string) error { return &simpleErr{msg} }

type simpleErr struct{ msg string }

func (e *simpleErr) Error() string { return e.msg }

type fakeVectorStore struct {
	points  map[int64]*vectorstore.Point
	results []vectorstore.SearchResult
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: make(map[int64]*vectorstore.Point)}
}

func (f *fakeVectorStore) Upsert(ctx context.Context, articleID int64, vector []float32, payload core.VectorPayload) error {
	f.points[articleID] = &vectorstore.Point{ArticleID: articleID, Vector: vector, Payload: payload}
	return nil
}

func (f *fakeVectorStore) Get(ctx context.Context, articleID int64) (*vectorstore.Point, error) {
	return f.points[articleID], nil
}

func (f *fakeVectorStore) Search(ctx context.Context, query vectorstore.SearchQuery) ([]vectorstore.SearchResult, error) {
	return f.results, nil
}

func (f *fakeVectorStore) Delete(ctx context.Context, articleID int64) error {
	delete(f.points, articleID)
	return nil
}

func (f *fakeVectorStore) EnsureCollection(ctx context.Context) error { return nil }

func TestAssignToClusterSeedsNewClusterWhenNoNeighbors(t *testing.T) {
	store := newFakeStore()
	vs := newFakeVectorStore()
	now := time.Now()
	store.articles[1] = &core.Article{ID: 1, FirstSeen: now, PubDate: &now}
	store.primaries[1] = []int64{100}
	vs.points[1] = &vectorstore.Point{ArticleID: 1, Vector: []float32{1, 0, 0}}

	engine := New(store, vs)
	result, err := engine.AssignToCluster(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.NotZero(t, result.ClusterID)

	cluster := store.clusters[result.ClusterID]
	require.NotNil(t, cluster)
	assert.Equal(t, []int64{100}, cluster.PrimaryEntityIDs)
	assert.Equal(t, 1, cluster.ArticleCount)
}

func TestAssignToClusterRequiresPrimaryEntity(t *testing.T) {
	store := newFakeStore()
	vs := newFakeVectorStore()
	store.articles[1] = &core.Article{ID: 1}
	vs.points[1] = &vectorstore.Point{ArticleID: 1, Vector: []float32{1, 0, 0}}

	engine := New(store, vs)
	_, err := engine.AssignToCluster(context.Background(), 1)
	assert.Error(t, err)
}

func TestAssignToClusterJoinsExistingClusterAboveThreshold(t *testing.T) {
	store := newFakeStore()
	vs := newFakeVectorStore()
	now := time.Now()

	store.articles[1] = &core.Article{ID: 1, FirstSeen: now, PubDate: &now}
	store.primaries[1] = []int64{100}
	store.importance[1] = map[core.EntityType][]core.WeightedEntity{
		core.EntityPerson: {{EntityID: 100, Importance: core.ImportancePrimary}},
	}
	vs.points[1] = &vectorstore.Point{ArticleID: 1, Vector: []float32{1, 0, 0}}

	clusterID := int64(1)
	store.clusters[clusterID] = &core.Cluster{ID: clusterID, Status: core.ClusterActive, PrimaryEntityIDs: []int64{100}}
	store.articles[2] = &core.Article{ID: 2, FirstSeen: now, PubDate: &now, ClusterID: &clusterID}
	store.primaries[2] = []int64{100}
	store.importance[2] = map[core.EntityType][]core.WeightedEntity{
		core.EntityPerson: {{EntityID: 100, Importance: core.ImportancePrimary}},
	}
	store.members[clusterID] = []int64{2}
	vs.points[2] = &vectorstore.Point{ArticleID: 2, Vector: []float32{1, 0, 0}}
	vs.results = []vectorstore.SearchResult{{ArticleID: 2, Score: 1.0}}

	engine := New(store, vs)
	result, err := engine.AssignToCluster(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, clusterID, result.ClusterID)
	assert.GreaterOrEqual(t, result.Score, assignmentThreshold)
}

func TestSignificanceDecaysWithAge(t *testing.T) {
	fresh := Significance(10, 5, 0)
	stale := Significance(10, 5, 40)
	assert.Greater(t, fresh, stale)
	assert.InDelta(t, fresh*0.1, stale, 1e-9)
}

func TestSignificanceFloorsDecayAtTenPercent(t *testing.T) {
	scoreAtCap := Significance(4, 2, 30)
	scoreBeyondCap := Significance(4, 2, 90)
	assert.Equal(t, scoreAtCap, scoreBeyondCap)
}

func TestTopPrimaryEntitiesOrdersByCountThenID(t *testing.T) {
	counts := map[int64]int{10: 2, 20: 3, 30: 2}
	got := topPrimaryEntities(counts, 2, 10)
	assert.Equal(t, []int64{20, 10, 30}, got)
}

func TestTopPrimaryEntitiesRespectsMinCountAndCap(t *testing.T) {
	counts := map[int64]int{1: 1, 2: 5, 3: 5, 4: 5}
	got := topPrimaryEntities(counts, 2, 2)
	assert.Len(t, got, 2)
	assert.NotContains(t, got, int64(1))
}

func TestFindMergeCandidatesGroupsTransitively(t *testing.T) {
	store := newFakeStore()
	vs := newFakeVectorStore()
	engine := New(store, vs)

	clusters := []core.Cluster{
		{ID: 1, PrimaryEntityIDs: []int64{1, 2}},
		{ID: 2, PrimaryEntityIDs: []int64{2, 3}},
		{ID: 3, PrimaryEntityIDs: []int64{3, 9}},
		{ID: 4, PrimaryEntityIDs: []int64{100}},
	}

	groups := engine.FindMergeCandidates(context.Background(), clusters, 0.4)
	require.Len(t, groups, 1)
	assert.Equal(t, []int64{1, 2, 3}, groups[0])
}

func TestOverlapRatio(t *testing.T) {
	assert.Equal(t, 1.0, overlapRatio([]int64{1, 2}, []int64{1, 2, 3}))
	assert.Equal(t, 0.0, overlapRatio([]int64{1}, []int64{2}))
	assert.Equal(t, 0.0, overlapRatio(nil, []int64{1}))
}

func TestMergeKeepsHighestArticleCountAsSurvivor(t *testing.T) {
	store := newFakeStore()
	vs := newFakeVectorStore()

	store.clusters[1] = &core.Cluster{ID: 1, Status: core.ClusterActive, ArticleCount: 2, PrimaryEntityIDs: []int64{1}}
	store.clusters[2] = &core.Cluster{ID: 2, Status: core.ClusterActive, ArticleCount: 5, PrimaryEntityIDs: []int64{1}}
	store.members[1] = []int64{10, 11}
	store.members[2] = []int64{20, 21, 22, 23, 24}
	for _, id := range append(store.members[1], store.members[2]...) {
		store.articles[id] = &core.Article{ID: id, FirstSeen: time.Now()}
		store.primaries[id] = []int64{1}
	}

	engine := New(store, vs)
	survivor, err := engine.Merge(context.Background(), []int64{1, 2}, "shared primary entity")
	require.NoError(t, err)
	assert.Equal(t, int64(2), survivor)
	assert.Equal(t, core.ClusterMerged, store.clusters[1].Status)
	assert.Len(t, store.members[2], 7)
}

func TestMergeRequiresAtLeastTwoClusters(t *testing.T) {
	store := newFakeStore()
	vs := newFakeVectorStore()
	engine := New(store, vs)
	_, err := engine.Merge(context.Background(), []int64{1}, "n/a")
	assert.Error(t, err)
}

type stubGenerator struct {
	text   string
	prompt string
}

func (g *stubGenerator) GenerateText(ctx context.Context, prompt string, temperature float64, thinking *llm.ThinkingConfig, noThink bool) string {
	g.prompt = prompt
	return g.text
}

func TestGenerateClusterSummaryIncrementsVersion(t *testing.T) {
	store := newFakeStore()
	vs := newFakeVectorStore()

	store.clusters[1] = &core.Cluster{ID: 1, Status: core.ClusterActive, SummaryVersion: 2, NeedsSummaryUpdate: true}
	store.members[1] = []int64{10}
	store.articles[10] = &core.Article{ID: 10, FirstSeen: time.Now(), TinySummary: "a quick recap"}

	engine := New(store, vs)
	gen := &stubGenerator{text: "A narrative summary of the unfolding story."}
	err := engine.GenerateClusterSummary(context.Background(), 1, gen)
	require.NoError(t, err)

	cluster := store.clusters[1]
	assert.Equal(t, 3, cluster.SummaryVersion)
	assert.False(t, cluster.NeedsSummaryUpdate)
	assert.Equal(t, "A narrative summary of the unfolding story.", cluster.Summary)
}

func TestGenerateClusterSummaryNoOpOnEmptyGeneration(t *testing.T) {
	store := newFakeStore()
	vs := newFakeVectorStore()
	store.clusters[1] = &core.Cluster{ID: 1, Status: core.ClusterActive, SummaryVersion: 1}
	store.members[1] = []int64{10}
	store.articles[10] = &core.Article{ID: 10, FirstSeen: time.Now()}

	engine := New(store, vs)
	gen := &stubGenerator{text: ""}
	err := engine.GenerateClusterSummary(context.Background(), 1, gen)
	require.NoError(t, err)
	assert.Equal(t, 1, store.clusters[1].SummaryVersion)
}
