package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/jeremyandrews/argus/internal/core"
)

// QdrantStore implements VectorStore against a Qdrant collection reached
// over gRPC.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore dials host:port over gRPC and returns a store bound to
// collection.
func NewQdrantStore(host string, port int, collection string, apiKey string) (*QdrantStore, error) {
	cfg := &qdrant.Config{
		Host: host,
		Port: port,
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("dial qdrant: %w", err)
	}
	return &QdrantStore{client: client, collection: collection}, nil
}

// EnsureCollection creates the collection sized for core.VectorDimensions
// with cosine distance if it does not already exist.
func (q *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     core.VectorDimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// Upsert stores articleID's vector and payload.
func (q *QdrantStore) Upsert(ctx context.Context, articleID int64, vector []float32, payload core.VectorPayload) error {
	if len(vector) != core.VectorDimensions {
		return fmt.Errorf("vector has %d dimensions, want %d", len(vector), core.VectorDimensions)
	}

	payloadMap, err := payloadToMap(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDNum(uint64(articleID)),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(payloadMap),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert point: %w", err)
	}
	return nil
}

// Get returns the stored point for articleID, or nil if absent.
func (q *QdrantStore) Get(ctx context.Context, articleID int64) (*Point, error) {
	resp, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDNum(uint64(articleID))},
		WithVectors:    qdrant.NewWithVectors(true),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get point: %w", err)
	}
	if len(resp) == 0 {
		return nil, nil
	}
	return pointFromRetrieved(articleID, resp[0])
}

// Delete removes the point for articleID, if present.
func (q *QdrantStore) Delete(ctx context.Context, articleID int64) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: qdrant.NewPointsSelector(
			qdrant.NewIDNum(uint64(articleID)),
		),
	})
	if err != nil {
		return fmt.Errorf("delete point: %w", err)
	}
	return nil
}

// Search returns the nearest points to query.Vector, filtered by shared
// primary entity (spec §4.8). entity_ids is a hard Qdrant filter; the
// ±30-day pub_date window is a post-filter below since pub_date is stored
// as an ISO string rather than a numeric field Qdrant can range-match.
func (q *QdrantStore) Search(ctx context.Context, query SearchQuery) ([]SearchResult, error) {
	topK := uint64(query.TopK)
	if topK == 0 {
		topK = 50
	}

	req := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(toFloat64(query.Vector)...),
		Limit:          &topK,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(query.EntityIDs) > 0 {
		ints := make([]int64, len(query.EntityIDs))
		copy(ints, query.EntityIDs)
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				{
					ConditionOneOf: &qdrant.Condition_Field{
						Field: &qdrant.FieldCondition{
							Key: "entity_ids",
							Match: &qdrant.Match{
								MatchValue: &qdrant.Match_Integers{
									Integers: &qdrant.RepeatedIntegers{Integers: ints},
								},
							},
						},
					},
				},
			},
		}
	}

	resp, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}

	out := make([]SearchResult, 0, len(resp))
	for _, point := range resp {
		articleID, err := idToInt64(point.Id)
		if err != nil {
			return nil, err
		}
		payload, err := payloadFromMap(point.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		if query.PubDateWindow != nil && !withinWindow(payload.PubDate, *query.PubDateWindow) {
			continue
		}
		out = append(out, SearchResult{
			ArticleID: articleID,
			Score:     float64(point.Score),
			Payload:   payload,
		})
	}
	return out, nil
}

// withinWindow reports whether pubDate (an ISO-8601 date, lexically
// comparable) falls within [window.From, window.To]. A missing pubDate
// never matches a bounded window.
func withinWindow(pubDate *string, window PubDateWindow) bool {
	if pubDate == nil {
		return false
	}
	return *pubDate >= window.From && *pubDate <= window.To
}

func payloadToMap(p core.VectorPayload) (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func payloadFromMap(values map[string]*qdrant.Value) (core.VectorPayload, error) {
	var p core.VectorPayload
	m := make(map[string]any, len(values))
	for k, v := range values {
		m[k] = valueToGo(v)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	return p, nil
}

// valueToGo unwraps one protobuf-style qdrant.Value into its native Go
// representation, recursing into lists.
func valueToGo(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		out := make([]any, len(kind.ListValue.Values))
		for i, item := range kind.ListValue.Values {
			out[i] = valueToGo(item)
		}
		return out
	case *qdrant.Value_NullValue:
		return nil
	default:
		return nil
	}
}

func pointFromRetrieved(articleID int64, p *qdrant.RetrievedPoint) (*Point, error) {
	payload, err := payloadFromMap(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	var vec []float32
	if vo, ok := p.GetVectors().GetVectorsOptions().(*qdrant.VectorsOutput_Vector); ok {
		vec = vo.Vector.Data
	}
	return &Point{ArticleID: articleID, Vector: vec, Payload: payload}, nil
}

func idToInt64(id *qdrant.PointId) (int64, error) {
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Num:
		return int64(v.Num), nil
	default:
		return 0, fmt.Errorf("unexpected point id type %T", v)
	}
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
