// Package semantic owns all Qdrant operations: chunk upsert, filtered
// similarity search, fetch by id, usage-count updates, and metadata
// listing via the scroll API.
package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// chunkNamespace seeds the deterministic chunk-id → point-id mapping.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("citer:chunk"))

// PointID derives the Qdrant point UUID for a chunk id. Qdrant only
// accepts UUID or integer point ids, so caller-supplied ids live in the
// payload and this mapping keeps upsert idempotent per id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(chunkID)).String()
}

// pointsAPI is the slice of pb.PointsClient this store uses. Narrowed so
// tests can substitute fakes.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error)
	SetPayload(ctx context.Context, in *pb.SetPayloadPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
}

// collectionsAPI is the slice of pb.CollectionsClient this store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is the sole owner of the Qdrant connection.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	dims        int
}

// New creates a VectorStore connected to Qdrant at the given gRPC
// address. All vectors are adjusted to dims before storage or query.
func New(addr, collection string, dims int) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dims:        dims,
	}, nil
}

// NewWithClients builds a store over pre-constructed clients. Used by
// tests.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string, dims int) *VectorStore {
	return &VectorStore{
		points:      points,
		collections: collections,
		collection:  collection,
		dims:        dims,
	}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// Dims returns the collection's fixed vector dimensionality.
func (v *VectorStore) Dims() int { return v.dims }

// EnsureCollection creates the collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(v.dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// Upsert stores embedded chunks. Empty input is a no-op. Write-or-replace
// by point id, so re-upserting an id is idempotent.
func (v *VectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: AdjustDimension(r.Embedding, v.dims)},
				},
			},
			Payload: toValues(r.Payload),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// Query performs k-NN similarity search with the filter pushed into
// Qdrant as native conditions. A zero or empty vector still executes; it
// is adjusted to the collection dimension like any other input.
func (v *VectorStore) Query(ctx context.Context, embedding []float32, topK int, f Filter) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         AdjustDimension(embedding, v.dims),
		Limit:          uint64(topK),
		WithPayload:    withPayload(),
	}
	if cond := f.conditions(); len(cond) > 0 {
		req.Filter = &pb.Filter{Must: cond}
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		meta := fromValues(r.GetPayload())
		results[i] = SearchResult{
			ID:    MetaString(meta, "id"),
			Score: r.GetScore(),
			Meta:  meta,
		}
	}
	return results, nil
}

// Fetch returns the stored metadata for the requested chunk ids, keyed by
// chunk id. Absent ids are simply missing from the result, never errors.
func (v *VectorStore) Fetch(ctx context.Context, ids []string) (map[string]map[string]any, error) {
	if len(ids) == 0 {
		return map[string]map[string]any{}, nil
	}

	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(id)}}
	}

	resp, err := v.points.Get(ctx, &pb.GetPoints{
		CollectionName: v.collection,
		Ids:            pointIDs,
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: fetch %d ids: %w", len(ids), err)
	}

	out := make(map[string]map[string]any, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		meta := fromValues(p.GetPayload())
		if id := MetaString(meta, "id"); id != "" {
			out[id] = meta
		}
	}
	return out, nil
}

// BumpUsage sets the usage counter on a single chunk. Partial payload
// set: no other metadata is touched.
func (v *VectorStore) BumpUsage(ctx context.Context, chunkID string, count int) error {
	wait := true
	_, err := v.points.SetPayload(ctx, &pb.SetPayloadPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Payload: map[string]*pb.Value{
			"usage_count": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(count)}},
		},
		PointsSelector: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(chunkID)}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: set usage_count on %s: %w", chunkID, err)
	}
	return nil
}

// List enumerates stored chunk metadata through the scroll API, capped at
// limit records, with an optional filter.
func (v *VectorStore) List(ctx context.Context, f Filter, limit int) ([]map[string]any, error) {
	lim := uint32(limit)
	req := &pb.ScrollPoints{
		CollectionName: v.collection,
		Limit:          &lim,
		WithPayload:    withPayload(),
	}
	if cond := f.conditions(); len(cond) > 0 {
		req.Filter = &pb.Filter{Must: cond}
	}

	resp, err := v.points.Scroll(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: scroll: %w", err)
	}

	out := make([]map[string]any, len(resp.GetResult()))
	for i, p := range resp.GetResult() {
		out[i] = fromValues(p.GetPayload())
	}
	return out, nil
}

// conditions translates a Filter into Qdrant match conditions. One
// condition per requested attribute gives subset semantics; the journal
// match goes through the lowercased shadow key.
func (f Filter) conditions() []*pb.Condition {
	var must []*pb.Condition
	if f.Journal != "" {
		must = append(must, fieldMatch(journalShadowKey, strings.ToLower(f.Journal)))
	}
	if f.PublishYear != "" {
		must = append(must, fieldMatch("publish_year", f.PublishYear))
	}
	for _, attr := range f.Attributes {
		must = append(must, fieldMatch("attributes", attr))
	}
	return must
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func withPayload() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{
		SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
	}
}
