// Package semantic keeps the road-name embedding index in Qdrant. RoadIndex
// offers the same build and search contract as vecindex.Index for
// deployments that share one vector store between API replicas.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/WessleyAI/roadwise/engine/vecindex"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// pointsAPI is the subset of pb.PointsClient RoadIndex calls.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient RoadIndex calls.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// roadNamespace seeds the UUIDv5 point ids so a road name always maps to
// the same point.
var roadNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("roadwise:road-name"))

// PointID returns the Qdrant point id of a road name.
func PointID(road string) string {
	return uuid.NewSHA1(roadNamespace, []byte(road)).String()
}

const payloadRoad = "road"

// RoadIndex is the sole owner of the Qdrant road-name collection.
type RoadIndex struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	built       atomic.Bool
	logger      *slog.Logger
}

// New creates a RoadIndex connected to Qdrant at the given gRPC address.
func New(addr, collection string, logger *slog.Logger) (*RoadIndex, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	r := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, logger)
	r.conn = conn
	return r, nil
}

// NewWithClients creates a RoadIndex over existing clients.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string, logger *slog.Logger) *RoadIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoadIndex{points: points, collections: collections, collection: collection, logger: logger}
}

// Close closes the underlying gRPC connection.
func (r *RoadIndex) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// Exists reports whether the collection is present.
func (r *RoadIndex) Exists(ctx context.Context) (bool, error) {
	list, err := r.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("semantic: list collections: %w", domain.Upstream("qdrant list", err))
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == r.collection {
			return true, nil
		}
	}
	return false, nil
}

// EnsureCollection creates a dot-product collection of dim if missing.
func (r *RoadIndex) EnsureCollection(ctx context.Context, dim int) error {
	ok, err := r.Exists(ctx)
	if err != nil || ok {
		return err
	}
	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dim),
					Distance: pb.Distance_Dot,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", r.collection, domain.Upstream("qdrant create", err))
	}
	return nil
}

// DeleteCollection drops the collection and marks the index unbuilt.
func (r *RoadIndex) DeleteCollection(ctx context.Context) error {
	r.built.Store(false)
	_, err := r.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: r.collection})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", r.collection, domain.Upstream("qdrant delete", err))
	}
	return nil
}

// Build embeds roads with the same batching as vecindex.Build and upserts
// one point per name. Rebuilding with the same names overwrites points in
// place.
func (r *RoadIndex) Build(ctx context.Context, roads []string, emb vecindex.Embedder, opts vecindex.Options) error {
	idx, err := vecindex.Build(ctx, roads, emb, opts)
	if err != nil {
		return fmt.Errorf("semantic: %w", err)
	}
	return r.Load(ctx, idx.Entries())
}

// Load upserts precomputed entries.
func (r *RoadIndex) Load(ctx context.Context, entries []domain.EmbeddingIndexEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("semantic: load: empty vocabulary: %w", domain.ErrInvalidInput)
	}
	if err := r.EnsureCollection(ctx, len(entries[0].Vector)); err != nil {
		return err
	}

	points := make([]*pb.PointStruct, len(entries))
	for i, e := range entries {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(e.Road)}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: e.Vector}},
			},
			Payload: map[string]*pb.Value{
				payloadRoad: {Kind: &pb.Value_StringValue{StringValue: e.Road}},
			},
		}
	}
	wait := true
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(points), domain.Upstream("qdrant upsert", err))
	}
	r.built.Store(true)
	r.logger.Info("semantic index loaded", "collection", r.collection, "roads", len(points))
	return nil
}

// Attach marks the index usable when the collection already exists, so a
// restarted process can search without re-embedding.
func (r *RoadIndex) Attach(ctx context.Context) (bool, error) {
	ok, err := r.Exists(ctx)
	if err != nil {
		return false, err
	}
	r.built.Store(ok)
	return ok, nil
}

// Remove deletes the points of the given road names.
func (r *RoadIndex) Remove(ctx context.Context, roads []string) error {
	if len(roads) == 0 {
		return nil
	}
	ids := make([]*pb.PointId, len(roads))
	for i, name := range roads {
		ids[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(name)}}
	}
	wait := true
	_, err := r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{Points: &pb.PointsIdsList{Ids: ids}},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete %d points: %w", len(ids), domain.Upstream("qdrant delete", err))
	}
	return nil
}

// Search embeds query and returns up to topK road names scoring at least
// threshold, highest first. It fails with domain.ErrNotInitialized before
// Build, Load or a successful Attach.
func (r *RoadIndex) Search(ctx context.Context, query string, emb vecindex.Embedder, topK int, threshold float32) ([]vecindex.Match, error) {
	if r == nil || !r.built.Load() {
		return nil, fmt.Errorf("semantic: search: %w", domain.ErrNotInitialized)
	}
	if topK < 1 {
		return nil, fmt.Errorf("semantic: search: top_k %d: %w", topK, domain.ErrInvalidInput)
	}
	vecs, err := emb.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", domain.Upstream("embed query", err))
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("semantic: search: %w", domain.Upstream("embed query", fmt.Errorf("got %d vectors", len(vecs))))
	}

	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vecs[0],
		Limit:          uint64(topK),
		ScoreThreshold: &threshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", domain.Upstream("qdrant search", err))
	}

	out := make([]vecindex.Match, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		if p.GetScore() < threshold {
			continue
		}
		road := p.GetPayload()[payloadRoad].GetStringValue()
		if road == "" {
			continue
		}
		out = append(out, vecindex.Match{Road: road, Score: p.GetScore()})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}
