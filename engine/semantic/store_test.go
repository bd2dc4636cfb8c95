package semantic

import (
	"context"
	"errors"
	"testing"

	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/WessleyAI/roadwise/engine/vecindex"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// --- Mocks ---

type mockPoints struct {
	upserted   *pb.UpsertPoints
	upsertErr  error
	deleted    *pb.DeletePoints
	deleteErr  error
	searched   *pb.SearchPoints
	searchResp *pb.SearchResponse
	searchErr  error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upserted = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}
func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deleted = in
	return &pb.PointsOperationResponse{}, m.deleteErr
}
func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searched = in
	return m.searchResp, m.searchErr
}

type mockCollections struct {
	names     []string
	listErr   error
	created   *pb.CreateCollection
	createErr error
	deleteErr error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	resp := &pb.ListCollectionsResponse{}
	for _, n := range m.names {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: n})
	}
	return resp, nil
}
func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in
	if m.createErr == nil {
		m.names = append(m.names, in.CollectionName)
	}
	return &pb.CollectionOperationResponse{Result: m.createErr == nil}, m.createErr
}
func (m *mockCollections) Delete(_ context.Context, _ *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return &pb.CollectionOperationResponse{Result: true}, m.deleteErr
}

var fixedEmbed = vecindex.EmbedderFunc(func(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
})

func scored(road string, score float32) *pb.ScoredPoint {
	return &pb.ScoredPoint{
		Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(road)}},
		Score: score,
		Payload: map[string]*pb.Value{
			"road": {Kind: &pb.Value_StringValue{StringValue: road}},
		},
	}
}

// --- Tests ---

func TestPointIDDeterministic(t *testing.T) {
	if PointID("King Fahd Rd") != PointID("King Fahd Rd") {
		t.Fatal("ids must be stable")
	}
	if PointID("King Fahd Rd") == PointID("Olaya St") {
		t.Fatal("ids must differ per road")
	}
}

func TestBuild_CreatesDotCollectionAndUpserts(t *testing.T) {
	pts, cols := &mockPoints{}, &mockCollections{}
	r := NewWithClients(pts, cols, "roads", nil)

	err := r.Build(context.Background(), []string{"King Fahd Rd", "Olaya St"}, fixedEmbed, vecindex.DefaultOptions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	params := cols.created.GetVectorsConfig().GetParams()
	if params.GetDistance() != pb.Distance_Dot || params.GetSize() != 3 {
		t.Fatalf("collection params = %v", params)
	}
	if n := len(pts.upserted.GetPoints()); n != 2 {
		t.Fatalf("upserted %d points", n)
	}
	p := pts.upserted.GetPoints()[1]
	if p.GetId().GetUuid() != PointID("Olaya St") || p.GetPayload()["road"].GetStringValue() != "Olaya St" {
		t.Fatalf("point = %v", p)
	}

	// Second build reuses the collection.
	cols.created = nil
	if err := r.Build(context.Background(), []string{"King Fahd Rd"}, fixedEmbed, vecindex.DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	if cols.created != nil {
		t.Fatal("collection should not be recreated")
	}
}

func TestBuild_EmptyVocabulary(t *testing.T) {
	r := NewWithClients(&mockPoints{}, &mockCollections{}, "roads", nil)
	err := r.Build(context.Background(), nil, fixedEmbed, vecindex.DefaultOptions())
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearch_BeforeBuild(t *testing.T) {
	r := NewWithClients(&mockPoints{}, &mockCollections{}, "roads", nil)
	_, err := r.Search(context.Background(), "fahd", fixedEmbed, 3, 0.6)
	if !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestSearch_ThresholdAndLimit(t *testing.T) {
	pts := &mockPoints{searchResp: &pb.SearchResponse{Result: []*pb.ScoredPoint{
		scored("King Fahd Rd", 0.93),
		scored("King Abdullah Rd", 0.71),
		scored("Olaya St", 0.42),
	}}}
	r := NewWithClients(pts, &mockCollections{names: []string{"roads"}}, "roads", nil)
	if ok, err := r.Attach(context.Background()); err != nil || !ok {
		t.Fatalf("Attach = %v, %v", ok, err)
	}

	got, err := r.Search(context.Background(), "king fahd", fixedEmbed, 3, 0.6)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0].Road != "King Fahd Rd" || got[1].Road != "King Abdullah Rd" {
		t.Fatalf("got %+v", got)
	}
	if pts.searched.GetLimit() != 3 || pts.searched.GetScoreThreshold() != 0.6 {
		t.Fatalf("request = %v", pts.searched)
	}

	got, err = r.Search(context.Background(), "king fahd", fixedEmbed, 1, 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("topK=1 got %+v, %v", got, err)
	}
}

func TestSearch_Errors(t *testing.T) {
	pts := &mockPoints{searchErr: errors.New("unavailable")}
	r := NewWithClients(pts, &mockCollections{names: []string{"roads"}}, "roads", nil)
	r.Attach(context.Background())

	_, err := r.Search(context.Background(), "x", fixedEmbed, 3, 0.6)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	failing := vecindex.EmbedderFunc(func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("embed down")
	})
	_, err = r.Search(context.Background(), "x", failing, 3, 0.6)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestAttach_Missing(t *testing.T) {
	r := NewWithClients(&mockPoints{}, &mockCollections{names: []string{"other"}}, "roads", nil)
	ok, err := r.Attach(context.Background())
	if err != nil || ok {
		t.Fatalf("Attach = %v, %v", ok, err)
	}
	_, err = r.Search(context.Background(), "x", fixedEmbed, 3, 0.6)
	if !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestRemoveAndDelete(t *testing.T) {
	pts := &mockPoints{}
	cols := &mockCollections{names: []string{"roads"}}
	r := NewWithClients(pts, cols, "roads", nil)
	r.Attach(context.Background())

	if err := r.Remove(context.Background(), []string{"Olaya St"}); err != nil {
		t.Fatal(err)
	}
	ids := pts.deleted.GetPoints().GetPoints().GetIds()
	if len(ids) != 1 || ids[0].GetUuid() != PointID("Olaya St") {
		t.Fatalf("deleted ids = %v", ids)
	}

	if err := r.DeleteCollection(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Search(context.Background(), "x", fixedEmbed, 3, 0.6); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized after delete, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureCollection_Errors(t *testing.T) {
	r := NewWithClients(&mockPoints{}, &mockCollections{listErr: errors.New("rpc fail")}, "roads", nil)
	if err := r.EnsureCollection(context.Background(), 4); err == nil {
		t.Fatal("expected error")
	}
	r = NewWithClients(&mockPoints{}, &mockCollections{createErr: errors.New("create fail")}, "roads", nil)
	if err := r.EnsureCollection(context.Background(), 4); err == nil {
		t.Fatal("expected error")
	}
}
