package resolve

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/WessleyAI/roadwise/engine/vecindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockCatalog struct {
	recs []domain.RoadVersionRecord
}

func newMockCatalog(names ...string) *mockCatalog {
	c := &mockCatalog{}
	for _, n := range names {
		c.recs = append(c.recs,
			domain.RoadVersionRecord{Road: n, Version: "Jan 2022", Path: "data/Jan 2022/" + n + ".geojson"},
			domain.RoadVersionRecord{Road: n, Version: "Jan 2023", Path: "data/Jan 2023/" + n + ".geojson"},
		)
	}
	return c
}

func (c *mockCatalog) RoadNames() []string {
	var out []string
	seen := map[string]bool{}
	for _, r := range c.recs {
		if !seen[r.Road] {
			seen[r.Road] = true
			out = append(out, r.Road)
		}
	}
	return out
}

func (c *mockCatalog) FindVersions(q string) []domain.RoadVersionRecord {
	var out []domain.RoadVersionRecord
	for _, r := range c.recs {
		if strings.Contains(strings.ToLower(r.Road), strings.ToLower(q)) {
			out = append(out, r)
		}
	}
	return out
}

type mockSearcher struct {
	matches  []vecindex.Match
	err      error
	gotTopK  int
	gotQuery string
}

func (m *mockSearcher) Search(_ context.Context, q string, _ vecindex.Embedder, topK int, _ float32) ([]vecindex.Match, error) {
	m.gotQuery, m.gotTopK = q, topK
	return m.matches, m.err
}

var noEmbed = vecindex.EmbedderFunc(func(context.Context, []string) ([][]float32, error) { return nil, nil })

func roads() *mockCatalog {
	return newMockCatalog("King Fahd Rd", "Olaya St", "Abu-Baker Al-Siddiq Rd NB", "Makkah Hwy")
}

// --- tests ---

func TestSubstring(t *testing.T) {
	r := &Substring{Catalog: roads()}
	tests := []struct {
		query string
		want  []string
	}{
		{"How is King Fahd Road northbound?", []string{"King Fahd Rd"}},
		{"compare olaya street with king fahd rd", []string{"King Fahd Rd", "Olaya St"}},
		{"Abu-Baker Al-Siddiq Road northbound speeds", []string{"Abu-Baker Al-Siddiq Rd NB"}},
		{"speeds on abu baker al siddiq rd nb", []string{"Abu-Baker Al-Siddiq Rd NB"}},
		{"what is the weather", nil},
	}
	for _, tt := range tests {
		got, err := r.Resolve(context.Background(), tt.query)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.query)
	}
}

func TestFuzzy(t *testing.T) {
	r := &Fuzzy{Vocabulary: roads()}
	tests := []struct {
		query string
		want  []string
	}{
		{"traffic on king fahad road", []string{"King Fahd Rd"}},
		{"olaya", []string{"Olaya St"}},
		{"king fahd rd and olaya st", []string{"King Fahd Rd"}},
		{"completely unrelated question", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got, err := r.Resolve(context.Background(), tt.query)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.query)
		assert.LessOrEqual(t, len(got), 1)
	}

	swapped := &Fuzzy{Vocabulary: newMockCatalog("Test Rd", "Olaya St")}
	got, err := swapped.Resolve(context.Background(), "Tset Rd")
	require.NoError(t, err)
	assert.Equal(t, []string{"Test Rd"}, got)

	strict := &Fuzzy{Vocabulary: roads(), Cutoff: 0.95}
	got, err = strict.Resolve(context.Background(), "traffic on king fahad road")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("rd", "rd"))
	assert.InDelta(t, 0.75, Similarity("abcd", "abce"), 1e-12)
	assert.Equal(t, 0.0, Similarity("abc", ""))
	assert.InDelta(t, 1-3.0/7.0, Similarity("kitten", "sitting"), 1e-12)
	// Distances and lengths count runes, not bytes.
	assert.InDelta(t, 0.75, Similarity("café", "cafe"), 1e-12)
}

func TestEmbedding(t *testing.T) {
	s := &mockSearcher{matches: []vecindex.Match{{Road: "King Fahd Rd", Score: 0.9}, {Road: "Olaya St", Score: 0.7}}}
	r := &Embedding{Index: s, Embedder: noEmbed, Threshold: 0.6}
	got, err := r.Resolve(context.Background(), "king fahd")
	require.NoError(t, err)
	assert.Equal(t, []string{"King Fahd Rd", "Olaya St"}, got)
	assert.Equal(t, vecindex.DefaultTopK, s.gotTopK)
	assert.Equal(t, "king fahd", s.gotQuery)
}

func TestFallback(t *testing.T) {
	down := &mockSearcher{err: domain.Upstream("embed query", errors.New("connection refused"))}
	r, err := New(KindEmbedding, Deps{Catalog: roads(), Index: down, Embedder: noEmbed, TopK: 3, Threshold: 0.6})
	require.NoError(t, err)
	got, err := r.Resolve(context.Background(), "olaya street please")
	require.NoError(t, err)
	assert.Equal(t, []string{"Olaya St"}, got)

	// Non-upstream errors are not masked.
	broken := &mockSearcher{err: domain.ErrNotInitialized}
	r, err = New(KindEmbedding, Deps{Catalog: roads(), Index: broken, Embedder: noEmbed})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "olaya street")
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestNew(t *testing.T) {
	r, err := New(KindSubstring, Deps{Catalog: roads()})
	require.NoError(t, err)
	assert.IsType(t, &Substring{}, r)

	r, err = New(KindFuzzy, Deps{Catalog: roads(), FuzzyCutoff: 0.7})
	require.NoError(t, err)
	assert.Equal(t, 0.7, r.(*Fuzzy).Cutoff)

	r, err = New(KindEmbedding, Deps{Index: &mockSearcher{}, Embedder: noEmbed})
	require.NoError(t, err)
	assert.IsType(t, &Embedding{}, r)

	_, err = New(KindEmbedding, Deps{Catalog: roads()})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = New("regex", Deps{Catalog: roads()})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = New(KindFuzzy, Deps{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
