package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/WessleyAI/roadwise/engine/roadctx"
	"github.com/WessleyAI/roadwise/pkg/ollama/ollamatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roadFile = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"LineString","coordinates":[[46.67,24.71],[46.68,24.72]]},
  "properties":{"distance":%d,"speedLimit":80,"segmentTimeResults":[{"timeSet":4,"sampleSize":10,"averageSpeed":60,"medianSpeed":58,"harmonicAverageSpeed":55,"averageTravelTime":72}]}}
]}`

func writeData(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "data")
	files := map[string]string{
		"Jan 2022/King Fahd Rd_1.geojson": strings.Replace(roadFile, "%d", "1000", 1),
		"Jan 2023/King Fahd Rd_1.geojson": strings.Replace(roadFile, "%d", "2000", 1),
		"Jan 2023/Olaya St_4.geojson":     strings.Replace(roadFile, "%d", "1500", 1),
	}
	for name, body := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScan(t *testing.T) {
	root := writeData(t)
	out, err := execute(t, "scan", "--data-dir", root)
	require.NoError(t, err)
	assert.Contains(t, out, "King Fahd Rd")
	assert.Contains(t, out, "3 records, 2 roads")

	out, err = execute(t, "scan", "--data-dir", root, "--json")
	require.NoError(t, err)
	var recs []domain.RoadVersionRecord
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	assert.Len(t, recs, 3)
}

func TestVersions(t *testing.T) {
	root := writeData(t)
	out, err := execute(t, "versions", "king fahd", "--data-dir", root)
	require.NoError(t, err)
	assert.Equal(t, "King Fahd Rd\tJan 2023\nKing Fahd Rd\tJan 2022\n", out)

	_, err = execute(t, "versions", "makkah", "--data-dir", root)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSummary(t *testing.T) {
	root := writeData(t)
	out, err := execute(t, "summary", "King Fahd Rd", "--data-dir", root)
	require.NoError(t, err)
	assert.Contains(t, out, "King Fahd Rd,Jan 2023")
	assert.NotContains(t, out, "Jan 2022")

	out, err = execute(t, "summary", "King Fahd Rd", "--data-dir", root, "--all-versions", "--json")
	require.NoError(t, err)
	var c roadctx.Context
	require.NoError(t, json.Unmarshal([]byte(out), &c))
	assert.Equal(t, []string{"King Fahd Rd,Jan 2023", "King Fahd Rd,Jan 2022"}, c.Keys)
	assert.InDelta(t, 2.0, c.Summaries["King Fahd Rd,Jan 2023"].TotalDistanceKM, 1e-9)

	out, err = execute(t, "summary", "Nowhere", "--data-dir", root)
	require.NoError(t, err)
	assert.Contains(t, out, "No traffic data")
}

func TestResolve(t *testing.T) {
	root := writeData(t)
	out, err := execute(t, "resolve", "traffic on olaya st", "--kind", "substring", "--data-dir", root)
	require.NoError(t, err)
	assert.Equal(t, "Olaya St\n", out)

	out, err = execute(t, "resolve", "king fahad road", "--kind", "fuzzy", "--data-dir", root)
	require.NoError(t, err)
	assert.Equal(t, "King Fahd Rd\n", out)

	_, err = execute(t, "resolve", "x", "--kind", "regex", "--data-dir", root)
	assert.Error(t, err)
}

func TestDiff(t *testing.T) {
	root := writeData(t)
	a := filepath.Join(root, "Jan 2022", "King Fahd Rd_1.geojson")
	b := filepath.Join(root, "Jan 2023", "King Fahd Rd_1.geojson")

	out, err := execute(t, "diff", a, b)
	require.NoError(t, err)
	assert.Contains(t, out, "distance: 1000 -> 2000")

	out, err = execute(t, "diff", a, a)
	require.NoError(t, err)
	assert.Contains(t, out, "No content differences")

	_, err = execute(t, "diff", a, filepath.Join(root, "missing.geojson"))
	assert.Error(t, err)
}

func TestAsk(t *testing.T) {
	srv := ollamatest.NewServer("Olaya St is flowing.")
	defer srv.Close()
	t.Setenv("ROADWISE_EMBED_URL", srv.URL)
	t.Setenv("ROADWISE_CHAT_URL", srv.URL)
	root := writeData(t)

	out, err := execute(t, "ask", "Is", "Olaya", "St", "busy?", "--data-dir", root)
	require.NoError(t, err)
	assert.Equal(t, "Olaya St is flowing.\n", out)
	assert.Contains(t, srv.System(), `"Olaya St"`)

	out, err = execute(t, "ask", "Is Olaya St busy?", "--stream", "--data-dir", root)
	require.NoError(t, err)
	assert.Equal(t, "Olaya St is flowing.\n", out)

	_, err = execute(t, "ask", "hi", "--data-dir", root)
	assert.ErrorIs(t, err, domain.ErrQuestionTooShort)
}
