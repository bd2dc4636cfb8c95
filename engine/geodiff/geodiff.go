// Package geodiff compares two versions of a road file row by row.
package geodiff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/WessleyAI/roadwise/engine/geojson"
	"github.com/google/go-cmp/cmp"
)

// CellDiff is one differing property value. A missing or null value is nil.
type CellDiff struct {
	Column string          `json:"column"`
	Old    json.RawMessage `json:"old"`
	New    json.RawMessage `json:"new"`
}

// RowDiff lists the differing columns of one row.
type RowDiff struct {
	Row   int        `json:"row"`
	Cells []CellDiff `json:"cells"`
}

// Report is the result of Compare.
type Report struct {
	Columns    []string  `json:"columns"`
	RowsA      int       `json:"rows_a"`
	RowsB      int       `json:"rows_b"`
	Compared   int       `json:"compared"`
	Rows       []RowDiff `json:"rows,omitempty"`
	Geometries []int     `json:"geometry_rows,omitempty"`
}

// Empty reports whether neither content nor geometry differs.
func (r Report) Empty() bool { return len(r.Rows) == 0 && len(r.Geometries) == 0 }

// Compare diffs the property columns both tables share, then geometries.
// Only the first min(a.Len(), b.Len()) rows are compared.
func Compare(a, b *geojson.Table) Report {
	r := Report{
		Columns: commonColumns(a.Columns(), b.Columns()),
		RowsA:   a.Len(),
		RowsB:   b.Len(),
	}
	r.Compared = min(r.RowsA, r.RowsB)

	for i := 0; i < r.Compared; i++ {
		fa, fb := a.Features[i], b.Features[i]
		var cells []CellDiff
		for _, col := range r.Columns {
			va, vb := fa.Properties[col], fb.Properties[col]
			if !cmp.Equal(va, vb) {
				cells = append(cells, CellDiff{Column: col, Old: value(va), New: value(vb)})
			}
		}
		if len(cells) > 0 {
			r.Rows = append(r.Rows, RowDiff{Row: i, Cells: cells})
		}
		if !geojson.Equal(fa.Geometry, fb.Geometry) {
			r.Geometries = append(r.Geometries, i)
		}
	}
	return r
}

// CompareFiles reads both files and compares them.
func CompareFiles(pathA, pathB string) (Report, error) {
	a, err := geojson.ReadFile(pathA)
	if err != nil {
		return Report{}, fmt.Errorf("geodiff: %w", err)
	}
	b, err := geojson.ReadFile(pathB)
	if err != nil {
		return Report{}, fmt.Errorf("geodiff: %w", err)
	}
	return Compare(a, b), nil
}

func commonColumns(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, c := range b {
		inB[c] = true
	}
	var out []string
	for _, c := range a {
		if inB[c] && c != "geometry" {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// value re-encodes a decoded property. A missing or null value is nil.
func value(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	// Decoded JSON values always re-encode.
	b, _ := json.Marshal(v)
	return b
}

// Format renders the report for terminals.
func (r Report) Format() string {
	var b strings.Builder
	if len(r.Rows) == 0 {
		b.WriteString("✅ No content differences found.\n")
	} else {
		fmt.Fprintf(&b, "🔍 Content differences found in %d row(s):\n\n", len(r.Rows))
		for _, row := range r.Rows {
			fmt.Fprintf(&b, "--- Row %d ---\n", row.Row)
			for _, c := range row.Cells {
				fmt.Fprintf(&b, "%s: %s -> %s\n", c.Column, show(c.Old), show(c.New))
			}
			b.WriteString("\n")
		}
	}
	if r.RowsA != r.RowsB {
		fmt.Fprintf(&b, "Row counts differ (%d vs %d); compared the first %d.\n", r.RowsA, r.RowsB, r.Compared)
	}
	if len(r.Geometries) > 0 {
		fmt.Fprintf(&b, "\n🗺️ Geometry differences at rows: %v\n", r.Geometries)
	} else {
		b.WriteString("\n✅ No geometry differences found.\n")
	}
	return b.String()
}

func show(v json.RawMessage) string {
	if v == nil {
		return "null"
	}
	return string(v)
}
