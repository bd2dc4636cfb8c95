// Package geojson reads road version files (GeoJSON FeatureCollections) into
// tables of segment rows. Features with a null geometry are dropped on load.
package geojson

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/WessleyAI/roadwise/engine/domain"
	ogeojson "github.com/paulmach/orb/geojson"
)

// Property names read from each feature.
const (
	PropDistance    = "distance"
	PropSpeedLimit  = "speedLimit"
	PropTimeResults = "segmentTimeResults"
)

// Table is the cleaned content of one road version file.
type Table struct {
	Path     string
	Features []*ogeojson.Feature
}

// Parse decodes a FeatureCollection and drops null-geometry features.
func Parse(data []byte) (*Table, error) {
	fc, err := ogeojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("geojson: decode: %w", err)
	}
	t := &Table{Features: make([]*ogeojson.Feature, 0, len(fc.Features))}
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		t.Features = append(t.Features, f)
	}
	return t, nil
}

// ReadFile loads and parses the file at path.
func ReadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geojson: read %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, path)
	}
	t.Path = path
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Features) }

// Columns returns the sorted union of property names.
func (t *Table) Columns() []string {
	seen := make(map[string]struct{})
	for _, f := range t.Features {
		for k := range f.Properties {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Rows converts features into segment rows.
func (t *Table) Rows() []domain.SegmentRow {
	rows := make([]domain.SegmentRow, len(t.Features))
	for i, f := range t.Features {
		rows[i] = domain.SegmentRow{SpeedLimit: optionalFloat(f.Properties, PropSpeedLimit)}
		if d := optionalFloat(f.Properties, PropDistance); d != nil {
			rows[i].Distance = *d
		}
		if v, ok := f.Properties[PropTimeResults]; ok {
			// Decoded back to JSON so string-encoded lists keep their quoting.
			if raw, err := json.Marshal(v); err == nil {
				rows[i].Results = domain.RawTimeResults(raw)
			}
		}
	}
	return rows
}

func optionalFloat(props ogeojson.Properties, key string) *float64 {
	f, ok := props[key].(float64)
	if !ok {
		return nil
	}
	return &f
}

// Loader reads tables from disk. It satisfies roadctx.TableLoader.
type Loader struct{}

// LoadRows reads the file at path and returns its rows.
func (Loader) LoadRows(ctx context.Context, path string) ([]domain.SegmentRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return t.Rows(), nil
}
