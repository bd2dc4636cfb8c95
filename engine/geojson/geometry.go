package geojson

import (
	"fmt"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// Lines flattens g into s2 polylines: a Point becomes a one-vertex line,
// polygon rings become closed lines and collections are concatenated.
func Lines(g orb.Geometry) ([]*s2.Polyline, error) {
	switch g := g.(type) {
	case orb.Point:
		return []*s2.Polyline{polyline(g)}, nil
	case orb.MultiPoint:
		return []*s2.Polyline{polyline(g...)}, nil
	case orb.LineString:
		return []*s2.Polyline{polyline(g...)}, nil
	case orb.Ring:
		return []*s2.Polyline{polyline(g...)}, nil
	case orb.MultiLineString:
		out := make([]*s2.Polyline, len(g))
		for i, ls := range g {
			out[i] = polyline(ls...)
		}
		return out, nil
	case orb.Polygon:
		out := make([]*s2.Polyline, len(g))
		for i, r := range g {
			out[i] = polyline(r...)
		}
		return out, nil
	case orb.MultiPolygon:
		var out []*s2.Polyline
		for _, p := range g {
			for _, r := range p {
				out = append(out, polyline(r...))
			}
		}
		return out, nil
	case orb.Collection:
		var out []*s2.Polyline
		for _, sub := range g {
			ls, err := Lines(sub)
			if err != nil {
				return nil, err
			}
			out = append(out, ls...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("geojson: unsupported geometry %T", g)
	}
}

// polyline converts [lon, lat] points.
func polyline(pts ...orb.Point) *s2.Polyline {
	lls := make([]s2.LatLng, len(pts))
	for i, p := range pts {
		lls[i] = s2.LatLngFromDegrees(p.Lat(), p.Lon())
	}
	return s2.PolylineFromLatLngs(lls)
}

// Equal reports whether two geometries have the same GeoJSON type and
// vertex sequences, within s2's standard margin.
func Equal(a, b orb.Geometry) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.GeoJSONType() != b.GeoJSONType() {
		return false
	}
	la, errA := Lines(a)
	lb, errB := Lines(b)
	if errA != nil || errB != nil {
		return errA != nil && errB != nil && orb.Equal(a, b)
	}
	if len(la) != len(lb) {
		return false
	}
	for i := range la {
		if !la[i].ApproxEqual(lb[i]) {
			return false
		}
	}
	return true
}
