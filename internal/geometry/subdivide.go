// Package geometry splits oversized flood geometries into parts small enough
// to serialize into a single spatial query.
package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/geojson"
)

// RecursionLimit caps subdivision depth. It is a correctness backstop against
// geometries that keep producing parts wider than the threshold, e.g. slivers
// lying exactly on a split line.
const RecursionLimit = 250

// Subdivider prepares the geometries of a flood area document for spatial
// querying. Geometries whose serialized form fits the query budget pass
// through unmodified; larger ones are subdivided until every emitted part's
// bounding box is no wider than Threshold on either axis.
type Subdivider struct {
	// Threshold is the maximum bounding-box dimension, in coordinate units,
	// of a subdivided part.
	Threshold float64

	// QueryBudget is the serialized size available to one geometry inside a
	// spatial query: the store's query character limit minus the length of
	// the query template.
	QueryBudget int
}

// FromFeatureCollection extracts every feature geometry from a flood area
// document, subdividing the ones too large to query whole. Subdivided output
// contains only simple polygons.
func (s Subdivider) FromFeatureCollection(fc *geojson.FeatureCollection) ([]orb.Geometry, error) {
	if fc == nil {
		return nil, errors.New("nil feature collection")
	}

	var out []orb.Geometry
	for i, feature := range fc.Features {
		if feature == nil || feature.Geometry == nil {
			return nil, fmt.Errorf("feature %d has no geometry", i)
		}

		serialized, err := json.Marshal(geojson.NewGeometry(feature.Geometry))
		if err != nil {
			return nil, fmt.Errorf("serialize feature %d geometry: %w", i, err)
		}
		if len(serialized) < s.QueryBudget {
			out = append(out, feature.Geometry)
			continue
		}

		// Subdivision works on simple polygons; multi-geometries are split
		// into their parts first and non-areal parts are discarded.
		for _, p := range simplePolygons(feature.Geometry) {
			out = append(out, subdividePolygon(p, s.Threshold)...)
		}
	}
	return out, nil
}

// subdividePolygon bisects p along the longer bounding-box axis until every
// part fits the threshold or the depth cap is hit, then flattens any
// remaining multipolygons into simple polygons.
func subdividePolygon(p orb.Polygon, threshold float64) []orb.Geometry {
	type workItem struct {
		geom  orb.Geometry // always Polygon or MultiPolygon
		depth int
	}

	var leaves []orb.Geometry
	stack := []workItem{{geom: p, depth: 0}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		bound := item.geom.Bound()
		width := bound.Max[0] - bound.Min[0]
		height := bound.Max[1] - bound.Min[1]
		if math.Max(width, height) <= threshold || item.depth == RecursionLimit {
			leaves = append(leaves, item.geom)
			continue
		}

		var sideA, sideB orb.Bound
		if height >= width {
			mid := bound.Min[1] + height/2
			sideA = orb.Bound{Min: bound.Min, Max: orb.Point{bound.Max[0], mid}}
			sideB = orb.Bound{Min: orb.Point{bound.Min[0], mid}, Max: bound.Max}
		} else {
			mid := bound.Min[0] + width/2
			sideA = orb.Bound{Min: bound.Min, Max: orb.Point{mid, bound.Max[1]}}
			sideB = orb.Bound{Min: orb.Point{mid, bound.Min[1]}, Max: bound.Max}
		}

		for _, side := range []orb.Bound{sideA, sideB} {
			clipped := clip.Geometry(side, orb.Clone(item.geom))
			if clipped == nil {
				continue
			}
			for _, part := range polygonParts(clipped) {
				stack = append(stack, workItem{geom: part, depth: item.depth + 1})
			}
		}
	}

	// Convert multipart leaves into single parts.
	final := make([]orb.Geometry, 0, len(leaves))
	for _, leaf := range leaves {
		if mp, ok := leaf.(orb.MultiPolygon); ok {
			for _, poly := range mp {
				final = append(final, poly)
			}
			continue
		}
		final = append(final, leaf)
	}
	return final
}

// polygonParts filters a geometry down to its polygonal parts, expanding
// collections and discarding points, lines and other kinds. Multipolygons
// stay whole; the worklist recurses into them as units.
func polygonParts(g orb.Geometry) []orb.Geometry {
	switch geom := g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return []orb.Geometry{geom}
	case orb.Collection:
		var parts []orb.Geometry
		for _, member := range geom {
			parts = append(parts, polygonParts(member)...)
		}
		return parts
	default:
		return nil
	}
}

// simplePolygons fully explodes a geometry into its constituent simple
// polygons.
func simplePolygons(g orb.Geometry) []orb.Polygon {
	var out []orb.Polygon
	for _, part := range polygonParts(g) {
		switch geom := part.(type) {
		case orb.Polygon:
			out = append(out, geom)
		case orb.MultiPolygon:
			out = append(out, geom...)
		}
	}
	return out
}
