package geometry

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/geolink/internal/model"
)

// Index holds boundary polygons grouped by blocking key together with a
// bound padded by the buffer distance for cheap prefiltering.
type Index struct {
	buffer float64
	byKey  map[string][]*model.Region
	padded map[*model.Region]orb.Bound
}

// BuildIndex indexes regions by blocking key. Regions without a geometry
// are kept under their key but never contain anything.
func BuildIndex(regions []*model.Region, bufferDistance float64) *Index {
	ix := &Index{
		buffer: bufferDistance,
		byKey:  make(map[string][]*model.Region),
		padded: make(map[*model.Region]orb.Bound, len(regions)),
	}

	for _, r := range regions {
		ix.byKey[r.BlockingKey] = append(ix.byKey[r.BlockingKey], r)
		if r.Geometry != nil {
			ix.padded[r] = r.Geometry.Bound().Pad(bufferDistance)
		}
	}

	return ix
}

// Buffer returns the tolerance the index was built with
func (ix *Index) Buffer() float64 {
	return ix.buffer
}

// Keys returns the indexed blocking keys in sorted order
func (ix *Index) Keys() []string {
	keys := make([]string, 0, len(ix.byKey))
	for k := range ix.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// QueryByKey returns the regions registered under key
func (ix *Index) QueryByKey(key string) []*model.Region {
	return ix.byKey[key]
}

// PaddedBound returns the buffered bounding box of an indexed region
func (ix *Index) PaddedBound(r *model.Region) (orb.Bound, bool) {
	b, ok := ix.padded[r]
	return b, ok
}

// Within reports whether p lies inside the buffered region
func (ix *Index) Within(r *model.Region, p orb.Point) bool {
	b, ok := ix.padded[r]
	if !ok || !b.Contains(p) {
		return false
	}
	return Contains(r, p, ix.buffer)
}

// RegionWithin reports whether every outer-ring vertex of inner lies inside
// the buffered outer region.
func (ix *Index) RegionWithin(outer, inner *model.Region) bool {
	b, ok := ix.padded[outer]
	if !ok || inner.Geometry == nil {
		return false
	}
	if !b.Contains(inner.Geometry.Bound().Min) || !b.Contains(inner.Geometry.Bound().Max) {
		return false
	}

	vertices := outerVertices(inner.Geometry)
	if len(vertices) == 0 {
		return false
	}
	for _, v := range vertices {
		if !Contains(outer, v, ix.buffer) {
			return false
		}
	}
	return true
}

// Contains reports whether p lies inside region or within tolerance of its
// boundary.
func Contains(region *model.Region, p orb.Point, tolerance float64) bool {
	if region == nil || region.Geometry == nil {
		return false
	}
	if !region.Geometry.Bound().Pad(tolerance).Contains(p) {
		return false
	}
	if inside(region.Geometry, p) {
		return true
	}
	return tolerance > 0 && planar.DistanceFrom(region.Geometry, p) <= tolerance
}

// Distance returns 0 when p is inside the unbuffered region and the planar
// distance to the nearest boundary otherwise. A region without geometry is
// infinitely far away.
func Distance(p orb.Point, region *model.Region) float64 {
	if region == nil || region.Geometry == nil {
		return math.Inf(1)
	}
	if inside(region.Geometry, p) {
		return 0
	}
	return planar.DistanceFrom(region.Geometry, p)
}

func inside(g orb.Geometry, p orb.Point) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	case orb.Ring:
		return planar.RingContains(g, p)
	}
	return false
}

func outerVertices(g orb.Geometry) []orb.Point {
	switch g := g.(type) {
	case orb.Polygon:
		if len(g) == 0 {
			return nil
		}
		return g[0]
	case orb.MultiPolygon:
		var pts []orb.Point
		for _, poly := range g {
			if len(poly) > 0 {
				pts = append(pts, poly[0]...)
			}
		}
		return pts
	case orb.Ring:
		return g
	}
	return nil
}
