package geometry

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/geolink/internal/model"
)

// InvalidGeometryError describes a malformed or degenerate region polygon
type InvalidGeometryError struct {
	RegionID string
	Reason   string
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("invalid geometry for region %s: %s", e.RegionID, e.Reason)
}

// Validate checks that a region carries a usable polygon: at least one ring,
// closed rings of four or more finite points, and a non-zero outer area.
func Validate(region *model.Region) error {
	if region.Geometry == nil {
		return &InvalidGeometryError{RegionID: region.ID, Reason: "missing geometry"}
	}

	var polys []orb.Polygon
	switch g := region.Geometry.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{g}
	case orb.MultiPolygon:
		polys = g
	default:
		return &InvalidGeometryError{RegionID: region.ID, Reason: fmt.Sprintf("unsupported geometry type %s", g.GeoJSONType())}
	}

	if len(polys) == 0 {
		return &InvalidGeometryError{RegionID: region.ID, Reason: "empty multipolygon"}
	}

	for i, poly := range polys {
		if len(poly) == 0 {
			return &InvalidGeometryError{RegionID: region.ID, Reason: fmt.Sprintf("polygon %d has no rings", i)}
		}
		for j, ring := range poly {
			if len(ring) < 4 {
				return &InvalidGeometryError{RegionID: region.ID, Reason: fmt.Sprintf("polygon %d ring %d has %d points", i, j, len(ring))}
			}
			if !ring.Closed() {
				return &InvalidGeometryError{RegionID: region.ID, Reason: fmt.Sprintf("polygon %d ring %d is not closed", i, j)}
			}
			for _, pt := range ring {
				if !finite(pt[0]) || !finite(pt[1]) {
					return &InvalidGeometryError{RegionID: region.ID, Reason: fmt.Sprintf("polygon %d ring %d has non-finite coordinates", i, j)}
				}
			}
		}
		if math.Abs(planar.Area(poly[0])) == 0 {
			return &InvalidGeometryError{RegionID: region.ID, Reason: fmt.Sprintf("polygon %d has zero area", i)}
		}
	}

	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
