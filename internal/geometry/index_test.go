package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geolink/internal/model"
)

func square(minX, minY, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minX, minY}, {minX + size, minY}, {minX + size, minY + size}, {minX, minY + size}, {minX, minY},
	}}
}

func TestDistance(t *testing.T) {
	region := &model.Region{ID: "R1", Geometry: square(0, 0, 1000)}

	tests := []struct {
		name  string
		point orb.Point
		want  float64
	}{
		{name: "inside", point: orb.Point{500, 500}, want: 0},
		{name: "on boundary", point: orb.Point{1000, 500}, want: 0},
		{name: "east of region", point: orb.Point{1200, 500}, want: 200},
		{name: "diagonal from corner", point: orb.Point{1300, 1400}, want: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Distance(tt.point, region), 1e-6)
		})
	}
}

func TestDistanceWithoutGeometry(t *testing.T) {
	assert.True(t, math.IsInf(Distance(orb.Point{0, 0}, &model.Region{ID: "empty"}), 1))
}

func TestDistanceMultiPolygon(t *testing.T) {
	region := &model.Region{ID: "R2", Geometry: orb.MultiPolygon{square(0, 0, 100), square(1000, 0, 100)}}

	assert.Equal(t, 0.0, Distance(orb.Point{1050, 50}, region))
	assert.InDelta(t, 400, Distance(orb.Point{500, 50}, region), 1e-6)
}

func TestContainsWithTolerance(t *testing.T) {
	region := &model.Region{ID: "R1", Geometry: square(0, 0, 1000)}

	assert.True(t, Contains(region, orb.Point{500, 500}, 0))
	assert.False(t, Contains(region, orb.Point{1200, 500}, 0))
	assert.False(t, Contains(region, orb.Point{1200, 500}, 100))
	assert.True(t, Contains(region, orb.Point{1200, 500}, 500))
	assert.False(t, Contains(region, orb.Point{1501, 500}, 500))
	assert.False(t, Contains(nil, orb.Point{0, 0}, 500))
}

func TestIndexQueryAndWithin(t *testing.T) {
	a := &model.Region{ID: "A", BlockingKey: "K1", Geometry: square(0, 0, 1000)}
	b := &model.Region{ID: "B", BlockingKey: "K2", Geometry: square(5000, 0, 1000)}
	broken := &model.Region{ID: "C", BlockingKey: "K2"}

	ix := BuildIndex([]*model.Region{a, b, broken}, 500)

	assert.Equal(t, []string{"K1", "K2"}, ix.Keys())
	assert.Equal(t, []*model.Region{a}, ix.QueryByKey("K1"))
	assert.Len(t, ix.QueryByKey("K2"), 2)
	assert.Empty(t, ix.QueryByKey("missing"))
	assert.Equal(t, 500.0, ix.Buffer())

	assert.True(t, ix.Within(a, orb.Point{1400, 0}))
	assert.False(t, ix.Within(a, orb.Point{1600, 0}))
	assert.False(t, ix.Within(broken, orb.Point{5000, 0}))

	bound, ok := ix.PaddedBound(a)
	require.True(t, ok)
	assert.Equal(t, orb.Point{-500, -500}, bound.Min)
}

func TestIndexRegionWithin(t *testing.T) {
	unit := &model.Region{ID: "U", BlockingKey: "K1", Geometry: square(0, 0, 1000)}
	ix := BuildIndex([]*model.Region{unit}, 500)

	inner := &model.Region{ID: "in", Geometry: square(100, 100, 200)}
	straddling := &model.Region{ID: "edge", Geometry: square(900, 100, 300)}
	outside := &model.Region{ID: "out", Geometry: square(3000, 3000, 100)}

	assert.True(t, ix.RegionWithin(unit, inner))
	assert.True(t, ix.RegionWithin(unit, straddling), "overhang smaller than buffer is absorbed")
	assert.False(t, ix.RegionWithin(unit, outside))
	assert.False(t, ix.RegionWithin(unit, &model.Region{ID: "nogeom"}))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		geom    orb.Geometry
		wantErr bool
	}{
		{name: "valid polygon", geom: square(0, 0, 10)},
		{name: "valid multipolygon", geom: orb.MultiPolygon{square(0, 0, 10), square(20, 0, 10)}},
		{name: "missing geometry", geom: nil, wantErr: true},
		{name: "point geometry", geom: orb.Point{1, 1}, wantErr: true},
		{name: "no rings", geom: orb.Polygon{}, wantErr: true},
		{name: "empty multipolygon", geom: orb.MultiPolygon{}, wantErr: true},
		{name: "too few points", geom: orb.Polygon{orb.Ring{{0, 0}, {1, 1}, {0, 0}}}, wantErr: true},
		{name: "unclosed ring", geom: orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}, wantErr: true},
		{name: "zero area", geom: orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {2, 0}, {0, 0}}}, wantErr: true},
		{name: "nan coordinate", geom: orb.Polygon{orb.Ring{{0, 0}, {math.NaN(), 0}, {1, 1}, {0, 0}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&model.Region{ID: "R", Geometry: tt.geom})
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var geomErr *InvalidGeometryError
			assert.True(t, errors.As(err, &geomErr))
			assert.Equal(t, "R", geomErr.RegionID)
		})
	}
}
