package ingest

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const targetsCSV = `id,period,truncated_name,type,subtype,blocking_key,lower_level_ref
T1,2009,St. Mary's,SCH,PRI,C01,W1
T1,2019,St Marys  Primary,SCH,PRI,C01,
T2,2014,Alpha,,,C02,North Ward
T3,not-a-year,Broken,,,C01,
,2019,No Id,,,C01,
`

func TestReadTargets(t *testing.T) {
	targets, stats, err := ReadTargets(strings.NewReader(targetsCSV))
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Rows)
	assert.Equal(t, 2, stats.Skipped)
	require.Len(t, targets, 2)

	t1 := targets[0]
	assert.Equal(t, "T1", t1.ID)
	require.Len(t, t1.Periods, 2)
	assert.Equal(t, 2009, t1.Periods[0].Period)
	assert.Equal(t, "ST. MARY'S", t1.Periods[0].TruncatedName)
	require.NotNil(t, t1.Periods[0].LowerLevelRef)
	assert.Equal(t, "W1", *t1.Periods[0].LowerLevelRef)
	assert.Equal(t, "ST MARYS PRIMARY", t1.Periods[1].TruncatedName)
	assert.Nil(t, t1.Periods[1].LowerLevelRef)

	assert.Equal(t, "T2", targets[1].ID)
	assert.Equal(t, "C02", targets[1].Periods[0].BlockingKey)
}

func TestReadTargetsMissingColumn(t *testing.T) {
	_, _, err := ReadTargets(strings.NewReader("id,period\nT1,2009\n"))
	assert.ErrorContains(t, err, "truncated_name")
}

const candidatesCSV = `id,x,y,name,source,accurate,type,subtype
c1,100.5,200,Alpha,moe,true,SCH,PRI
c2,300,400,Beta,osm,,,
c3,abc,400,Gamma,osm,,,
c4,1,2,Delta,osm,maybe,,
`

func TestReadCandidates(t *testing.T) {
	candidates, stats, err := ReadCandidates(strings.NewReader(candidatesCSV))
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, 2, stats.Skipped)
	require.Len(t, candidates, 2)

	c1 := candidates[0]
	assert.Equal(t, orb.Point{100.5, 200}, c1.Coord)
	assert.Equal(t, "ALPHA", c1.Name)
	require.NotNil(t, c1.Accurate)
	assert.True(t, *c1.Accurate)
	assert.Equal(t, "SCH", c1.Type)

	assert.Nil(t, candidates[1].Accurate)
}

func TestReadCandidatesWithoutTypeColumns(t *testing.T) {
	candidates, _, err := ReadCandidates(strings.NewReader("id,x,y,name,source,accurate\nc1,1,2,Alpha,moe,false\n"))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Empty(t, candidates[0].Type)
	require.NotNil(t, candidates[0].Accurate)
	assert.False(t, *candidates[0].Accurate)
}

const regionsJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1000,0],[1000,1000],[0,1000],[0,0]]]},
     "properties": {"id": "U01", "name": "Kamukunji", "level": "constituency", "blocking_key": "C01"}},
    {"type": "Feature", "geometry": {"type": "Polygon", "coordinates": [[[0,0],[500,0],[500,500],[0,500],[0,0]]]},
     "properties": {"id": 17, "name": "North Ward", "level": "ward", "blocking_key": "C01", "valid_from": 2009, "valid_to": "2012"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [1, 1]}, "properties": {"name": "No Id"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [2, 2]}, "properties": {"id": "bad", "valid_from": "soon"}}
  ]
}`

func TestReadRegions(t *testing.T) {
	regions, stats, err := ReadRegions(strings.NewReader(regionsJSON))
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, 2, stats.Skipped)
	require.Len(t, regions, 2)

	ward := regions[1]
	assert.Equal(t, "17", ward.ID)
	assert.Equal(t, "NORTH WARD", ward.Name)
	assert.Equal(t, 2009, ward.Validity.From)
	assert.Equal(t, 2012, ward.Validity.To)
	assert.IsType(t, orb.Polygon{}, ward.Geometry)

	units, lower := SplitLevels(regions, "constituency")
	require.Len(t, units, 1)
	assert.Equal(t, "U01", units[0].ID)
	require.Len(t, lower, 1)
	assert.Equal(t, "17", lower[0].ID)
}

func TestReadRegionsRejectsInvalidJSON(t *testing.T) {
	_, _, err := ReadRegions(strings.NewReader("{"))
	assert.Error(t, err)
}
