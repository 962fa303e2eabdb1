package blockstore

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/geolink/internal/model"
)

// Feature kinds inside a block artifact
const (
	kindUnit      = "unit"
	kindRegion    = "region"
	kindCandidate = "candidate"
)

// Encode renders a block as a GeoJSON FeatureCollection: its unit features,
// then its regions, then its candidates, each tagged with a "kind" property.
func Encode(b *model.Block) ([]byte, error) {
	if len(b.Units) == 0 {
		return nil, fmt.Errorf("block %s has no top-level unit", b.Key)
	}

	fc := geojson.NewFeatureCollection()
	for _, u := range b.Units {
		fc.Append(regionFeature(kindUnit, b.Key, u))
	}
	for _, r := range b.Regions {
		fc.Append(regionFeature(kindRegion, b.Key, r))
	}
	for _, c := range b.Candidates {
		f := geojson.NewFeature(c.Coord)
		f.Properties["kind"] = kindCandidate
		f.Properties["id"] = c.ID
		f.Properties["name"] = c.Name
		f.Properties["source"] = c.Source
		if c.Accurate != nil {
			f.Properties["accurate"] = *c.Accurate
		}
		if c.Type != "" {
			f.Properties["type"] = c.Type
		}
		if c.Subtype != "" {
			f.Properties["subtype"] = c.Subtype
		}
		fc.Append(f)
	}

	return fc.MarshalJSON()
}

// Decode parses an artifact written by Encode
func Decode(data []byte) (*model.Block, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse block artifact: %w", err)
	}

	b := &model.Block{}
	for i, f := range fc.Features {
		switch kind := f.Properties.MustString("kind", ""); kind {
		case kindUnit:
			u := featureRegion(f)
			b.Units = append(b.Units, u)
			b.Key = f.Properties.MustString("block_key", u.BlockingKey)
		case kindRegion:
			b.Regions = append(b.Regions, featureRegion(f))
		case kindCandidate:
			c, err := featureCandidate(f)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			b.Candidates = append(b.Candidates, c)
		default:
			return nil, fmt.Errorf("feature %d: unknown kind %q", i, kind)
		}
	}

	if len(b.Units) == 0 {
		return nil, fmt.Errorf("block artifact has no unit feature")
	}
	return b, nil
}

func regionFeature(kind, key string, r *model.Region) *geojson.Feature {
	f := geojson.NewFeature(r.Geometry)
	f.Properties["kind"] = kind
	f.Properties["block_key"] = key
	f.Properties["id"] = r.ID
	f.Properties["name"] = r.Name
	f.Properties["level"] = r.Level
	f.Properties["blocking_key"] = r.BlockingKey
	f.Properties["valid_from"] = r.Validity.From
	f.Properties["valid_to"] = r.Validity.To
	return f
}

func featureRegion(f *geojson.Feature) *model.Region {
	return &model.Region{
		ID:          f.Properties.MustString("id", ""),
		Name:        f.Properties.MustString("name", ""),
		Geometry:    f.Geometry,
		Level:       f.Properties.MustString("level", ""),
		BlockingKey: f.Properties.MustString("blocking_key", ""),
		Validity: model.Validity{
			From: int(f.Properties.MustFloat64("valid_from", 0)),
			To:   int(f.Properties.MustFloat64("valid_to", 0)),
		},
	}
}

func featureCandidate(f *geojson.Feature) (*model.Candidate, error) {
	pt, ok := f.Geometry.(orb.Point)
	if !ok {
		return nil, fmt.Errorf("candidate %s has non-point geometry", f.Properties.MustString("id", "?"))
	}

	c := &model.Candidate{
		ID:      f.Properties.MustString("id", ""),
		Coord:   pt,
		Name:    f.Properties.MustString("name", ""),
		Source:  f.Properties.MustString("source", ""),
		Type:    f.Properties.MustString("type", ""),
		Subtype: f.Properties.MustString("subtype", ""),
	}
	if v, ok := f.Properties["accurate"].(bool); ok {
		c.Accurate = &v
	}
	return c, nil
}
