package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/geolink/internal/model"
	"github.com/geolink/internal/strsim"
)

// ReadRegions parses a GeoJSON FeatureCollection of administrative
// boundaries. Features without an id are skipped; geometry is checked
// later, when regions are partitioned.
func ReadRegions(r io.Reader) ([]*model.Region, Stats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to read regions: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to decode regions: %w", err)
	}

	var stats Stats
	regions := make([]*model.Region, 0, len(fc.Features))
	for _, f := range fc.Features {
		stats.Rows++
		id := propString(f.Properties, "id")
		if id == "" {
			if s, ok := f.ID.(string); ok {
				id = s
			}
		}
		if id == "" {
			slog.Warn("skipping region without id", slog.Int("feature", stats.Rows))
			stats.Skipped++
			continue
		}

		from, err := propInt(f.Properties, "valid_from")
		if err != nil {
			slog.Warn("skipping region", slog.String("region_id", id), slog.String("error", err.Error()))
			stats.Skipped++
			continue
		}
		to, err := propInt(f.Properties, "valid_to")
		if err != nil {
			slog.Warn("skipping region", slog.String("region_id", id), slog.String("error", err.Error()))
			stats.Skipped++
			continue
		}

		regions = append(regions, &model.Region{
			ID:          id,
			Name:        strsim.Fold(propString(f.Properties, "name")),
			Geometry:    f.Geometry,
			Level:       propString(f.Properties, "level"),
			BlockingKey: propString(f.Properties, "blocking_key"),
			Validity:    model.Validity{From: from, To: to},
		})
	}
	return regions, stats, nil
}

// LoadRegions reads regions from a GeoJSON file
func LoadRegions(filename string) ([]*model.Region, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	regions, stats, err := ReadRegions(file)
	if err != nil {
		return nil, err
	}
	slog.Info("regions loaded", slog.String("file", filename), slog.Int("regions", len(regions)),
		slog.Int("skipped", stats.Skipped))
	return regions, nil
}

// SplitLevels separates top-level units from lower-level regions
func SplitLevels(regions []*model.Region, topLevel string) (units, lower []*model.Region) {
	for _, r := range regions {
		if r.Level == topLevel {
			units = append(units, r)
		} else {
			lower = append(lower, r)
		}
	}
	return units, lower
}

// propString reads a property as a string, accepting numeric codes
func propString(p geojson.Properties, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// propInt reads an optional integer property. Missing or null is zero.
func propInt(p geojson.Properties, key string) (int, error) {
	switch v := p[key].(type) {
	case nil:
		return 0, nil
	case float64:
		return int(v), nil
	case string:
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("bad %s %q: %w", key, v, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("bad %s of type %T", key, v)
	}
}
