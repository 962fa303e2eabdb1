package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/geolink/internal/model"
)

// Columns is the header written by WriteCSV
var Columns = []string{
	"target_id", "candidate_id", "string_dist", "spatial_dist", "status", "period", "reason",
	"region_ids", "review_candidate_ids",
}

// WriteCSV writes results as CSV. Absent values are empty cells.
func WriteCSV(w io.Writer, results []model.MatchResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range results {
		period := ""
		if r.Period != 0 {
			period = strconv.Itoa(r.Period)
		}
		record := []string{
			r.TargetID,
			deref(r.CandidateID),
			formatFloat(r.StringDist),
			formatFloat(r.SpatialDist),
			string(r.Status),
			period,
			r.Reason,
			strings.Join(r.RegionIDs, ";"),
			strings.Join(r.ReviewCandidateIDs, ";"),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write result %s: %w", r.TargetID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteFile writes results to path, creating parent directories
func WriteFile(path string, results []model.MatchResult) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(file, results); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 6, 64)
}
