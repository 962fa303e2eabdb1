package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/geolink/internal/model"
	"github.com/geolink/internal/strsim"
)

// Stats counts rows read and rows skipped during an import
type Stats struct {
	Rows    int
	Skipped int
}

// header maps column names to their index
type header map[string]int

func readHeader(reader *csv.Reader, required ...string) (header, error) {
	cols, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	h := make(header, len(cols))
	for i, c := range cols {
		h[strings.ToLower(strings.TrimSpace(c))] = i
	}
	for _, r := range required {
		if _, ok := h[r]; !ok {
			return nil, fmt.Errorf("missing required column %q", r)
		}
	}
	return h, nil
}

func (h header) get(record []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// eachRecord reads data rows, skipping and counting the ones mapFunc rejects
func eachRecord(reader *csv.Reader, kind string, mapFunc func([]string) error) (Stats, error) {
	var stats Stats
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		stats.Rows++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				slog.Warn("skipping malformed row", slog.String("kind", kind), slog.String("error", err.Error()))
				stats.Skipped++
				continue
			}
			return stats, err
		}
		if err := mapFunc(record); err != nil {
			slog.Warn("skipping row", slog.String("kind", kind), slog.Int("row", stats.Rows), slog.String("error", err.Error()))
			stats.Skipped++
		}
	}
	return stats, nil
}

func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader
}

// ReadTargets parses one row per (target, period) and groups rows by target
// ID in first-seen order. Names are folded to the scoring alphabet.
func ReadTargets(r io.Reader) ([]model.Target, Stats, error) {
	reader := newReader(r)
	h, err := readHeader(reader, "id", "truncated_name", "blocking_key")
	if err != nil {
		return nil, Stats{}, err
	}

	index := make(map[string]int)
	var targets []model.Target

	stats, err := eachRecord(reader, "target", func(rec []string) error {
		id := h.get(rec, "id")
		if id == "" {
			return errors.New("empty id")
		}

		period := 0
		if s := h.get(rec, "period"); s != "" {
			p, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("bad period %q: %w", s, err)
			}
			period = p
		}

		tp := model.TargetPeriod{
			Period:        period,
			TruncatedName: strsim.Fold(h.get(rec, "truncated_name")),
			Type:          h.get(rec, "type"),
			Subtype:       h.get(rec, "subtype"),
			BlockingKey:   h.get(rec, "blocking_key"),
		}
		if ref := h.get(rec, "lower_level_ref"); ref != "" {
			tp.LowerLevelRef = &ref
		}

		i, ok := index[id]
		if !ok {
			i = len(targets)
			index[id] = i
			targets = append(targets, model.Target{ID: id})
		}
		targets[i].Periods = append(targets[i].Periods, tp)
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("failed to read targets: %w", err)
	}
	return targets, stats, nil
}

// ReadCandidates parses candidate points. An empty accurate column means
// the accuracy is unknown.
func ReadCandidates(r io.Reader) ([]*model.Candidate, Stats, error) {
	reader := newReader(r)
	h, err := readHeader(reader, "id", "x", "y", "name")
	if err != nil {
		return nil, Stats{}, err
	}

	var candidates []*model.Candidate
	stats, err := eachRecord(reader, "candidate", func(rec []string) error {
		id := h.get(rec, "id")
		if id == "" {
			return errors.New("empty id")
		}
		x, err := strconv.ParseFloat(h.get(rec, "x"), 64)
		if err != nil {
			return fmt.Errorf("bad x for %s: %w", id, err)
		}
		y, err := strconv.ParseFloat(h.get(rec, "y"), 64)
		if err != nil {
			return fmt.Errorf("bad y for %s: %w", id, err)
		}

		c := &model.Candidate{
			ID:      id,
			Coord:   orb.Point{x, y},
			Name:    strsim.Fold(h.get(rec, "name")),
			Source:  h.get(rec, "source"),
			Type:    h.get(rec, "type"),
			Subtype: h.get(rec, "subtype"),
		}
		if s := h.get(rec, "accurate"); s != "" {
			v, err := strconv.ParseBool(s)
			if err != nil {
				return fmt.Errorf("bad accurate flag for %s: %w", id, err)
			}
			c.Accurate = &v
		}
		candidates = append(candidates, c)
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("failed to read candidates: %w", err)
	}
	return candidates, stats, nil
}

// LoadTargets reads targets from a CSV file
func LoadTargets(filename string) ([]model.Target, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	targets, stats, err := ReadTargets(file)
	if err != nil {
		return nil, err
	}
	slog.Info("targets loaded", slog.String("file", filename), slog.Int("targets", len(targets)),
		slog.Int("rows", stats.Rows), slog.Int("skipped", stats.Skipped))
	return targets, nil
}

// LoadCandidates reads candidates from a CSV file
func LoadCandidates(filename string) ([]*model.Candidate, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	candidates, stats, err := ReadCandidates(file)
	if err != nil {
		return nil, err
	}
	slog.Info("candidates loaded", slog.String("file", filename), slog.Int("candidates", len(candidates)),
		slog.Int("rows", stats.Rows), slog.Int("skipped", stats.Skipped))
	return candidates, nil
}
