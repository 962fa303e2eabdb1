package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/geolink/internal/model"
)

// ErrNotFound is returned when a run or result does not exist
var ErrNotFound = errors.New("not found")

// Run is one invocation of the matcher over a target list
type Run struct {
	ID        string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Params    string    `json:"params"`
}

// ResultFilter narrows ListResults
type ResultFilter struct {
	Status model.Status
	Limit  int
	Offset int
}

// CreateRun records a run. Re-creating an existing run is a no-op so that
// resumed runs keep their original parameters.
func (c *Connection) CreateRun(ctx context.Context, runID string, params any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode run params: %w", err)
	}
	_, err = c.DB.ExecContext(ctx, c.rebind(`
		INSERT INTO match_run (run_id, created_at, params) VALUES (?, ?, ?)
		ON CONFLICT (run_id) DO NOTHING`),
		runID, time.Now().UTC().Format(time.RFC3339Nano), string(data))
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", runID, err)
	}
	return nil
}

// GetRun loads a run by ID
func (c *Connection) GetRun(ctx context.Context, runID string) (Run, error) {
	var r Run
	var created string
	err := c.DB.QueryRowContext(ctx, c.rebind(`SELECT run_id, created_at, params FROM match_run WHERE run_id = ?`), runID).
		Scan(&r.ID, &created, &r.Params)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return r, nil
}

// ListRuns returns every run, newest first
func (c *Connection) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := c.DB.QueryContext(ctx, `SELECT run_id, created_at, params FROM match_run ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var created string
		if err := rows.Scan(&r.ID, &created, &r.Params); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveResults upserts a batch of results in one transaction
func (c *Connection) SaveResults(ctx context.Context, runID string, results []model.MatchResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, c.rebind(`
		INSERT INTO match_result (
			run_id, target_id, candidate_id, string_dist, spatial_dist,
			status, period, reason, region_ids, review_candidate_ids
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, target_id) DO UPDATE SET
			candidate_id = excluded.candidate_id,
			string_dist = excluded.string_dist,
			spatial_dist = excluded.spatial_dist,
			status = excluded.status,
			period = excluded.period,
			reason = excluded.reason,
			region_ids = excluded.region_ids,
			review_candidate_ids = excluded.review_candidate_ids`))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		regionIDs, _ := json.Marshal(nonNil(r.RegionIDs))
		reviewIDs, _ := json.Marshal(nonNil(r.ReviewCandidateIDs))

		_, err := stmt.ExecContext(ctx,
			runID, r.TargetID, nullString(r.CandidateID), nullFloat(r.StringDist), nullFloat(r.SpatialDist),
			string(r.Status), r.Period, r.Reason, string(regionIDs), string(reviewIDs))
		if err != nil {
			return fmt.Errorf("failed to save result for target %s: %w", r.TargetID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}
	return nil
}

// ProcessedTargetIDs returns the targets that already have a result for the
// run. It is the checkpoint consulted when a run is resumed.
func (c *Connection) ProcessedTargetIDs(ctx context.Context, runID string) (map[string]bool, error) {
	rows, err := c.DB.QueryContext(ctx, c.rebind(`SELECT target_id FROM match_result WHERE run_id = ?`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed targets: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		done[id] = true
	}
	return done, rows.Err()
}

// StatusCounts aggregates results per status. Every status is present.
func (c *Connection) StatusCounts(ctx context.Context, runID string) (map[model.Status]int, error) {
	rows, err := c.DB.QueryContext(ctx, c.rebind(`
		SELECT status, COUNT(*) FROM match_result WHERE run_id = ? GROUP BY status`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count results: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Status]int, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[model.Status(status)] = n
	}
	return counts, rows.Err()
}

const resultColumns = `target_id, candidate_id, string_dist, spatial_dist, status, period, reason, region_ids, review_candidate_ids`

// ListResults returns results for a run ordered by target ID
func (c *Connection) ListResults(ctx context.Context, runID string, filter ResultFilter) ([]model.MatchResult, error) {
	query := `SELECT ` + resultColumns + ` FROM match_result WHERE run_id = ?`
	args := []any{runID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY target_id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := c.DB.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []model.MatchResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetResult loads the result recorded for one target
func (c *Connection) GetResult(ctx context.Context, runID, targetID string) (model.MatchResult, error) {
	row := c.DB.QueryRowContext(ctx, c.rebind(`SELECT `+resultColumns+` FROM match_result WHERE run_id = ? AND target_id = ?`), runID, targetID)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MatchResult{}, ErrNotFound
	}
	return r, err
}

// KnownGood maps target IDs to the candidates a run matched them to
func (c *Connection) KnownGood(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := c.DB.QueryContext(ctx, c.rebind(`
		SELECT target_id, candidate_id FROM match_result
		WHERE run_id = ? AND status = ? AND candidate_id IS NOT NULL`), runID, string(model.StatusMatched))
	if err != nil {
		return nil, fmt.Errorf("failed to load matched results: %w", err)
	}
	defer rows.Close()

	known := make(map[string]string)
	for rows.Next() {
		var target, cand string
		if err := rows.Scan(&target, &cand); err != nil {
			return nil, err
		}
		known[target] = cand
	}
	return known, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(s scanner) (model.MatchResult, error) {
	var (
		r           model.MatchResult
		candidateID sql.NullString
		stringDist  sql.NullFloat64
		spatialDist sql.NullFloat64
		status      string
		regionIDs   string
		reviewIDs   string
	)
	err := s.Scan(&r.TargetID, &candidateID, &stringDist, &spatialDist, &status, &r.Period, &r.Reason, &regionIDs, &reviewIDs)
	if err != nil {
		return model.MatchResult{}, err
	}

	r.Status, err = model.ParseStatus(status)
	if err != nil {
		return model.MatchResult{}, err
	}
	if candidateID.Valid {
		r.CandidateID = &candidateID.String
	}
	if stringDist.Valid {
		r.StringDist = &stringDist.Float64
	}
	if spatialDist.Valid {
		r.SpatialDist = &spatialDist.Float64
	}
	if err := json.Unmarshal([]byte(regionIDs), &r.RegionIDs); err != nil {
		return model.MatchResult{}, fmt.Errorf("bad region_ids for %s: %w", r.TargetID, err)
	}
	if err := json.Unmarshal([]byte(reviewIDs), &r.ReviewCandidateIDs); err != nil {
		return model.MatchResult{}, fmt.Errorf("bad review_candidate_ids for %s: %w", r.TargetID, err)
	}
	if len(r.RegionIDs) == 0 {
		r.RegionIDs = nil
	}
	if len(r.ReviewCandidateIDs) == 0 {
		r.ReviewCandidateIDs = nil
	}
	return r, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
