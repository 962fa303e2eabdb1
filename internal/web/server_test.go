package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geolink/internal/blockstore"
	"github.com/geolink/internal/config"
	"github.com/geolink/internal/model"
	"github.com/geolink/internal/store"
	"github.com/geolink/internal/web/handlers"
)

func strPtr(s string) *string { return &s }
func fPtr(f float64) *float64 { return &f }

func newTestServer(t *testing.T, apiKey string) *Server {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewConnection(ctx, store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.CreateRun(ctx, "run-1", map[string]float64{"string_threshold": 0.15}))
	require.NoError(t, db.SaveResults(ctx, "run-1", []model.MatchResult{
		{TargetID: "T1", CandidateID: strPtr("c1"), StringDist: fPtr(0), SpatialDist: fPtr(0), Status: model.StatusMatched, Period: 2019},
		{TargetID: "T2", Status: model.StatusUnresolved, Reason: "missing_block"},
		{TargetID: "T3", StringDist: fPtr(0.05), SpatialDist: fPtr(2500), Status: model.StatusRejected, Reason: "spatial_gate", ReviewCandidateIDs: []string{"c9"}},
	}))

	blocks, err := blockstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	unit := &model.Region{ID: "U01", BlockingKey: "C01", Level: "constituency",
		Geometry: orb.Polygon{orb.Ring{{0, 0}, {1000, 0}, {1000, 1000}, {0, 1000}, {0, 0}}}}
	require.NoError(t, blocks.Put(ctx, &model.Block{
		Key:        "C01",
		Units:      []*model.Region{unit},
		Candidates: []*model.Candidate{{ID: "c1", Name: "ALPHA", Coord: orb.Point{10, 10}}},
	}))

	return NewServer(config.HTTPConfig{Port: 8080, APIKey: apiKey}, db, blocks)
}

func get(t *testing.T, s *Server, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSummary(t *testing.T) {
	s := newTestServer(t, "")

	rec := get(t, s, "/api/runs/run-1/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.SummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 1, resp.Counts[model.StatusMatched])
	assert.Equal(t, 0, resp.Counts[model.StatusAmbiguous])
	assert.InDelta(t, 33.33, resp.MatchRate, 0.01)

	rec = get(t, s, "/api/runs/missing/summary", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListResults(t *testing.T) {
	s := newTestServer(t, "")

	rec := get(t, s, "/api/runs/run-1/results?status=rejected", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.ResultsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "T3", resp.Results[0].TargetID)
	assert.Equal(t, []string{"c9"}, resp.Results[0].ReviewCandidateIDs)

	rec = get(t, s, "/api/runs/run-1/results?status=auto_accept", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, s, "/api/runs/run-1/results?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetResult(t *testing.T) {
	s := newTestServer(t, "")

	rec := get(t, s, "/api/runs/run-1/results/T1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res model.MatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.CandidateID)
	assert.Equal(t, "c1", *res.CandidateID)

	rec = get(t, s, "/api/runs/run-1/results/T404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t, "")

	rec := get(t, s, "/api/runs/run-1/export?status=matched", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "T1,c1,"))

	rec = get(t, s, "/api/runs/other/export", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBlocks(t *testing.T) {
	s := newTestServer(t, "")

	rec := get(t, s, "/api/blocks/C01", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)

	rec = get(t, s, "/api/blocks/C99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, s, "/api/blocks", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t, "secret")

	rec := get(t, s, "/api/runs", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(t, s, "/api/runs", map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	rec = get(t, s, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodOptions, "/api/runs/run-1/results", nil)
	req.Header.Set("Origin", "http://review.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", "X-API-Key")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")

	rec = get(t, s, "/api/runs", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
