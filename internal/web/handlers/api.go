package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/geolink/internal/model"
	"github.com/geolink/internal/store"
)

// ResultStore is the read side of the result database used by the API
type ResultStore interface {
	ListRuns(ctx context.Context) ([]store.Run, error)
	GetRun(ctx context.Context, runID string) (store.Run, error)
	StatusCounts(ctx context.Context, runID string) (map[model.Status]int, error)
	ListResults(ctx context.Context, runID string, filter store.ResultFilter) ([]model.MatchResult, error)
	GetResult(ctx context.Context, runID, targetID string) (model.MatchResult, error)
}

// APIHandler serves runs and their results for review
type APIHandler struct {
	Store ResultStore
}

// SummaryResponse reports per-status counts for a run
type SummaryResponse struct {
	RunID     string               `json:"run_id"`
	Total     int                  `json:"total"`
	Counts    map[model.Status]int `json:"counts"`
	MatchRate float64              `json:"match_rate"`
}

// ResultsResponse is one page of results
type ResultsResponse struct {
	RunID   string              `json:"run_id"`
	Status  model.Status        `json:"status,omitempty"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
	Results []model.MatchResult `json:"results"`
}

// ListRuns returns every recorded run
func (h *APIHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetSummary returns per-status counts for a run
func (h *APIHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	if !h.runExists(w, r, runID) {
		return
	}

	counts, err := h.Store.StatusCounts(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	resp := SummaryResponse{RunID: runID, Counts: counts}
	for _, n := range counts {
		resp.Total += n
	}
	if resp.Total > 0 {
		resp.MatchRate = float64(counts[model.StatusMatched]) / float64(resp.Total) * 100
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListResults returns results for a run, optionally filtered by status
func (h *APIHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	if !h.runExists(w, r, runID) {
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.Store.ListResults(r.Context(), runID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if results == nil {
		results = []model.MatchResult{}
	}

	writeJSON(w, http.StatusOK, ResultsResponse{
		RunID:   runID,
		Status:  filter.Status,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
		Results: results,
	})
}

// GetResult returns the result recorded for one target
func (h *APIHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := h.Store.GetResult(r.Context(), vars["id"], vars["target"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Result not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) runExists(w http.ResponseWriter, r *http.Request, runID string) bool {
	_, err := h.Store.GetRun(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Run not found")
		return false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return false
	}
	return true
}

func parseFilter(r *http.Request) (store.ResultFilter, error) {
	q := r.URL.Query()
	filter := store.ResultFilter{Limit: 100}

	if s := q.Get("status"); s != "" {
		st, err := model.ParseStatus(s)
		if err != nil {
			return filter, err
		}
		filter.Status = st
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			return filter, errors.New("limit must be between 1 and 1000")
		}
		filter.Limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
