package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/geolink/internal/export"
	"github.com/geolink/internal/model"
	"github.com/geolink/internal/store"
)

// maxExportRows bounds a synchronous export. Larger runs use the CLI.
const maxExportRows = 50000

// ExportHandler streams run results as CSV
type ExportHandler struct {
	Store ResultStore
}

// ExportCSV writes every result of a run, optionally filtered by status
func (h *ExportHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	filter := store.ResultFilter{}
	if s := r.URL.Query().Get("status"); s != "" {
		st, err := model.ParseStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = st
	}

	results, err := h.Store.ListResults(r.Context(), runID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if len(results) == 0 {
		writeError(w, http.StatusNotFound, "No results for run")
		return
	}
	if len(results) > maxExportRows {
		writeError(w, http.StatusRequestEntityTooLarge, "Too many results for immediate export. Filter by status or use the CLI.")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, runID))
	if err := export.WriteCSV(w, results); err != nil {
		slog.Error("csv export failed", slog.String("run_id", runID), slog.String("error", err.Error()))
	}
}
