package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/geolink/internal/blockstore"
)

// BlocksHandler serves persisted block artifacts for inspection
type BlocksHandler struct {
	Blocks blockstore.Store
}

// GetManifest returns the manifest of the last partition
func (h *BlocksHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	m, err := h.Blocks.Manifest(r.Context())
	if errors.Is(err, blockstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No partition has been built")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Block store error")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetBlock returns one block as a GeoJSON FeatureCollection
func (h *BlocksHandler) GetBlock(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	b, err := h.Blocks.Get(r.Context(), key)
	if errors.Is(err, blockstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Block not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Block store error")
		return
	}

	data, err := blockstore.Encode(b)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Block encoding error")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
