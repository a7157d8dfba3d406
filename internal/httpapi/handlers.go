package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DoyleJ11/gridsync/internal/grid"
	"github.com/DoyleJ11/gridsync/internal/hub"
	"github.com/DoyleJ11/gridsync/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type gridHandlers struct {
	store    store.Store
	log      *zap.Logger
	maxBytes int64
}

// SaveGrid creates a grid when the body has no _id and overwrites it otherwise.
func (gh *gridHandlers) SaveGrid(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, gh.maxBytes)

	var p grid.Package
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		jsonError(w, "invalid body", http.StatusBadRequest)
		return
	}

	created := p.ID == ""
	saved, err := gh.store.Save(r.Context(), p)
	switch {
	case errors.Is(err, store.ErrInvalidGrid):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, "grid not found", http.StatusNotFound)
		return
	case err != nil:
		gh.log.Error("save grid", zap.String("grid_id", p.ID), zap.Error(err))
		jsonError(w, "failed to save grid", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, saved)
}

func (gh *gridHandlers) ListGrids(w http.ResponseWriter, r *http.Request) {
	list, err := gh.store.List(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		gh.log.Error("list grids", zap.Error(err))
		jsonError(w, "failed to list grids", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []grid.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (gh *gridHandlers) GetGrid(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := gh.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "grid not found", http.StatusNotFound)
		return
	}
	if err != nil {
		gh.log.Error("get grid", zap.String("grid_id", id), zap.Error(err))
		jsonError(w, "failed to load grid", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func Healthz(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Status  string `json:"status"`
			Clients int    `json:"clients"`
		}{Status: "ok", Clients: h.Stats().Clients})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
