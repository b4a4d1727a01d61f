package server

import (
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/eugener/gencache/internal/cache"
)

// statsResponse is cache.Stats plus human-readable sizes.
type statsResponse struct {
	cache.Stats
	TotalSize   string `json:"total_size"`
	MaxSize     string `json:"max_size"`
	BytesServed string `json:"bytes_served_human"`
}

func (s *server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	st := s.deps.Cache.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		Stats:       st,
		TotalSize:   humanize.IBytes(uint64(st.TotalBytes)),
		MaxSize:     humanize.IBytes(uint64(st.MaxBytes)),
		BytesServed: humanize.IBytes(uint64(st.BytesServed)),
	})
}

func (s *server) handleCacheEntry(w http.ResponseWriter, r *http.Request) {
	key, ok := parseKeyParam(w, r)
	if !ok {
		return
	}
	rec, found := s.deps.Cache.EntryDetails(key)
	if !found {
		writeJSON(w, http.StatusNotFound, typedErrorResponse("entry not found", "not_found_error"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	key, ok := parseKeyParam(w, r)
	if !ok {
		return
	}
	if !s.deps.Cache.Delete(key) {
		writeJSON(w, http.StatusNotFound, typedErrorResponse("entry not found", "not_found_error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"removed": s.deps.Cache.Clear()})
}

func parseKeyParam(w http.ResponseWriter, r *http.Request) (cache.Key, bool) {
	key, err := cache.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid cache key"))
		return cache.Key{}, false
	}
	return key, true
}
