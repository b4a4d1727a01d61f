package server

import (
	"net/http"
	"strings"

	gencache "github.com/eugener/gencache/internal"
)

const cacheStatusHeader = "X-Cache"

var (
	cacheHit  = []string{"HIT"}
	cacheMiss = []string{"MISS"}
)

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req gencache.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TemplateID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("template_id is required"))
		return
	}

	resp, err := s.deps.Generator.Generate(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if resp.Cached {
		w.Header()[cacheStatusHeader] = cacheHit
	} else {
		w.Header()[cacheStatusHeader] = cacheMiss
	}
	writeJSON(w, http.StatusOK, resp)
}
