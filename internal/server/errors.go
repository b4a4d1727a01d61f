package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	gencache "github.com/eugener/gencache/internal"
)

// maxRequestBody is the maximum allowed request body size (1 MB).
const maxRequestBody = 1 << 20

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func errorResponse(msg string) apiError {
	return typedErrorResponse(msg, "invalid_request_error")
}

func typedErrorResponse(msg, typ string) apiError {
	var e apiError
	e.Error.Message = msg
	e.Error.Type = typ
	return e
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, gencache.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, gencache.ErrNotFound), errors.Is(err, gencache.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, gencache.ErrProviderError), errors.Is(err, gencache.ErrEmptyContent):
		return http.StatusBadGateway
	case errors.Is(err, gencache.ErrGeneratorNotFound):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status code. Client errors echo the message;
// server and upstream errors are logged in full and returned sanitized.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status < http.StatusInternalServerError {
		writeJSON(w, status, errorResponse(err.Error()))
		return
	}
	slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", status),
		slog.String("request_id", gencache.RequestIDFromContext(r.Context())),
	)
	typ := "server_error"
	if status == http.StatusBadGateway || status == http.StatusGatewayTimeout {
		typ = "upstream_error"
	}
	writeJSON(w, status, typedErrorResponse(http.StatusText(status), typ))
}

// jsonCT is shared by every JSON response; handlers must not mutate it.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// decodeJSON limits body size, decodes JSON into v, and writes a 400 on error.
// Returns true if decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return false
	}
	return true
}
