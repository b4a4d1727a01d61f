package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	gencache "github.com/eugener/gencache/internal"
)

// Header keys below are already in canonical MIME form and are read and
// written through the header map directly.
const (
	requestIDHeader = "X-Request-Id"
	maxRequestIDLen = 128
)

var statusWriters = sync.Pool{
	New: func() any { return &statusWriter{} },
}

// wrapStatus borrows a statusWriter around w. The caller must hand it back
// with release once the handler has returned.
func wrapStatus(w http.ResponseWriter) *statusWriter {
	sw := statusWriters.Get().(*statusWriter)
	sw.ResponseWriter = w
	sw.status = http.StatusOK
	sw.wroteHeader = false
	return sw
}

func (sw *statusWriter) release() {
	sw.ResponseWriter = nil
	statusWriters.Put(sw)
}

// recovery turns a handler panic into a 500 JSON error.
func (s *server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.LogAttrs(r.Context(), slog.LevelError, "handler panic",
				slog.Any("panic", rec),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("request_id", gencache.RequestIDFromContext(r.Context())),
			)
			writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		}()
		next.ServeHTTP(w, r)
	})
}

// requestID propagates a caller-supplied X-Request-Id or mints a UUID v7.
// Oversized IDs are replaced so they cannot bloat log lines.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if vals := r.Header[requestIDHeader]; len(vals) > 0 && vals[0] != "" && len(vals[0]) <= maxRequestIDLen {
			id = vals[0]
		} else {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header()[requestIDHeader] = []string{id}
		next.ServeHTTP(w, r.WithContext(gencache.ContextWithRequestID(r.Context(), id)))
	})
}

// logging emits one line per request. Generate responses also carry the
// cache outcome from the X-Cache header.
func (s *server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := wrapStatus(w)
		defer sw.release()

		next.ServeHTTP(sw, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", gencache.RequestIDFromContext(r.Context())),
		}
		if v := sw.Header()[cacheStatusHeader]; len(v) > 0 {
			attrs = append(attrs, slog.String("cache", v[0]))
		}
		level := slog.LevelInfo
		if sw.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.LogAttrs(r.Context(), level, "request", attrs...)
	})
}

// statusWriter records the first status code written through it.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status, sw.wroteHeader = code, true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
