package web

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const sessionsPrefix = "/api/sessions/"

// accessLog logs one line per request once it has been served. Server
// errors are logged as errors, client errors as warnings and health checks
// only at debug level.
func accessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w}
		began := time.Now()
		next.ServeHTTP(rec, r)

		level := accessLevel(r.URL.Path, rec.status())
		if !logger.Enabled(r.Context(), level) {
			return
		}
		attrs := make([]slog.Attr, 0, 6)
		attrs = append(attrs,
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status()),
			slog.Int64("bytes", rec.size),
			slog.Duration("duration", time.Since(began)),
		)
		if id := sessionIDFromPath(r.URL.Path); id != "" {
			attrs = append(attrs, slog.String("session_id", id))
		}
		msg := "request served"
		if rec.hijacked {
			msg = "websocket closed"
		}
		logger.LogAttrs(r.Context(), level, msg, attrs...)
	})
}

func accessLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case path == "/healthz" || path == "/readyz":
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// sessionIDFromPath returns the {id} segment of /api/sessions/{id}/...
func sessionIDFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, sessionsPrefix)
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	return id
}

// responseRecorder notes the status code and body size written through it.
type responseRecorder struct {
	http.ResponseWriter
	code     int
	size     int64
	hijacked bool
}

func (rec *responseRecorder) status() int {
	switch {
	case rec.hijacked:
		return http.StatusSwitchingProtocols
	case rec.code == 0:
		return http.StatusOK
	}
	return rec.code
}

func (rec *responseRecorder) WriteHeader(code int) {
	if rec.code == 0 {
		rec.code = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *responseRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.size += int64(n)
	return n, err
}

func (rec *responseRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is needed by the websocket upgrader.
func (rec *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("access log: %T cannot be hijacked", rec.ResponseWriter)
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		rec.hijacked = true
	}
	return conn, rw, err
}

func (rec *responseRecorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }
