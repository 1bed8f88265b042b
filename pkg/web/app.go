// Package web serves the browser chat page and its JSON and websocket API.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
)

type Options struct {
	Addr             string
	DefaultServerURL string
}

// App owns the session registry and HTTP server lifecycle.
type App struct {
	logger   *slog.Logger
	sessions *Sessions
	server   *http.Server
	ready    atomic.Bool
}

func New(opts Options, sessions *Sessions, logger *slog.Logger) (*App, error) {
	if opts.Addr == "" {
		return nil, errors.New("new app: empty Addr")
	}
	if sessions == nil {
		return nil, errors.New("new app: nil sessions")
	}
	if logger == nil {
		return nil, errors.New("new app: nil logger")
	}

	a := &App{
		logger:   logger,
		sessions: sessions,
	}

	apiRouter := newRouter(&handlers{
		sessions:         sessions,
		defaultServerURL: opts.DefaultServerURL,
		logger:           logger,
	})
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/readyz", a.handleReadyz)
	mux.Handle("/", apiRouter)
	a.server = &http.Server{
		Addr:    opts.Addr,
		Handler: accessLog(logger, mux),
	}

	return a, nil
}

// Handler returns the app's routes with request logging.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Start() error {
	a.ready.Store(true)
	a.logger.Info("listening", "addr", a.server.Addr)

	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	a.ready.Store(false)
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return errors.New("shutdown: nil context")
	}
	a.ready.Store(false)
	defer a.sessions.CloseAll()

	err := a.server.Shutdown(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		a.logger.Warn("graceful shutdown timed out; forcing connection close")
		if closeErr := a.server.Close(); closeErr != nil {
			return fmt.Errorf("shutdown timeout and forced close failed: %w", errors.Join(err, closeErr))
		}
		return nil
	}
	return err
}

// MarkReady is used when the handler is served by something other than
// Start.
func (a *App) MarkReady() {
	a.ready.Store(true)
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writePlain(w, http.StatusOK, "ok")
}

func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !a.ready.Load() {
		writePlain(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	if err := a.sessions.Ping(r.Context()); err != nil {
		a.logger.Warn("store not reachable", "error", err)
		writePlain(w, http.StatusServiceUnavailable, "store not reachable")
		return
	}
	writePlain(w, http.StatusOK, "ready")
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
