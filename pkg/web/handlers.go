package web

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

const maxWSMessageBytes = 64 << 10

type handlers struct {
	sessions         *Sessions
	defaultServerURL string
	logger           *slog.Logger
}

type createSessionRequest struct {
	ServerURL string `json:"server_url"`
}

type sendMessageRequest struct {
	Prompt string `json:"prompt"`
}

type wsMessage struct {
	Type  string        `json:"type"`
	Turn  *turnResponse `json:"turn,omitempty"`
	Error *apiError     `json:"error,omitempty"`
}

func newRouter(h *handlers) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("POST /api/sessions", h.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/clear", h.handleClearSession)
	mux.HandleFunc("POST /api/sessions/{id}/messages", h.handleSendMessage)
	mux.HandleFunc("GET /api/sessions/{id}/ws", h.handleWebSocket)
	return mux
}

func (h *handlers) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderPage(w, h.defaultServerURL); err != nil {
		h.logger.Error("render page", "error", err)
	}
}

func (h *handlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	var req createSessionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeMappedError(w, err)
		return
	}
	serverURL := strings.TrimSpace(req.ServerURL)
	if serverURL == "" {
		serverURL = h.defaultServerURL
	}

	id, chat, err := h.sessions.Create(r.Context(), serverURL)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(id, chat))
}

func (h *handlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	chat, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(id, chat))
}

func (h *handlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeMappedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.sessions.Clear(r.Context(), id); err != nil {
		writeMappedError(w, err)
		return
	}
	chat, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(id, chat))
}

func (h *handlers) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	var req sendMessageRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeMappedError(w, err)
		return
	}

	turn, err := h.sessions.Send(r.Context(), r.PathValue("id"), req.Prompt)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTurnResponse(turn))
}

// handleWebSocket runs turns for prompts received on the socket until the
// client goes away.
func (h *handlers) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.sessions.Get(r.Context(), id); err != nil {
		writeMappedError(w, err)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: isWebSocketOriginAllowed}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxWSMessageBytes)

	for {
		var req sendMessageRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket closed", "session_id", id, "error", err)
			}
			return
		}

		if err := conn.WriteJSON(wsMessage{Type: "thinking"}); err != nil {
			return
		}
		turn, err := h.sessions.Send(r.Context(), id, req.Prompt)
		if err != nil {
			_, code := mapError(err)
			if err := conn.WriteJSON(wsMessage{Type: "error", Error: &apiError{Code: code, Message: err.Error()}}); err != nil {
				return
			}
			continue
		}
		resp := newTurnResponse(turn)
		if err := conn.WriteJSON(wsMessage{Type: "turn", Turn: &resp}); err != nil {
			return
		}
	}
}

func isWebSocketOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	parsedOrigin, err := url.Parse(origin)
	if err != nil || strings.TrimSpace(parsedOrigin.Host) == "" {
		return false
	}
	return strings.EqualFold(parsedOrigin.Host, r.Host)
}
