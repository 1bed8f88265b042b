package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/sealor/shop-assistant/pkg/agent"
	"github.com/sealor/shop-assistant/pkg/assistant"
	"github.com/sealor/shop-assistant/pkg/conversation"
	"github.com/sealor/shop-assistant/pkg/render"
)

const maxRequestBodyBytes = 64 << 10

const (
	errorCodeInvalidRequest = "invalid_request"
	errorCodeNotFound       = "not_found"
	errorCodeConflict       = "conflict"
	errorCodeUpstream       = "upstream_error"
	errorCodeRuntime        = "runtime_error"
)

var errInvalidRequest = errors.New("invalid request")

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type sessionResponse struct {
	SessionID string         `json:"session_id"`
	ServerURL string         `json:"server_url"`
	Turns     []turnResponse `json:"turns"`
}

type turnResponse struct {
	Prompt       string               `json:"prompt"`
	ResponseText string               `json:"response_text"`
	Invocations  []invocationResponse `json:"invocations"`
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   time.Time            `json:"finished_at"`
}

// invocationResponse carries the invocation along with the lines the console
// would print for it.
type invocationResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments"`
	Result     any            `json:"result,omitempty"`
	HasResult  bool           `json:"has_result"`
	Call       string         `json:"call"`
	ResultLine string         `json:"result_line,omitempty"`
}

func newTurnResponse(turn conversation.Turn) turnResponse {
	invocations := make([]invocationResponse, 0, len(turn.Invocations))
	for _, inv := range turn.Invocations {
		line, _ := render.Result(inv)
		invocations = append(invocations, invocationResponse{
			ID:         inv.ID,
			Name:       inv.Name,
			Arguments:  inv.Arguments,
			Result:     inv.Result,
			HasResult:  inv.HasResult,
			Call:       render.Call(inv),
			ResultLine: line,
		})
	}
	return turnResponse{
		Prompt:       turn.Prompt,
		ResponseText: turn.ResponseText,
		Invocations:  invocations,
		StartedAt:    turn.StartedAt,
		FinishedAt:   turn.FinishedAt,
	}
}

func newSessionResponse(id string, chat Chat) sessionResponse {
	turns := chat.Transcript()
	out := make([]turnResponse, 0, len(turns))
	for _, turn := range turns {
		out = append(out, newTurnResponse(turn))
	}
	return sessionResponse{SessionID: id, ServerURL: chat.ServerURL(), Turns: out}
}

func invalidRequestError(message string) error {
	return fmt.Errorf("%w: %s", errInvalidRequest, message)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code := mapError(err)
	writeError(w, status, code, err.Error())
}

func mapError(err error) (int, string) {
	var apiErr *openai.Error
	switch {
	case errors.Is(err, errInvalidRequest), errors.Is(err, assistant.ErrEmptyPrompt), errors.Is(err, ErrConnect):
		return http.StatusBadRequest, errorCodeInvalidRequest
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, errorCodeNotFound
	case errors.Is(err, assistant.ErrClosed):
		return http.StatusConflict, errorCodeConflict
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, errorCodeUpstream
	case errors.Is(err, agent.ErrTooManyToolRounds):
		return http.StatusInternalServerError, errorCodeRuntime
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorCodeUpstream
	default:
		return http.StatusInternalServerError, errorCodeRuntime
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return invalidRequestError("request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return invalidRequestError(fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit))
		}
		if errors.Is(err, io.EOF) {
			return invalidRequestError("request body is required")
		}
		return invalidRequestError(fmt.Sprintf("invalid JSON body: %v", err))
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return invalidRequestError("request body must contain exactly one JSON object")
	}

	return nil
}
