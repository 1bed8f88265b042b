package ucp

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const maxLoggedBody = 2048

// LoggingInterceptor logs every request and response, bodies included, at
// debug level.
func LoggingInterceptor(logger *slog.Logger) Interceptor {
	return func(next http.RoundTripper) http.RoundTripper {
		return &loggingTransport{next: next, logger: logger}
	}
}

type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	var reqBody []byte
	if req.Body != nil && req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			reqBody, _ = io.ReadAll(io.LimitReader(body, maxLoggedBody+1))
			_ = body.Close()
		}
	}

	resp, err := t.next.RoundTrip(req)
	attrs := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
		slog.String("request_id", req.Header.Get("Request-Id")),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	if len(reqBody) > 0 {
		attrs = append(attrs, slog.String("request_body", clip(reqBody)))
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
		t.logger.LogAttrs(req.Context(), slog.LevelDebug, "ucp request failed", attrs...)
		return nil, err
	}

	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(respBody))
	if readErr != nil {
		return nil, readErr
	}

	attrs = append(attrs,
		slog.Int("status", resp.StatusCode),
		slog.String("response_body", clip(respBody)),
	)
	t.logger.LogAttrs(req.Context(), slog.LevelDebug, "ucp request", attrs...)
	return resp, nil
}

func clip(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "..."
	}
	return string(b)
}
