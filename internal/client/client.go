// Package client holds the REST clients for the upstream catalog, order and
// auth services.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds every upstream call when no timeout is configured
const DefaultTimeout = 15 * time.Second

// StatusError is returned for non-2xx upstream responses
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("upstream returned %d", e.StatusCode)
}

// HasStatus reports whether err is a StatusError with the given code
func HasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func IsUnauthorized(err error) bool { return HasStatus(err, http.StatusUnauthorized) }
func IsConflict(err error) bool     { return HasStatus(err, http.StatusConflict) }
func IsNotFound(err error) bool     { return HasStatus(err, http.StatusNotFound) }

// base carries what every upstream client shares
type base struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func newBase(baseURL string, timeout time.Duration, logger *zap.Logger) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return base{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// request describes one JSON call
type request struct {
	method  string
	path    string
	body    interface{}
	headers map[string]string
	cookies []*http.Cookie
}

// do sends req and decodes a 2xx body into out (when non-nil). Non-2xx
// responses become a *StatusError with the body's message when present.
func (b base) do(ctx context.Context, req request, out interface{}) (*http.Response, error) {
	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, b.baseURL+req.path, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	for _, c := range req.cookies {
		httpReq.AddCookie(c)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		b.logger.Warn("Upstream request failed",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp, nil
}

// errorMessage extracts "message" (or "error") from a JSON error body
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
