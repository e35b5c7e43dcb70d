// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/threadsync/internal/logging"
)

// APIResponse is the envelope every HTTP endpoint outside /ws replies with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError is the machine-readable half of a failed response.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// APIMeta travels with every response so probes can be correlated with logs.
type APIMeta struct {
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms,omitempty"`
}

// Error codes reported in APIError.Code.
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

var errorCodes = map[int]string{
	http.StatusNotFound:            ErrCodeNotFound,
	http.StatusMethodNotAllowed:    ErrCodeMethodNotAllowed,
	http.StatusTooManyRequests:     ErrCodeTooManyRequests,
	http.StatusServiceUnavailable:  ErrCodeServiceUnavailable,
	http.StatusInternalServerError: ErrCodeInternalError,
}

// errorCode maps a status to its APIError code. Unlisted 5xx statuses
// collapse to INTERNAL_ERROR and unlisted 4xx to the status text.
func errorCode(status int) string {
	if code, ok := errorCodes[status]; ok {
		return code
	}
	if status >= http.StatusInternalServerError {
		return ErrCodeInternalError
	}
	return http.StatusText(status)
}

// ResponseWriter writes APIResponse envelopes for a single request.
type ResponseWriter struct {
	w         http.ResponseWriter
	r         *http.Request
	startTime time.Time
}

// NewResponseWriter starts the duration clock for the request.
func NewResponseWriter(w http.ResponseWriter, r *http.Request) *ResponseWriter {
	return &ResponseWriter{w: w, r: r, startTime: time.Now()}
}

// Success writes data with 200.
func (rw *ResponseWriter) Success(data interface{}) {
	rw.Status(http.StatusOK, data)
}

// Status writes data under an explicit status. A readiness probe reports
// 503 this way while still describing each dependency in the body.
func (rw *ResponseWriter) Status(statusCode int, data interface{}) {
	rw.write(statusCode, APIResponse{
		Success: statusCode < http.StatusBadRequest,
		Data:    data,
		Meta:    rw.meta(),
	})
}

// Fail writes an error envelope whose code is derived from statusCode.
func (rw *ResponseWriter) Fail(statusCode int, message string) {
	meta := rw.meta()
	rw.write(statusCode, APIResponse{
		Error: &APIError{
			Code:      errorCode(statusCode),
			Message:   message,
			RequestID: meta.RequestID,
		},
		Meta: meta,
	})
}

// NotFound writes 404 for unrouted paths.
func (rw *ResponseWriter) NotFound(message string) {
	rw.Fail(http.StatusNotFound, message)
}

// MethodNotAllowed writes 405.
func (rw *ResponseWriter) MethodNotAllowed() {
	rw.Fail(http.StatusMethodNotAllowed, "Method not allowed")
}

// TooManyRequests writes 429 when a client exceeds the upgrade rate.
func (rw *ResponseWriter) TooManyRequests(message string) {
	rw.Fail(http.StatusTooManyRequests, message)
}

// ServiceUnavailable writes 503 while the hub drains.
func (rw *ResponseWriter) ServiceUnavailable(message string) {
	rw.Fail(http.StatusServiceUnavailable, message)
}

func (rw *ResponseWriter) meta() *APIMeta {
	return &APIMeta{
		RequestID:  logging.RequestIDFromContext(rw.r.Context()),
		Timestamp:  time.Now(),
		DurationMs: time.Since(rw.startTime).Milliseconds(),
	}
}

// write commits the status line only after the body encoded.
func (rw *ResponseWriter) write(statusCode int, body APIResponse) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		logging.Error().Err(err).Int("status", statusCode).Msg("Failed to encode API response")
		http.Error(rw.w, `{"success":false,"error":{"code":"INTERNAL_ERROR","message":"encoding failed"}}`, http.StatusInternalServerError)
		return
	}
	rw.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.w.WriteHeader(statusCode)
	if _, err := rw.w.Write(buf.Bytes()); err != nil {
		logging.Debug().Err(err).Msg("Client went away before API response was written")
	}
}
