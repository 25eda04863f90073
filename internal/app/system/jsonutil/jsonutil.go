// Package jsonutil provides helper functions for JSON API responses.
//
// Use these helpers in API handlers to ensure consistent JSON responses
// with proper Content-Type headers and error formatting.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultBodyLimit caps request bodies read through ReadBody and Decode.
const DefaultBodyLimit = 1 << 20

// ErrBodyTooLarge is returned when a request body exceeds its limit.
var ErrBodyTooLarge = errors.New("request body too large")

// JSON writes a JSON response with the given status code.
//
// Usage:
//
//	jsonutil.JSON(w, http.StatusAccepted, map[string]any{
//	    "accepted": n,
//	    "stored":   stored,
//	})
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// OK writes a 200 OK JSON response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// NoContent writes a 204 No Content response (no body).
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes an error response with the given status code.
// The response body is {"error": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// Unauthorized writes a 401 Unauthorized error response.
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, message)
}

// Forbidden writes a 403 Forbidden error response.
func Forbidden(w http.ResponseWriter, message string) {
	Error(w, http.StatusForbidden, message)
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

// InternalError writes a 500 Internal Server Error response.
// Do not expose internal details to clients - log the actual error separately.
func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, message)
}

// ReadBody reads the whole request body, failing with ErrBodyTooLarge past
// limit bytes. limit <= 0 means DefaultBodyLimit.
func ReadBody(r *http.Request, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}

// Decode reads and decodes JSON from the request body into v, rejecting
// bodies over DefaultBodyLimit.
//
// Usage:
//
//	var input loginInput
//	if err := jsonutil.Decode(r, &input); err != nil {
//	    jsonutil.BadRequest(w, err.Error())
//	    return
//	}
func Decode(r *http.Request, v any) error {
	data, err := ReadBody(r, DefaultBodyLimit)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
