package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error        string     `json:"error"`                   // Machine-readable error code
	Message      string     `json:"message"`                 // Human-readable message
	Details      string     `json:"details,omitempty"`       // Optional additional context
	LockoutUntil *time.Time `json:"lockout_until,omitempty"` // Set only on account_locked
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

// WriteValidationError writes a 400 carrying a signup/login reason code
func WriteValidationError(w http.ResponseWriter, reason, message string) {
	WriteError(w, http.StatusBadRequest, reason, message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteInvalidCredentials(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
}

// WriteLocked writes a 403 with the instant the lockout ends
func WriteLocked(w http.ResponseWriter, message string, until time.Time) {
	until = until.UTC()
	w.Header().Set("Retry-After", retryAfterSeconds(until))
	WriteJSON(w, http.StatusForbidden, ErrorResponse{
		Error:        "account_locked",
		Message:      message,
		LockoutUntil: &until,
	})
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "duplicate_account", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}

func retryAfterSeconds(until time.Time) string {
	secs := int(time.Until(until).Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
