package http_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	pkghttp "github.com/BradenHooton/prok/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteError(w, 400, "test_error", "Test message")

	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Equal(t, "test_error", resp.Error)
	assert.Equal(t, "Test message", resp.Message)
	assert.Empty(t, resp.Details)
	assert.Nil(t, resp.LockoutUntil)
}

func TestWriteErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteErrorWithDetails(w, 400, "test_error", "Test message", "Additional details")

	var resp pkghttp.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "Additional details", resp.Details)
}

func TestWriteValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteValidationError(w, "weak_password", "Password does not meet requirements")

	assert.Equal(t, 400, w.Code)

	var resp pkghttp.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "weak_password", resp.Error)
}

func TestWriteInvalidCredentials(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteInvalidCredentials(w)

	assert.Equal(t, 401, w.Code)

	var resp pkghttp.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "invalid_credentials", resp.Error)
	assert.Equal(t, "Invalid credentials", resp.Message)
}

func TestWriteLocked(t *testing.T) {
	w := httptest.NewRecorder()
	until := time.Now().Add(15 * time.Minute).Truncate(time.Second)

	pkghttp.WriteLocked(w, "Account temporarily locked", until)

	assert.Equal(t, 403, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "account_locked", resp.Error)
	require.NotNil(t, resp.LockoutUntil)
	assert.True(t, until.Equal(*resp.LockoutUntil))
}

func TestWriteLocked_PastInstantRetryAfterFloor(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteLocked(w, "locked", time.Now().Add(-time.Minute))

	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestWriteConflict(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteConflict(w, "Account already exists")

	assert.Equal(t, 409, w.Code)

	var resp pkghttp.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "duplicate_account", resp.Error)
}

func TestWriteTooManyRequests(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteTooManyRequests(w, "Too many requests")

	assert.Equal(t, 429, w.Code)

	var resp pkghttp.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "rate_limit_exceeded", resp.Error)
}

func TestWriteInternalError(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteInternalError(w, "Internal server error")

	assert.Equal(t, 500, w.Code)

	var resp pkghttp.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "internal_error", resp.Error)
}

func TestErrorResponseJSON_OmitsEmptyFields(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteUnauthorized(w, "Invalid token")

	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)

	assert.Equal(t, "unauthorized", resp["error"])
	assert.NotContains(t, resp, "details")
	assert.NotContains(t, resp, "lockout_until")
}
