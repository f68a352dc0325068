package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/prok/internal/auth"
	"github.com/BradenHooton/prok/internal/models"
	"github.com/BradenHooton/prok/internal/services"
	pkghttp "github.com/BradenHooton/prok/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds verified claims to the request context
func WithAuthContext(req *http.Request, accountID string) *http.Request {
	claims := &models.TokenClaims{
		Type:   models.TokenTypeAccess,
		UserID: accountID,
	}
	claims.Subject = accountID
	ctx := context.WithValue(req.Context(), auth.ClaimsContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc  func(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	SignupFunc func(ctx context.Context, in services.SignupInput) (*models.Account, error)
	MeFunc     func(ctx context.Context, accountID string) (*models.Account, error)
}

func (m *MockAuthService) Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, in)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Signup(ctx context.Context, in services.SignupInput) (*models.Account, error) {
	if m.SignupFunc != nil {
		return m.SignupFunc(ctx, in)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Me(ctx context.Context, accountID string) (*models.Account, error) {
	if m.MeFunc != nil {
		return m.MeFunc(ctx, accountID)
	}
	return nil, models.ErrInternalServer
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err error
}

func (m MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.Err
}
