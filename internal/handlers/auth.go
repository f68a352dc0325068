package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/BradenHooton/prok/internal/auth"
	"github.com/BradenHooton/prok/internal/middleware"
	"github.com/BradenHooton/prok/internal/models"
	"github.com/BradenHooton/prok/internal/services"
	pkgauth "github.com/BradenHooton/prok/pkg/auth"
	pkghttp "github.com/BradenHooton/prok/pkg/http"
)

const maxBodyBytes = 1 << 16

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	Signup(ctx context.Context, in services.SignupInput) (*models.Account, error)
	Me(ctx context.Context, accountID string) (*models.Account, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// Request DTOs

// LoginRequest is the login body. email and username are accepted as
// aliases of username_or_email. Login never rejects a password for its
// shape; the body size cap is the only bound.
type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password" validate:"required"`
}

func (r *LoginRequest) identifier() string {
	switch {
	case r.UsernameOrEmail != "":
		return r.UsernameOrEmail
	case r.Email != "":
		return r.Email
	default:
		return r.Username
	}
}

// SignupRequest is the signup body
type SignupRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
	Name     string `json:"name" validate:"max=255"`
}

// Response DTOs

type LoginResponse struct {
	Token          string                 `json:"token"`
	TokenType      string                 `json:"token_type"`
	ExpiresAt      time.Time              `json:"expires_at"`
	AccountSummary *models.AccountSummary `json:"account_summary"`
}

type SignupResponse struct {
	Message string                 `json:"message"`
	Account *models.AccountSummary `json:"account"`
}

type MeResponse struct {
	AccountSummary *models.AccountSummary `json:"account_summary"`
}

// decodeBody reads a JSON body into dst. Any decoding failure is reported
// as missing_fields, the same as an absent body.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		pkghttp.WriteValidationError(w, string(pkgauth.ReasonMissingFields), "Invalid request body")
		return false
	}
	return true
}

func writeRequestError(w http.ResponseWriter, err error) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, reqErr.Reason, reasonMessage(reqErr.Reason), reqErr.Error())
		return
	}
	pkghttp.WriteBadRequest(w, err.Error())
}

// writeServiceError maps service errors onto HTTP responses
func writeServiceError(w http.ResponseWriter, err error) {
	var valErr *models.ValidationError
	var lockErr *models.LockoutError

	switch {
	case errors.As(err, &valErr):
		pkghttp.WriteValidationError(w, valErr.Reason, reasonMessage(valErr.Reason))
	case errors.As(err, &lockErr):
		pkghttp.WriteLocked(w, "Too many failed login attempts. Please try again later.", lockErr.Until)
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteInvalidCredentials(w)
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "An account with this username or email already exists")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
	case errors.Is(err, models.ErrRateLimitExceeded):
		pkghttp.WriteTooManyRequests(w, "Too many requests, please try again later")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Signup handles account creation
// @Summary Create an account
// @Accept json
// @Param request body SignupRequest true "Signup request"
// @Produce json
// @Success 201 {object} SignupResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/signup [post]
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := ValidateRequest(req); err != nil {
		writeRequestError(w, err)
		return
	}

	account, err := h.service.Signup(r.Context(), services.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Origin:   middleware.ClientIPFromRequest(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, SignupResponse{
		Message: "Account created",
		Account: account.Summary(),
	})
}

// Login handles credential authentication
// @Summary Log in
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 403 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := ValidateRequest(req); err != nil {
		writeRequestError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), services.LoginInput{
		Identifier: req.identifier(),
		Password:   req.Password,
		Origin:     middleware.ClientIPFromRequest(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Token:          result.Token,
		TokenType:      "Bearer",
		ExpiresAt:      result.ExpiresAt.UTC(),
		AccountSummary: result.Account.Summary(),
	})
}

// Me returns the account behind the bearer token
// @Summary Current account
// @Produce json
// @Success 200 {object} MeResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "missing token")
		return
	}

	account, err := h.service.Me(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MeResponse{AccountSummary: account.Summary()})
}
