package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/prok/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingSecret = errors.New("token signing secret is empty")
	ErrInvalidToken  = errors.New("invalid token")
)

// IssuedToken is a freshly signed bearer token
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenManager signs and validates HS256 access tokens
type TokenManager struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewTokenManager creates a TokenManager. An empty secret is rejected so
// the service never signs with a zero key.
func NewTokenManager(secret string, expiry time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if expiry <= 0 {
		return nil, fmt.Errorf("token expiry must be positive, got %s", expiry)
	}
	return &TokenManager{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}, nil
}

// SetClock overrides the time source (tests)
func (tm *TokenManager) SetClock(now func() time.Time) {
	tm.now = now
}

// GenerateAccessToken issues a token whose subject is the account ID
func (tm *TokenManager) GenerateAccessToken(account *models.Account) (*IssuedToken, error) {
	if account == nil || account.ID == "" {
		return nil, fmt.Errorf("cannot issue token: %w", models.ErrBadRequest)
	}

	now := tm.now()
	expiresAt := now.Add(tm.expiry)

	claims := &models.TokenClaims{
		Type:     models.TokenTypeAccess,
		UserID:   account.ID,
		Username: account.Username,
		Email:    account.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   account.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &IssuedToken{Token: signed, ExpiresAt: expiresAt.Truncate(time.Second)}, nil
}

// ValidateToken verifies signature, algorithm, time claims and type.
// Any failure yields an error wrapping ErrInvalidToken.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(tm.now),
	)

	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type != models.TokenTypeAccess {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrInvalidToken, claims.Type)
	}
	if claims.Subject == "" || claims.UserID != claims.Subject {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims, nil
}
