package models

import (
	"github.com/golang-jwt/jwt/v5"
)

const TokenTypeAccess = "access"

// TokenClaims are the claims of an issued bearer token.
// Subject carries the account ID.
type TokenClaims struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
