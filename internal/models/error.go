package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login and signup errors
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
)

// ValidationError carries the reason code for a rejected signup or login body.
// It matches ErrValidation with errors.Is.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// LockoutError reports when a locked key becomes usable again.
// It matches ErrAccountLocked with errors.Is.
type LockoutError struct {
	Until time.Time
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account is temporarily locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockoutError) Is(target error) bool {
	return target == ErrAccountLocked
}
