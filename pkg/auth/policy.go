package auth

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinPasswordLen = 8
	MaxPasswordLen = 128
)

// Reason is a machine-readable validation failure code returned to clients
type Reason string

const (
	ReasonMissingFields   Reason = "missing_fields"
	ReasonWeakPassword    Reason = "weak_password"
	ReasonInvalidEmail    Reason = "invalid_email"
	ReasonInvalidUsername Reason = "invalid_username"
)

var emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidatePassword checks the signup password policy: at least 8 characters,
// at least one letter and one digit. Any other characters are allowed.
// Never call this at login.
func ValidatePassword(password string) (Reason, bool) {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLen || n > MaxPasswordLen {
		return ReasonWeakPassword, false
	}

	hasLetter := false
	hasDigit := false
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasLetter || !hasDigit {
		return ReasonWeakPassword, false
	}
	return "", true
}

// ValidateEmail checks the local@domain.tld shape
func ValidateEmail(email string) (Reason, bool) {
	if !emailShape.MatchString(email) {
		return ReasonInvalidEmail, false
	}
	return "", true
}

// ValidateUsername rejects usernames containing '@'. Login resolves an
// identifier against both columns, so a username must never look like an email.
func ValidateUsername(username string) (Reason, bool) {
	if strings.ContainsRune(username, '@') {
		return ReasonInvalidUsername, false
	}
	return "", true
}

// ValidateSignup runs the signup checks in order: required fields, username
// shape, email shape, then password policy. The identifiers must already be
// normalized.
func ValidateSignup(username, email, password string) (Reason, bool) {
	if username == "" || email == "" || password == "" {
		return ReasonMissingFields, false
	}
	if reason, ok := ValidateUsername(username); !ok {
		return reason, false
	}
	if reason, ok := ValidateEmail(email); !ok {
		return reason, false
	}
	return ValidatePassword(password)
}
