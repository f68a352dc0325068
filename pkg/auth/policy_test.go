package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"letters and digits", "abcdef12", true},
		{"symbols allowed", "p@ss-w0rd!", true},
		{"exactly eight", "a1a1a1a1", true},
		{"unicode letters", "пароль12", true},
		{"six characters", "abc123", false},
		{"seven characters", "abcde12", false},
		{"no digit", "abcdefgh", false},
		{"no letter", "12345678", false},
		{"symbols and digits only", "!!!!1234", false},
		{"empty", "", false},
		{"too long", string(make([]byte, MaxPasswordLen+1)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := ValidatePassword(tt.password)
			assert.Equal(t, tt.valid, ok)
			if tt.valid {
				assert.Empty(t, reason)
			} else {
				assert.Equal(t, ReasonWeakPassword, reason)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"alice@example.com", true},
		{"a.b-c@sub.example.co", true},
		{"not-an-email", false},
		{"alice@example", false},
		{"@example.com", false},
		{"alice@@example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			reason, ok := ValidateEmail(tt.email)
			assert.Equal(t, tt.valid, ok)
			if !tt.valid {
				assert.Equal(t, ReasonInvalidEmail, reason)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	for _, u := range []string{"alice", "alice_01", "alice.smith", "a-b"} {
		_, ok := ValidateUsername(u)
		assert.True(t, ok, u)
	}
	for _, u := range []string{"victim@example.com", "@alice", "alice@"} {
		reason, ok := ValidateUsername(u)
		assert.False(t, ok, u)
		assert.Equal(t, ReasonInvalidUsername, reason)
	}
}

func TestValidateSignup_Order(t *testing.T) {
	tests := []struct {
		name     string
		username string
		email    string
		password string
		reason   Reason
		ok       bool
	}{
		{"missing username", "", "alice@example.com", "abcdef12", ReasonMissingFields, false},
		{"missing password", "alice", "alice@example.com", "", ReasonMissingFields, false},
		{"username shaped like an email", "victim@example.com", "mallory@example.com", "abcdef12", ReasonInvalidUsername, false},
		{"invalid username beats invalid email", "a@b", "not-an-email", "abc", ReasonInvalidUsername, false},
		{"invalid email beats weak password", "alice", "not-an-email", "abc", ReasonInvalidEmail, false},
		{"invalid email with valid password", "alice", "not-an-email", "abcdef12", ReasonInvalidEmail, false},
		{"weak password", "alice", "alice@example.com", "abc123", ReasonWeakPassword, false},
		{"accepted", "alice", "alice@example.com", "abcdef12", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := ValidateSignup(tt.username, tt.email, tt.password)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}
