package models

import "time"

// Account is the credential record owned by the user store.
// The attempt tracker and token issuer only ever read it.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountSummary is the public view of an account returned to clients
type AccountSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// Summary returns the client-facing projection of the account
func (a *Account) Summary() *AccountSummary {
	return &AccountSummary{
		ID:       a.ID,
		Username: a.Username,
		Email:    a.Email,
		Name:     a.Name,
	}
}
