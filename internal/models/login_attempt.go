package models

import "time"

// LoginAttemptRecord is the failure accounting for one tracker key
// (a normalized identifier or an origin address).
type LoginAttemptRecord struct {
	Key          string     `json:"key"`
	FailureCount int        `json:"failure_count"`
	LockoutUntil *time.Time `json:"lockout_until,omitempty"`
	LastFailure  time.Time  `json:"last_failure"`
}

// AttemptState is the lockout state of a key at a given instant
type AttemptState string

const (
	AttemptStateClean         AttemptState = "clean"
	AttemptStateWarning       AttemptState = "warning"
	AttemptStateLocked        AttemptState = "locked"
	AttemptStateExpiredLocked AttemptState = "expired_locked"
)

// State classifies the record at now. A nil record is Clean.
func (r *LoginAttemptRecord) State(now time.Time) AttemptState {
	if r == nil || (r.FailureCount == 0 && r.LockoutUntil == nil) {
		return AttemptStateClean
	}
	if r.LockoutUntil != nil {
		if now.Before(*r.LockoutUntil) {
			return AttemptStateLocked
		}
		return AttemptStateExpiredLocked
	}
	return AttemptStateWarning
}

// IsLocked reports whether the record blocks login at now
func (r *LoginAttemptRecord) IsLocked(now time.Time) bool {
	return r.State(now) == AttemptStateLocked
}
