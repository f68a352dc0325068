package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/prok/internal/models"
)

// AttemptStore persists per-key failure accounting. Implementations make
// every method atomic per key.
type AttemptStore interface {
	Check(ctx context.Context, key string, now time.Time) (*models.LoginAttemptRecord, error)
	RecordFailure(ctx context.Context, key string, maxAttempts int, lockout time.Duration, now time.Time) (*models.LoginAttemptRecord, bool, error)
	Reset(ctx context.Context, keys ...string) error
	Get(ctx context.Context, key string) (*models.LoginAttemptRecord, error)
	Sweep(ctx context.Context, now time.Time, staleAfter time.Duration) (int, error)
}

// LockoutConfig holds the brute-force thresholds
type LockoutConfig struct {
	MaxAttempts      int
	MaxAttemptsPerIP int
	Duration         time.Duration
	StaleAfter       time.Duration
}

// DefaultLockoutConfig is five failures per identifier, twenty per origin, fifteen minutes
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxAttempts:      5,
		MaxAttemptsPerIP: 20,
		Duration:         15 * time.Minute,
		StaleAfter:       24 * time.Hour,
	}
}

// FailureResult is the tracker state after a failed login
type FailureResult struct {
	Identifier *models.LoginAttemptRecord
	Origin     *models.LoginAttemptRecord
	// IdentifierLocked is true only for the failure that opened the identifier lockout
	IdentifierLocked bool
	OriginLocked     bool
}

// LockoutService tracks failed logins per normalized identifier and per
// origin address. A request is blocked when either key is locked.
type LockoutService struct {
	store  AttemptStore
	config LockoutConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewLockoutService(store AttemptStore, config LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source (tests)
func (s *LockoutService) SetClock(now func() time.Time) {
	s.now = now
}

// IdentifierKey namespaces a normalized identifier in the attempt store
func IdentifierKey(identifier string) string { return "id:" + identifier }

// OriginKey namespaces a client address in the attempt store
func OriginKey(origin string) string { return "ip:" + origin }

// identifierKeys returns the distinct identifier keys for the typed
// identifier and any aliases of the same account, typed identifier first
func identifierKeys(identifier string, aliases []string) []string {
	keys := make([]string, 0, 1+len(aliases))
	seen := make(map[string]struct{}, 1+len(aliases))
	for _, id := range append([]string{identifier}, aliases...) {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, IdentifierKey(id))
	}
	return keys
}

func keysFor(identifier, origin string, aliases []string) []string {
	keys := identifierKeys(identifier, aliases)
	if origin != "" {
		keys = append(keys, OriginKey(origin))
	}
	return keys
}

// Check returns a *models.LockoutError carrying the latest lockout_until
// when any key is locked, and nil otherwise. aliases are the other
// identifiers of the same account. Expired lockouts are cleared as part of
// the check. Store failures are logged and fail open.
func (s *LockoutService) Check(ctx context.Context, identifier, origin string, aliases ...string) error {
	now := s.now()

	var until time.Time
	for _, key := range keysFor(identifier, origin, aliases) {
		rec, err := s.store.Check(ctx, key, now)
		if err != nil {
			s.logger.Error("lockout check failed, allowing attempt", slog.Any("error", err))
			continue
		}
		if rec.IsLocked(now) && rec.LockoutUntil.After(until) {
			until = *rec.LockoutUntil
		}
	}

	if until.IsZero() {
		return nil
	}
	return &models.LockoutError{Until: until}
}

// RecordFailure counts a failed verification against the identifier, every
// alias of the same account, and the origin, so an account has one budget
// whichever identifier the client typed.
// The returned result is never nil; an error joins the store failures.
func (s *LockoutService) RecordFailure(ctx context.Context, identifier, origin string, aliases ...string) (*FailureResult, error) {
	now := s.now()
	result := &FailureResult{}
	var errs []error

	for _, key := range identifierKeys(identifier, aliases) {
		rec, opened, err := s.store.RecordFailure(ctx, key, s.config.MaxAttempts, s.config.Duration, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if result.Identifier == nil || (opened && !result.IdentifierLocked) {
			result.Identifier = rec
		}
		if opened {
			result.IdentifierLocked = true
		}
	}

	if origin != "" {
		rec, opened, err := s.store.RecordFailure(ctx, OriginKey(origin), s.config.MaxAttemptsPerIP, s.config.Duration, now)
		if err != nil {
			errs = append(errs, err)
		} else {
			result.Origin = rec
			result.OriginLocked = opened
		}
	}

	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	return result, nil
}

// RecordSuccess clears the identifier, its aliases and the origin unconditionally
func (s *LockoutService) RecordSuccess(ctx context.Context, identifier, origin string, aliases ...string) error {
	keys := keysFor(identifier, origin, aliases)
	if len(keys) == 0 {
		return nil
	}
	return s.store.Reset(ctx, keys...)
}

// IdentifierStatus returns the raw record for an identifier, nil when clean
func (s *LockoutService) IdentifierStatus(ctx context.Context, identifier string) (*models.LoginAttemptRecord, error) {
	return s.store.Get(ctx, IdentifierKey(identifier))
}

// OriginStatus returns the raw record for an origin address, nil when clean
func (s *LockoutService) OriginStatus(ctx context.Context, origin string) (*models.LoginAttemptRecord, error) {
	return s.store.Get(ctx, OriginKey(origin))
}

// Sweep removes expired and stale records from the store
func (s *LockoutService) Sweep(ctx context.Context) (int, error) {
	return s.store.Sweep(ctx, s.now(), s.config.StaleAfter)
}
