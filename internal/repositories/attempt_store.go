package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/prok/internal/models"
)

// MemoryAttemptStore keeps login attempt records in process memory.
// Every read-modify-write runs under a single mutex, so concurrent
// failures against one key are never lost.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	records map[string]*models.LoginAttemptRecord
}

// NewMemoryAttemptStore creates an empty in-memory attempt store
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		records: make(map[string]*models.LoginAttemptRecord),
	}
}

// Check returns the live record for key, or nil when the key is clean.
// A record whose lockout has passed is removed before returning.
func (s *MemoryAttemptStore) Check(ctx context.Context, key string, now time.Time) (*models.LoginAttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	if rec.State(now) == models.AttemptStateExpiredLocked {
		delete(s.records, key)
		return nil, nil
	}
	return copyRecord(rec), nil
}

// RecordFailure counts one failure against key. When the count reaches
// maxAttempts on an unlocked key, the key is locked until now+lockout and
// opened is true. Failures against an already locked key do not extend it.
func (s *MemoryAttemptStore) RecordFailure(ctx context.Context, key string, maxAttempts int, lockout time.Duration, now time.Time) (*models.LoginAttemptRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if ok && rec.State(now) == models.AttemptStateExpiredLocked {
		ok = false
	}
	if !ok {
		rec = &models.LoginAttemptRecord{Key: key}
		s.records[key] = rec
	}

	rec.FailureCount++
	rec.LastFailure = now

	opened := false
	if rec.LockoutUntil == nil && rec.FailureCount >= maxAttempts {
		until := now.Add(lockout)
		rec.LockoutUntil = &until
		opened = true
	}

	return copyRecord(rec), opened, nil
}

// Reset removes the records for all given keys
func (s *MemoryAttemptStore) Reset(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.records, key)
	}
	return nil
}

// Get returns a snapshot of the record without applying expiry
func (s *MemoryAttemptStore) Get(ctx context.Context, key string) (*models.LoginAttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

// Sweep drops records whose lockout has passed and unlocked records
// whose last failure is older than staleAfter. It returns the number removed.
func (s *MemoryAttemptStore) Sweep(ctx context.Context, now time.Time, staleAfter time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		switch rec.State(now) {
		case models.AttemptStateExpiredLocked:
		case models.AttemptStateLocked:
			continue
		default:
			if now.Sub(rec.LastFailure) < staleAfter {
				continue
			}
		}
		delete(s.records, key)
		removed++
	}
	return removed, nil
}

// Len reports the number of tracked keys
func (s *MemoryAttemptStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func copyRecord(rec *models.LoginAttemptRecord) *models.LoginAttemptRecord {
	out := *rec
	if rec.LockoutUntil != nil {
		until := *rec.LockoutUntil
		out.LockoutUntil = &until
	}
	return &out
}
