package repositories

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/prok/internal/models"
	"github.com/redis/go-redis/v9"
)

// Each record is a hash {count, until, last} with millisecond timestamps.
// until is 0 while the key is unlocked.

var checkAttemptScript = redis.NewScript(`
local vals = redis.call('HMGET', KEYS[1], 'count', 'until', 'last')
if not vals[1] then
  return {0, 0, 0}
end
local now = tonumber(ARGV[1])
local until_ms = tonumber(vals[2] or '0')
if until_ms > 0 and now >= until_ms then
  redis.call('DEL', KEYS[1])
  return {0, 0, 0}
end
return {tonumber(vals[1]), until_ms, tonumber(vals[3] or '0')}
`)

var recordFailureScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local lockout = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local until_ms = tonumber(redis.call('HGET', KEYS[1], 'until') or '0')
if until_ms > 0 and now >= until_ms then
  redis.call('DEL', KEYS[1])
  until_ms = 0
end
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('HSET', KEYS[1], 'last', now)
local opened = 0
if until_ms == 0 and count >= max then
  until_ms = now + lockout
  redis.call('HSET', KEYS[1], 'until', until_ms)
  opened = 1
end
redis.call('HSETNX', KEYS[1], 'until', 0)
redis.call('PEXPIRE', KEYS[1], ttl + lockout)
return {count, until_ms, now, opened}
`)

// RedisAttemptStore keeps login attempt records in Redis so several API
// instances share one lockout view. Read-modify-write steps run as Lua
// scripts and are atomic per key. Records expire through key TTLs.
type RedisAttemptStore struct {
	client     redis.UniversalClient
	prefix     string
	staleAfter time.Duration
}

// NewRedisAttemptStore creates a store that namespaces keys under prefix.
// staleAfter bounds how long an unlocked record survives after its last failure.
func NewRedisAttemptStore(client redis.UniversalClient, prefix string, staleAfter time.Duration) *RedisAttemptStore {
	return &RedisAttemptStore{
		client:     client,
		prefix:     prefix,
		staleAfter: staleAfter,
	}
}

func (s *RedisAttemptStore) key(key string) string {
	return s.prefix + ":" + key
}

// Check returns the live record for key, or nil when the key is clean
func (s *RedisAttemptStore) Check(ctx context.Context, key string, now time.Time) (*models.LoginAttemptRecord, error) {
	vals, err := checkAttemptScript.Run(ctx, s.client, []string{s.key(key)}, now.UnixMilli()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("attempt store: check %q: %w", key, err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("attempt store: check %q: unexpected reply length %d", key, len(vals))
	}
	if vals[0] == 0 {
		return nil, nil
	}
	return buildRecord(key, vals[0], vals[1], vals[2]), nil
}

// RecordFailure counts one failure against key and opens a lockout at the threshold
func (s *RedisAttemptStore) RecordFailure(ctx context.Context, key string, maxAttempts int, lockout time.Duration, now time.Time) (*models.LoginAttemptRecord, bool, error) {
	vals, err := recordFailureScript.Run(ctx, s.client, []string{s.key(key)},
		now.UnixMilli(), maxAttempts, lockout.Milliseconds(), s.staleAfter.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, false, fmt.Errorf("attempt store: record failure %q: %w", key, err)
	}
	if len(vals) != 4 {
		return nil, false, fmt.Errorf("attempt store: record failure %q: unexpected reply length %d", key, len(vals))
	}
	return buildRecord(key, vals[0], vals[1], vals[2]), vals[3] == 1, nil
}

// Reset removes the records for all given keys
func (s *RedisAttemptStore) Reset(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("attempt store: reset: %w", err)
	}
	return nil
}

// Get returns a snapshot of the record without applying expiry
func (s *RedisAttemptStore) Get(ctx context.Context, key string) (*models.LoginAttemptRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("attempt store: get %q: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	count, _ := strconv.ParseInt(fields["count"], 10, 64)
	until, _ := strconv.ParseInt(fields["until"], 10, 64)
	last, _ := strconv.ParseInt(fields["last"], 10, 64)
	return buildRecord(key, count, until, last), nil
}

// Sweep is a no-op: Redis expires records through their TTL
func (s *RedisAttemptStore) Sweep(ctx context.Context, now time.Time, staleAfter time.Duration) (int, error) {
	return 0, nil
}

func buildRecord(key string, count, untilMs, lastMs int64) *models.LoginAttemptRecord {
	rec := &models.LoginAttemptRecord{
		Key:          key,
		FailureCount: int(count),
	}
	if lastMs > 0 {
		rec.LastFailure = time.UnixMilli(lastMs).UTC()
	}
	if untilMs > 0 {
		until := time.UnixMilli(untilMs).UTC()
		rec.LockoutUntil = &until
	}
	return rec
}
