/**
 * @description
 * Redis-backed attempt store for the abuse-protection layer. One hash per
 * identifier (client IP or account email) carries the failed-login counter,
 * the lifetime blocked counter, and the lockout deadline. Request-rate
 * counting uses a separate fixed-window counter key per IP.
 *
 * All mutations run as Lua scripts so concurrent requests observe a single
 * atomic increment-and-check, never a read-modify-write race.
 */

package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pouchpay/wallet-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

var loginFailureScript = redis.NewScript(`
local attempts = redis.call("HINCRBY", KEYS[1], "attempts", 1)
redis.call("HSET", KEYS[1], "last_attempt", ARGV[3])
local timeout = 0
if attempts >= tonumber(ARGV[1]) then
  timeout = tonumber(ARGV[3]) + tonumber(ARGV[2])
  redis.call("HSET", KEYS[1], "attempts", 0, "timeout_until", timeout)
  redis.call("HINCRBY", KEYS[1], "blocked_count", 1)
  attempts = 0
end
local blocked = redis.call("HGET", KEYS[1], "blocked_count")
return {attempts, timeout, tonumber(blocked) or 0}
`)

var requestWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[2])
end
if current > tonumber(ARGV[1]) then
  redis.call("HSET", KEYS[2], "timeout_until", tonumber(ARGV[4]) + tonumber(ARGV[3]), "last_attempt", ARGV[4])
  if current == tonumber(ARGV[1]) + 1 then
    redis.call("HINCRBY", KEYS[2], "blocked_count", 1)
  end
  return {current, tonumber(ARGV[3])}
end
return {current, ttl}
`)

// RedisAttemptStore implements the attempt ledger on Redis.
type RedisAttemptStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisAttemptStore(client redis.UniversalClient, prefix string) *RedisAttemptStore {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "wallet"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisAttemptStore{
		client: client,
		prefix: trimmedPrefix,
	}
}

func (r *RedisAttemptStore) attemptsKey(identifier string) string {
	return fmt.Sprintf("%s:attempts:%s", r.prefix, identifier)
}

func (r *RedisAttemptStore) windowKey(identifier string) string {
	return fmt.Sprintf("%s:rl:%s", r.prefix, identifier)
}

// RegisterFailure increments the failed-attempt counter for the identifier.
// When the counter reaches the threshold the script resets it, stamps the
// lockout deadline, and bumps the lifetime blocked counter in one round trip.
func (r *RedisAttemptStore) RegisterFailure(ctx context.Context, identifier string, threshold int, lockout time.Duration) (*domain.AttemptState, error) {
	now := time.Now().UTC()
	rawResult, err := loginFailureScript.Run(ctx, r.client,
		[]string{r.attemptsKey(identifier)},
		threshold, lockout.Milliseconds(), now.UnixMilli(),
	).Result()
	if err != nil {
		return nil, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 3 {
		return nil, fmt.Errorf("unexpected redis attempt response shape: %T", rawResult)
	}
	attempts, _ := values[0].(int64)
	timeoutMs, _ := values[1].(int64)
	blocked, _ := values[2].(int64)

	state := &domain.AttemptState{
		Identifier:   identifier,
		Attempts:     int(attempts),
		BlockedCount: int(blocked),
		LastAttempt:  now,
	}
	if timeoutMs > 0 {
		until := time.UnixMilli(timeoutMs).UTC()
		state.TimeoutUntil = &until
	}
	return state, nil
}

// Reset deletes the identifier's attempt record. Called after a successful
// login so the counter always restarts from zero.
func (r *RedisAttemptStore) Reset(ctx context.Context, identifier string) error {
	return r.client.Del(ctx, r.attemptsKey(identifier)).Err()
}

// Status reads the identifier's attempt record. A missing record returns nil
// state, meaning the identifier is clear.
func (r *RedisAttemptStore) Status(ctx context.Context, identifier string) (*domain.AttemptState, error) {
	fields, err := r.client.HGetAll(ctx, r.attemptsKey(identifier)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	state := &domain.AttemptState{Identifier: identifier}
	if v, ok := fields["attempts"]; ok {
		state.Attempts, _ = strconv.Atoi(v)
	}
	if v, ok := fields["blocked_count"]; ok {
		state.BlockedCount, _ = strconv.Atoi(v)
	}
	if v, ok := fields["timeout_until"]; ok {
		if ms, perr := strconv.ParseInt(v, 10, 64); perr == nil && ms > 0 {
			until := time.UnixMilli(ms).UTC()
			state.TimeoutUntil = &until
		}
	}
	if v, ok := fields["last_attempt"]; ok {
		if ms, perr := strconv.ParseInt(v, 10, 64); perr == nil && ms > 0 {
			state.LastAttempt = time.UnixMilli(ms).UTC()
		}
	}
	return state, nil
}

// ConsumeRequest counts one request against the identifier's fixed window.
// Exceeding the limit stamps a block on the identifier's attempt record; the
// returned retry-after covers the block duration in that case, otherwise the
// remaining window.
func (r *RedisAttemptStore) ConsumeRequest(ctx context.Context, identifier string, limit int, window, block time.Duration) (int, time.Duration, error) {
	if limit <= 0 || window <= 0 {
		return 0, 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	rawResult, err := requestWindowScript.Run(ctx, r.client,
		[]string{r.windowKey(identifier), r.attemptsKey(identifier)},
		limit, windowMs, block.Milliseconds(), time.Now().UTC().UnixMilli(),
	).Result()
	if err != nil {
		return 0, 0, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return int(count), 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	return int(count), time.Duration(ttlMs) * time.Millisecond, nil
}
