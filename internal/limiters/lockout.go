// Package limiters implements the Redis-backed account lockout policy.
//
// Counter state lives in Redis so that multiple server instances share one
// view of an account's failure history; every update is a single atomic
// Redis command, never a read-modify-write in application memory.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockoutUnavailable indicates the lockout backend is unreachable.
var ErrLockoutUnavailable = errors.New("lockout backend unavailable")

// LockoutConfig holds configuration for the account lockout policy.
type LockoutConfig struct {
	Enabled      bool
	Threshold    int
	LockDuration time.Duration
	// CounterWindow bounds how long a partial failure streak is remembered.
	// Zero means the streak ages out after LockDuration.
	CounterWindow time.Duration
	Prefix        string
}

// Lockout tracks consecutive failed login attempts per account and imposes
// a timed lock once the threshold is reached.
//
// The lock key carries the lock TTL; the attempts key carries the counting
// window. An expired lock simply disappears, so the next failure starts a
// fresh streak at one — the lazy-expiry rule.
type Lockout struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

// NewLockout creates a lockout policy on the given Redis client.
func NewLockout(redisClient redis.UniversalClient, cfg LockoutConfig) *Lockout {
	if cfg.Prefix == "" {
		cfg.Prefix = "malo"
	}
	if cfg.CounterWindow <= 0 {
		cfg.CounterWindow = cfg.LockDuration
	}
	return &Lockout{redis: redisClient, config: cfg}
}

func (l *Lockout) attemptsKey(accountID string) string {
	return l.config.Prefix + ":att:" + accountID
}

func (l *Lockout) lockKey(accountID string) string {
	return l.config.Prefix + ":lock:" + accountID
}

// Status reports whether the account is currently locked and, if so, how
// long remains until the lock expires.
func (l *Lockout) Status(ctx context.Context, accountID string) (bool, time.Duration, error) {
	if !l.config.Enabled || accountID == "" {
		return false, 0, nil
	}

	ttl, err := l.redis.PTTL(ctx, l.lockKey(accountID)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if ttl > 0 {
		return true, ttl, nil
	}
	return false, 0, nil
}

// RecordFailure increments the failure counter for an account. When the
// streak reaches the threshold, the lock key is set for LockDuration and
// the counter is cleared so the next window counts from scratch. Returns
// true when this failure triggered the lock.
func (l *Lockout) RecordFailure(ctx context.Context, accountID string) (bool, error) {
	if !l.config.Enabled || accountID == "" {
		return false, nil
	}

	count, err := l.redis.Incr(ctx, l.attemptsKey(accountID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.attemptsKey(accountID), l.config.CounterWindow).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
	}

	if count < int64(l.config.Threshold) {
		return false, nil
	}

	pipe := l.redis.TxPipeline()
	pipe.Set(ctx, l.lockKey(accountID), "1", l.config.LockDuration)
	pipe.Del(ctx, l.attemptsKey(accountID))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return true, nil
}

// RecordSuccess resets the streak and clears any active lock. Used after a
// successful password verification and for manual operator unlock.
func (l *Lockout) RecordSuccess(ctx context.Context, accountID string) error {
	if !l.config.Enabled || accountID == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.attemptsKey(accountID), l.lockKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// FailureCount returns the current streak length for an account.
func (l *Lockout) FailureCount(ctx context.Context, accountID string) (int, error) {
	if !l.config.Enabled || accountID == "" {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, l.attemptsKey(accountID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), nil
}
