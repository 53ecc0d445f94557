// Package rate enforces fixed-window request throttles on Redis counters.
//
// It replaces the kind of ad hoc per-IP request tracking that lives in
// application memory and breaks as soon as a second server instance starts:
// every window is a shared Redis counter updated with atomic commands.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned when a window's budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable indicates the throttle backend is unreachable.
	ErrRedisUnavailable = errors.New("rate backend unavailable")
)

// Config holds throttle tuning parameters.
type Config struct {
	EnableIPThrottle bool

	MaxLoginPerIP int
	LoginWindow   time.Duration

	MaxResetPerIdentifier int
	MaxResetPerIP         int
	ResetWindow           time.Duration
}

// Limiter enforces per-IP login throttling and per-identifier/per-IP
// password-reset-request throttling.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func loginIPKey(ip string) string {
	return "mrt:login:ip:" + ip
}

func resetIdentifierKey(identifier string) string {
	return "mrt:reset:id:" + identifier
}

func resetIPKey(ip string) string {
	return "mrt:reset:ip:" + ip
}

// AllowLogin records one login attempt from ip and reports whether it is
// within the window budget. An empty ip (no transport context) is never
// throttled.
func (l *Limiter) AllowLogin(ctx context.Context, ip string) error {
	if !l.config.EnableIPThrottle || ip == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, loginIPKey(ip), l.config.LoginWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginPerIP) {
		return ErrRateLimited
	}
	return nil
}

// AllowResetRequest records one password-reset request for the
// identifier+IP pair and reports whether it is within budget. The
// identifier is throttled even when the account does not exist, so the
// throttle response cannot be used for enumeration.
func (l *Limiter) AllowResetRequest(ctx context.Context, identifier, ip string) error {
	if l.config.MaxResetPerIdentifier > 0 && identifier != "" {
		count, err := l.incrementWithTTL(ctx, resetIdentifierKey(identifier), l.config.ResetWindow)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxResetPerIdentifier) {
			return ErrRateLimited
		}
	}

	if l.config.MaxResetPerIP > 0 && ip != "" {
		count, err := l.incrementWithTTL(ctx, resetIPKey(ip), l.config.ResetWindow)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxResetPerIP) {
			return ErrRateLimited
		}
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
