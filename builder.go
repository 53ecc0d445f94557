package marketauth

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
	internalaudit "github.com/tautanid/marketauth/internal/audit"
	"github.com/tautanid/marketauth/internal/limiters"
	internalmetrics "github.com/tautanid/marketauth/internal/metrics"
	"github.com/tautanid/marketauth/internal/rate"
	"github.com/tautanid/marketauth/jwt"
	"github.com/tautanid/marketauth/password"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until the first Engine method call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     AccountStore
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the lockout policy and the
// request throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the persistence implementation.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger used for unexpected failures.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the wiring and returns a ready Engine. A Builder is
// single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}

	hasher, err := password.New(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		SessionTTL:    cfg.JWT.SessionTTL,
		ChallengeTTL:  cfg.JWT.ChallengeTTL,
		VerifiedTTL:   cfg.JWT.VerifiedTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config: cfg,
		store:  b.store,
		hasher: hasher,
		tokens: tokens,
		totp:   newTOTPManager(cfg.TOTP),
		logger: logger,
	}

	engine.lockout = limiters.NewLockout(b.redis, limiters.LockoutConfig{
		Enabled:       cfg.Lockout.Enabled,
		Threshold:     cfg.Lockout.Threshold,
		LockDuration:  cfg.Lockout.LockDuration,
		CounterWindow: cfg.Lockout.CounterWindow,
		Prefix:        cfg.Lockout.RedisPrefix,
	})
	engine.throttle = rate.New(b.redis, rate.Config{
		EnableIPThrottle:      cfg.RateLimit.EnableIPThrottle,
		MaxLoginPerIP:         cfg.RateLimit.MaxLoginPerIP,
		LoginWindow:           cfg.RateLimit.LoginWindow,
		MaxResetPerIdentifier: cfg.RateLimit.MaxResetPerIdentifier,
		MaxResetPerIP:         cfg.RateLimit.MaxResetPerIP,
		ResetWindow:           cfg.RateLimit.ResetWindow,
	})
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = internalmetrics.New(internalmetrics.Config{
		Enabled: cfg.Metrics.Enabled,
	})

	b.built = true

	return engine, nil
}
