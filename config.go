package marketauth

import (
	"errors"
	"time"
)

// Config is the engine configuration. Instances are cloned by the Builder;
// mutating a Config after Build has no effect on a running engine.
type Config struct {
	JWT           JWTConfig
	Password      PasswordConfig
	Lockout       LockoutConfig
	TOTP          TOTPConfig
	PasswordReset PasswordResetConfig
	RateLimit     RateLimitConfig
	Account       AccountConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls session, challenge, and verified-marker tokens.
type JWTConfig struct {
	SessionTTL   time.Duration // full session token lifetime
	ChallengeTTL time.Duration // two-factor challenge token lifetime
	VerifiedTTL  time.Duration // two-factor verified marker lifetime

	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters and the minimum-length rule.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the brute-force lockout policy.
type LockoutConfig struct {
	Enabled       bool
	Threshold     int
	LockDuration  time.Duration
	CounterWindow time.Duration // 0 = LockDuration
	RedisPrefix   string
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls time-based two-factor verification.
type TOTPConfig struct {
	Enabled   bool
	Issuer    string
	Period    int // seconds per time-step
	Digits    int
	Skew      int    // accepted steps either side of now
	Algorithm string // "SHA1" (default), "SHA256", "SHA512"

	BackupCodeCount int
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig controls the reset-token lifecycle.
type PasswordResetConfig struct {
	Enabled  bool
	ResetTTL time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the Redis fixed-window request throttles.
type RateLimitConfig struct {
	EnableIPThrottle bool
	MaxLoginPerIP    int
	LoginWindow      time.Duration

	MaxResetPerIdentifier int
	MaxResetPerIP         int
	ResetWindow           time.Duration
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig controls registration defaults.
type AccountConfig struct {
	DefaultRole       Role
	DefaultMembership Membership
	AllowedRoles      []Role // roles self-registration may pick
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the production defaults: 7-day sessions, 5-minute
// challenges, 24-hour verified markers, five failures per one-hour lock,
// ±2-step TOTP window, 30-minute reset tokens.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SessionTTL:    7 * 24 * time.Hour,
			ChallengeTTL:  5 * time.Minute,
			VerifiedTTL:   24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "marketauth",
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
		},
		Lockout: LockoutConfig{
			Enabled:      true,
			Threshold:    5,
			LockDuration: time.Hour,
		},
		TOTP: TOTPConfig{
			Enabled:         true,
			Issuer:          "Tautan ID",
			Period:          30,
			Digits:          6,
			Skew:            2,
			Algorithm:       "SHA1",
			BackupCodeCount: 10,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:  true,
			ResetTTL: 30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			EnableIPThrottle:      true,
			MaxLoginPerIP:         100,
			LoginWindow:           15 * time.Minute,
			MaxResetPerIdentifier: 3,
			MaxResetPerIP:         10,
			ResetWindow:           time.Hour,
		},
		Account: AccountConfig{
			DefaultRole:       RoleBuyer,
			DefaultMembership: MembershipBasic,
			AllowedRoles:      []Role{RoleBuyer, RoleSupplier},
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for internally consistent values.
func (c *Config) Validate() error {
	if c.JWT.SessionTTL <= 0 {
		return errors.New("JWT SessionTTL must be positive")
	}
	if c.JWT.ChallengeTTL <= 0 || c.JWT.ChallengeTTL > time.Hour {
		return errors.New("JWT ChallengeTTL must be positive and short")
	}
	if c.JWT.VerifiedTTL <= 0 {
		return errors.New("JWT VerifiedTTL must be positive")
	}
	if c.Lockout.Enabled {
		if c.Lockout.Threshold < 2 {
			return errors.New("Lockout Threshold must be >= 2")
		}
		if c.Lockout.LockDuration <= 0 {
			return errors.New("Lockout LockDuration must be positive")
		}
	}
	if c.TOTP.Enabled {
		if c.TOTP.Period < 15 || c.TOTP.Period > 120 {
			return errors.New("TOTP Period must be between 15 and 120 seconds")
		}
		if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
			return errors.New("TOTP Digits must be between 6 and 8")
		}
		if c.TOTP.Skew < 0 || c.TOTP.Skew > 4 {
			return errors.New("TOTP Skew must be between 0 and 4 steps")
		}
		if c.TOTP.BackupCodeCount < 1 || c.TOTP.BackupCodeCount > 32 {
			return errors.New("TOTP BackupCodeCount must be between 1 and 32")
		}
	}
	if c.PasswordReset.Enabled && c.PasswordReset.ResetTTL <= 0 {
		return errors.New("PasswordReset ResetTTL must be positive")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}
	if !c.Account.DefaultRole.Valid() {
		return errors.New("Account DefaultRole must be a known role")
	}
	if c.Account.DefaultMembership.Level() == 0 {
		return errors.New("Account DefaultMembership must be a known tier")
	}
	for _, r := range c.Account.AllowedRoles {
		if !r.Valid() {
			return errors.New("Account AllowedRoles contains an unknown role")
		}
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Account.AllowedRoles = append([]Role(nil), cfg.Account.AllowedRoles...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
