package marketauth

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/tautanid/marketauth/internal/audit"
	internalmetrics "github.com/tautanid/marketauth/internal/metrics"
)

// Role is the fixed account role enumeration of the marketplace.
type Role string

const (
	// RoleBuyer is the default role for new registrations.
	RoleBuyer Role = "buyer"
	// RoleSupplier marks accounts that list products and carry business data.
	RoleSupplier Role = "supplier"
	// RoleAdmin marks operator accounts.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSupplier, RoleAdmin:
		return true
	}
	return false
}

// Membership is the marketplace membership tier carried in session tokens.
type Membership string

const (
	// MembershipBasic is the default tier for new accounts.
	MembershipBasic Membership = "Basic"
	// MembershipPremium is the mid tier.
	MembershipPremium Membership = "Premium"
	// MembershipPremiumPlus is the top tier.
	MembershipPremiumPlus Membership = "Premium+"
)

// Level returns the ordering of the tier (higher means more access).
// Unknown tiers rank below Basic.
func (m Membership) Level() int {
	switch m {
	case MembershipBasic:
		return 1
	case MembershipPremium:
		return 2
	case MembershipPremiumPlus:
		return 3
	}
	return 0
}

// AtLeast reports whether m grants at least the access of required.
func (m Membership) AtLeast(required Membership) bool {
	return m.Level() >= required.Level()
}

// BackupCodeRecord stores the SHA-256 hash of a single backup code.
// The plaintext is never persisted.
type BackupCodeRecord struct {
	Hash [32]byte
}

// AccountRecord is the full account record exchanged with [AccountStore].
// It carries credential state only; marketplace profile data stays in the
// caller's own schema.
type AccountRecord struct {
	ID                string
	FullName          string
	Email             string
	Phone             string
	PasswordHash      string
	PasswordChangedAt time.Time
	Role              Role
	Membership        Membership

	TwoFactorEnabled bool
	TwoFactorSecret  []byte

	Active      bool
	Blocked     bool
	BlockReason string

	ResetTokenHash      []byte
	ResetTokenExpiresAt time.Time
}

// CreateAccountInput is the input for [AccountStore.CreateAccount].
// Email is already lowercased and PasswordHash already computed.
type CreateAccountInput struct {
	ID                string
	FullName          string
	Email             string
	Phone             string
	PasswordHash      string
	PasswordChangedAt time.Time
	Role              Role
	Membership        Membership
	BusinessName      string
	BusinessType      string
}

// AccountStore is the persistence interface callers must implement to
// integrate marketauth with their database. Lookups for missing records
// return [ErrAccountNotFound]; CreateAccount returns [ErrAccountExists] on
// an email or phone collision. Every mutation must be a single atomic
// operation against the backing store (no read-modify-write in the caller).
type AccountStore interface {
	CreateAccount(ctx context.Context, input CreateAccountInput) (AccountRecord, error)
	AccountByID(ctx context.Context, id string) (AccountRecord, error)
	AccountByEmail(ctx context.Context, email string) (AccountRecord, error)
	AccountByPhone(ctx context.Context, phone string) (AccountRecord, error)
	// AccountByResetTokenHash matches the stored reset-token hash only; the
	// engine enforces the expiry window.
	AccountByResetTokenHash(ctx context.Context, hash [32]byte) (AccountRecord, error)

	UpdatePasswordHash(ctx context.Context, id, newHash string, changedAt time.Time) error
	SetResetToken(ctx context.Context, id string, hash [32]byte, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id string) error

	EnableTwoFactor(ctx context.Context, id string, secret []byte, codes []BackupCodeRecord) error
	DisableTwoFactor(ctx context.Context, id string) error
	ReplaceBackupCodes(ctx context.Context, id string, codes []BackupCodeRecord) error
	// ConsumeBackupCode atomically removes the code with the given hash and
	// reports whether it existed. A code is consumable exactly once.
	ConsumeBackupCode(ctx context.Context, id string, hash [32]byte) (bool, error)

	SetBlocked(ctx context.Context, id string, blocked bool, reason string) error
}

// RegisterRequest is the input for [Engine.Register]. Field shapes are
// validated by the transport layer; the engine checks business rules only.
type RegisterRequest struct {
	FullName     string
	Email        string
	Phone        string
	Password     string
	Role         Role
	BusinessName string
	BusinessType string
}

// RegisterResult is returned by [Engine.Register].
type RegisterResult struct {
	AccountID string
	Email     string
	Role      Role
}

// LoginResult is returned by [Engine.Login]. Exactly one of Token or
// ChallengeToken is set: accounts with two-factor enabled receive a
// short-lived challenge token and must call [Engine.CompleteTwoFactorLogin].
type LoginResult struct {
	Token string

	TwoFactorRequired bool
	ChallengeToken    string
}

// TwoFactorLoginResult is returned by [Engine.CompleteTwoFactorLogin].
// VerifiedToken is the secondary 24h marker some routes require on top of
// the session token for extra-sensitive operations.
type TwoFactorLoginResult struct {
	Token         string
	VerifiedToken string
	UsedBackup    bool
}

// TwoFactorSetup holds the provisioning material returned by
// [Engine.SetupTwoFactor]. Nothing is persisted until ActivateTwoFactor.
type TwoFactorSetup struct {
	SecretBase32 string
	URI          string
	BackupCodes  []string
}

// Identity is the authenticated caller returned by [Engine.Authenticate].
type Identity struct {
	AccountID        string
	Role             Role
	Membership       Membership
	TwoFactorEnabled bool
	IssuedAt         time.Time
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess      = internalmetrics.MetricLoginSuccess
	MetricLoginFailure      = internalmetrics.MetricLoginFailure
	MetricLoginLocked       = internalmetrics.MetricLoginLocked
	MetricLoginRateLimited  = internalmetrics.MetricLoginRateLimited
	MetricTwoFactorRequired = internalmetrics.MetricTwoFactorRequired
	MetricTwoFactorSuccess  = internalmetrics.MetricTwoFactorSuccess
	MetricTwoFactorFailure  = internalmetrics.MetricTwoFactorFailure
	MetricBackupCodeUsed    = internalmetrics.MetricBackupCodeUsed
	MetricTokenAccepted     = internalmetrics.MetricTokenAccepted
	MetricTokenRejected     = internalmetrics.MetricTokenRejected
	MetricRegisterSuccess   = internalmetrics.MetricRegisterSuccess
	MetricRegisterDuplicate = internalmetrics.MetricRegisterDuplicate
	MetricPasswordChanged   = internalmetrics.MetricPasswordChanged
	MetricResetRequested    = internalmetrics.MetricResetRequested
	MetricResetCompleted    = internalmetrics.MetricResetCompleted
	MetricResetRejected     = internalmetrics.MetricResetRejected
	MetricIntegrityFailure  = internalmetrics.MetricIntegrityFailure
)

// Metrics holds atomic counters for engine operations.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot
