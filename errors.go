package marketauth

import (
	"errors"

	"github.com/tautanid/marketauth/internal/limiters"
)

var (
	// ErrInvalidCredentials is returned for unknown email or wrong password.
	// The two cases are deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotFound is returned when a token's subject no longer exists.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when registration collides on email or phone.
	ErrAccountExists = errors.New("email or phone already registered")
	// ErrAccountLocked is returned while the lockout window is active,
	// regardless of credential correctness.
	ErrAccountLocked = errors.New("account locked after too many failed logins")
	// ErrAccountBlocked is returned for administratively blocked accounts.
	ErrAccountBlocked = errors.New("account blocked")
	// ErrAccountDisabled is returned for deactivated accounts.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrLoginRateLimited is returned when the per-IP login throttle trips.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrResetRateLimited is returned when the reset-request throttle trips.
	ErrResetRateLimited = errors.New("password reset rate limited")

	// ErrTokenInvalid is returned for malformed tokens, bad signatures, and
	// tokens of the wrong type for the operation.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when a token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrPasswordChanged is returned when a token was issued before the
	// account's most recent password change; the subject must log in again.
	ErrPasswordChanged = errors.New("password changed since token was issued, login again")

	// ErrTwoFactorCodeInvalid is returned when neither the TOTP code nor any
	// unused backup code matches.
	ErrTwoFactorCodeInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorNotEnabled is returned by two-factor management operations
	// on accounts without two-factor configured.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrTwoFactorAlreadyEnabled is returned by ActivateTwoFactor when the
	// account already has an active secret.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")

	// ErrResetTokenInvalid is returned when a reset token does not match any
	// account or its window has expired. The two cases are indistinguishable.
	ErrResetTokenInvalid = errors.New("reset token invalid or expired")
	// ErrPasswordReuse is returned when the new password equals the old one.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrPasswordPolicy is returned when a password fails the minimum-length rule.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrRoleInvalid is returned when registration names an unknown role.
	ErrRoleInvalid = errors.New("invalid account role")
	// ErrEngineNotReady is returned when the engine was not built correctly.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	// Aliased to the limiter's sentinel so errors.Is matches what the
	// engine actually returns.
	ErrLockoutUnavailable = limiters.ErrLockoutUnavailable
	// ErrStoreUnavailable indicates the account store failed unexpectedly.
	ErrStoreUnavailable = errors.New("account store unavailable")
)
