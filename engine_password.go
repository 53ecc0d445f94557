package marketauth

import (
	"context"
	"errors"

	"github.com/tautanid/marketauth/internal"
	internalaudit "github.com/tautanid/marketauth/internal/audit"
	"github.com/tautanid/marketauth/internal/rate"
)

// ChangePassword rotates an account's password after verifying the current
// one. Updating the hash also bumps password-changed-at, which invalidates
// every session token issued before this call.
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := e.hasher.Verify(current, account.PasswordHash)
	if err != nil {
		e.metricInc(MetricIntegrityFailure)
		e.logger.ErrorContext(ctx, "password verification failed", "account_id", accountID, "error", err)
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if next == current {
		return ErrPasswordReuse
	}
	if len(next) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}

	hash, err := e.hasher.Hash(next)
	if err != nil {
		e.metricInc(MetricIntegrityFailure)
		e.logger.ErrorContext(ctx, "password hash failed during change", "account_id", accountID, "error", err)
		return err
	}

	if err := e.store.UpdatePasswordHash(ctx, accountID, hash, e.now()); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, internalaudit.EventPasswordChanged, true, accountID, account.Email, nil, nil)
	return nil
}

// RequestPasswordReset starts the reset flow for an email address. The raw
// token is returned to the caller exactly once for out-of-band delivery;
// only its SHA-256 hash and the expiry are persisted.
//
// An unknown email returns ("", nil): the transport layer answers with the
// same generic message either way, so the endpoint cannot be used to
// enumerate accounts. Only the known-email path produces a consumable token.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return "", nil
	}

	email = normalizeEmail(email)

	if err := e.throttle.AllowResetRequest(ctx, email, ClientIP(ctx)); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return "", ErrResetRateLimited
		}
		return "", err
	}

	account, err := e.store.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", nil
		}
		return "", err
	}

	raw, hash, err := internal.NewResetToken()
	if err != nil {
		e.metricInc(MetricIntegrityFailure)
		return "", err
	}

	if err := e.store.SetResetToken(ctx, account.ID, hash, e.now().Add(e.config.PasswordReset.ResetTTL)); err != nil {
		return "", err
	}

	e.metricInc(MetricResetRequested)
	e.emitAudit(ctx, internalaudit.EventResetRequested, true, account.ID, email, nil, nil)

	return raw, nil
}

// ResetPassword redeems a raw reset token. The supplied value is hashed
// with the same one-way function and matched against stored hashes; a miss
// or an expired window both answer [ErrResetTokenInvalid]. On success the
// password is re-hashed, password-changed-at is bumped, and the token
// fields are cleared so the token is single-use.
func (e *Engine) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return ErrResetTokenInvalid
	}
	if len(newPassword) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}

	account, err := e.store.AccountByResetTokenHash(ctx, internal.HashResetToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricResetRejected)
			e.emitAudit(ctx, internalaudit.EventResetRejected, false, "", "", ErrResetTokenInvalid, nil)
			return ErrResetTokenInvalid
		}
		return err
	}

	if account.ResetTokenExpiresAt.IsZero() || e.now().After(account.ResetTokenExpiresAt) {
		e.metricInc(MetricResetRejected)
		e.emitAudit(ctx, internalaudit.EventResetRejected, false, account.ID, account.Email, ErrResetTokenInvalid, nil)
		return ErrResetTokenInvalid
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricIntegrityFailure)
		e.logger.ErrorContext(ctx, "password hash failed during reset", "account_id", account.ID, "error", err)
		return err
	}

	if err := e.store.UpdatePasswordHash(ctx, account.ID, hash, e.now()); err != nil {
		return err
	}
	if err := e.store.ClearResetToken(ctx, account.ID); err != nil {
		return err
	}

	e.metricInc(MetricResetCompleted)
	e.emitAudit(ctx, internalaudit.EventResetCompleted, true, account.ID, account.Email, nil, nil)
	return nil
}
