package marketauth

import (
	"context"
	"errors"

	internalaudit "github.com/tautanid/marketauth/internal/audit"
	"github.com/tautanid/marketauth/internal/rate"
)

// Login runs the password stage of authentication: IP throttle, account
// lookup, lockout gate, password verification, account-state gate, then
// either a full session token or — when two-factor is enabled — a
// short-lived challenge token for [Engine.CompleteTwoFactorLogin].
//
// The lockout gate runs before password verification on every attempt, so
// a locked account rejects a correct password with the lock error and the
// response ordering leaks nothing about credential validity.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)

	if err := e.throttle.AllowLogin(ctx, ClientIP(ctx)); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, internalaudit.EventLoginRateLimited, false, "", email, ErrLoginRateLimited, nil)
			return nil, ErrLoginRateLimited
		}
		return nil, err
	}

	account, err := e.store.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Indistinguishable from a wrong password.
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, internalaudit.EventLoginFailure, false, "", email, ErrInvalidCredentials, map[string]string{
				"reason": "unknown_email",
			})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	locked, _, err := e.lockout.Status(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if locked {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, internalaudit.EventLoginFailure, false, account.ID, email, ErrAccountLocked, map[string]string{
			"reason": "locked",
		})
		return nil, ErrAccountLocked
	}

	ok, err := e.hasher.Verify(plaintext, account.PasswordHash)
	if err != nil {
		e.metricInc(MetricIntegrityFailure)
		e.logger.ErrorContext(ctx, "password verification failed", "account_id", account.ID, "error", err)
		return nil, err
	}
	if !ok {
		lockedNow, lockErr := e.lockout.RecordFailure(ctx, account.ID)
		if lockErr != nil {
			return nil, lockErr
		}
		e.metricInc(MetricLoginFailure)
		meta := map[string]string{"reason": "password_mismatch"}
		e.emitAudit(ctx, internalaudit.EventLoginFailure, false, account.ID, email, ErrInvalidCredentials, meta)
		if lockedNow {
			e.emitAudit(ctx, internalaudit.EventAccountLocked, false, account.ID, email, ErrAccountLocked, nil)
		}
		// The attempt that trips the threshold still reads as a credential
		// failure; the lock surfaces on the next attempt.
		return nil, ErrInvalidCredentials
	}

	if err := e.lockout.RecordSuccess(ctx, account.ID); err != nil {
		return nil, err
	}

	if gateErr := accountGate(account); gateErr != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, internalaudit.EventLoginFailure, false, account.ID, email, gateErr, map[string]string{
			"reason": "account_state",
		})
		return nil, gateErr
	}

	if e.config.TOTP.Enabled && account.TwoFactorEnabled {
		challenge, err := e.tokens.CreateChallenge(account.ID)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricTwoFactorRequired)
		e.emitAudit(ctx, internalaudit.EventTwoFactorRequired, true, account.ID, email, nil, nil)
		return &LoginResult{
			TwoFactorRequired: true,
			ChallengeToken:    challenge,
		}, nil
	}

	token, err := e.tokens.CreateSession(account.ID, string(account.Role), string(account.Membership))
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, internalaudit.EventLoginSuccess, true, account.ID, email, nil, nil)

	return &LoginResult{Token: token}, nil
}
