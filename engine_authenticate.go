package marketauth

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/tautanid/marketauth/internal/audit"
	"github.com/tautanid/marketauth/jwt"
)

// Authenticate verifies a session token against its signature, expiry, and
// the subject account's current state. It is a pure function of the token
// and account state: one point lookup, one lock-status check, no writes.
//
// Each rejection maps to a distinct error: [ErrTokenInvalid],
// [ErrTokenExpired], [ErrAccountNotFound], [ErrAccountBlocked],
// [ErrAccountLocked], [ErrPasswordChanged].
func (e *Engine) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseSession(token)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	account, err := e.store.AccountByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricTokenRejected)
			e.emitAudit(ctx, internalaudit.EventTokenRejected, false, claims.Subject, "", ErrAccountNotFound, nil)
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if gateErr := accountGate(account); gateErr != nil {
		e.metricInc(MetricTokenRejected)
		e.emitAudit(ctx, internalaudit.EventTokenRejected, false, account.ID, account.Email, gateErr, nil)
		return nil, gateErr
	}

	locked, _, err := e.lockout.Status(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if locked {
		e.metricInc(MetricTokenRejected)
		e.emitAudit(ctx, internalaudit.EventTokenRejected, false, account.ID, account.Email, ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	issuedAt := time.Time{}
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	// Tokens minted before the latest password change are dead: changing
	// the password is the user's kill switch for stolen sessions.
	// Comparison is at second granularity, matching the token's iat.
	if !account.PasswordChangedAt.IsZero() &&
		account.PasswordChangedAt.Truncate(time.Second).After(issuedAt) {
		e.metricInc(MetricTokenRejected)
		e.emitAudit(ctx, internalaudit.EventTokenRejected, false, account.ID, account.Email, ErrPasswordChanged, nil)
		return nil, ErrPasswordChanged
	}

	e.metricInc(MetricTokenAccepted)

	return &Identity{
		AccountID:        account.ID,
		Role:             account.Role,
		Membership:       account.Membership,
		TwoFactorEnabled: account.TwoFactorEnabled,
		IssuedAt:         issuedAt,
	}, nil
}

// VerifyTwoFactorMarker checks the secondary 24-hour marker token that
// extra-sensitive routes require in addition to the session token. The
// marker must carry the verified type and name the same subject.
func (e *Engine) VerifyTwoFactorMarker(ctx context.Context, marker, accountID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.ParseVerifiedMarker(marker)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if claims.Subject != accountID {
		return ErrTokenInvalid
	}
	return nil
}
