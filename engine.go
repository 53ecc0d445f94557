package marketauth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/tautanid/marketauth/internal/audit"
	"github.com/tautanid/marketauth/internal/limiters"
	internalmetrics "github.com/tautanid/marketauth/internal/metrics"
	"github.com/tautanid/marketauth/internal/rate"
	"github.com/tautanid/marketauth/jwt"
	"github.com/tautanid/marketauth/password"
)

// Engine is the authentication and account-security core. Build one with
// [Builder]; all methods are safe for concurrent use.
type Engine struct {
	config   Config
	store    AccountStore
	lockout  *limiters.Lockout
	throttle *rate.Limiter
	hasher   *password.Hasher
	tokens   *jwt.Manager
	totp     *totpManager
	audit    *internalaudit.Dispatcher
	metrics  *internalmetrics.Metrics
	logger   *slog.Logger

	// nowOverride is a test hook; zero value means time.Now.
	nowOverride func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) now() time.Time {
	if e.nowOverride != nil {
		return e.nowOverride()
	}
	return time.Now()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, accountID, email string, opErr error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: e.now(),
		EventType: eventType,
		AccountID: accountID,
		Email:     email,
		IP:        ClientIP(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	e.audit.Emit(ctx, event)
}

// normalizeEmail lowercases and trims an email for case-insensitive lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// accountGate maps administrative account state to its rejection error.
// Blocked wins over disabled so operators see the stronger signal.
func accountGate(account AccountRecord) error {
	if account.Blocked {
		return ErrAccountBlocked
	}
	if !account.Active {
		return ErrAccountDisabled
	}
	return nil
}

// ClearLock removes an active lockout and failure streak for an account.
// Operator action; the lock otherwise expires on its own.
func (e *Engine) ClearLock(ctx context.Context, accountID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	return e.lockout.RecordSuccess(ctx, accountID)
}

// BlockAccount marks an account blocked with a reason. Outstanding session
// tokens fail at the next Authenticate call.
func (e *Engine) BlockAccount(ctx context.Context, accountID, reason string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.SetBlocked(ctx, accountID, true, reason); err != nil {
		return err
	}
	e.emitAudit(ctx, internalaudit.EventAccountBlocked, true, accountID, "", nil, map[string]string{"reason": reason})
	return nil
}

// UnblockAccount clears the blocked flag.
func (e *Engine) UnblockAccount(ctx context.Context, accountID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.SetBlocked(ctx, accountID, false, ""); err != nil {
		return err
	}
	e.emitAudit(ctx, internalaudit.EventAccountUnblocked, true, accountID, "", nil, nil)
	return nil
}
