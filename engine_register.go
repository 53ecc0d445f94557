package marketauth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	internalaudit "github.com/tautanid/marketauth/internal/audit"
)

// Register creates a new account. The password hash is computed before the
// record exists, so the invariant that a stored account always carries a
// hash holds from creation onward. Duplicate email or phone returns
// [ErrAccountExists]; a hashing failure is unexpected and fatal for the
// request.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	role := req.Role
	if role == "" {
		role = e.config.Account.DefaultRole
	}
	if !e.roleAllowed(role) {
		return nil, ErrRoleInvalid
	}
	if len(req.Password) < e.config.Password.MinLength {
		return nil, ErrPasswordPolicy
	}

	email := normalizeEmail(req.Email)

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		e.metricInc(MetricIntegrityFailure)
		e.logger.ErrorContext(ctx, "password hash failed during registration", "error", err)
		return nil, err
	}

	account, err := e.store.CreateAccount(ctx, CreateAccountInput{
		ID:                uuid.NewString(),
		FullName:          req.FullName,
		Email:             email,
		Phone:             req.Phone,
		PasswordHash:      hash,
		PasswordChangedAt: e.now(),
		Role:              role,
		Membership:        e.config.Account.DefaultMembership,
		BusinessName:      req.BusinessName,
		BusinessType:      req.BusinessType,
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegisterDuplicate)
			return nil, ErrAccountExists
		}
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, internalaudit.EventRegister, true, account.ID, email, nil, map[string]string{
		"role": string(role),
	})

	return &RegisterResult{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
	}, nil
}

func (e *Engine) roleAllowed(role Role) bool {
	if !role.Valid() {
		return false
	}
	if len(e.config.Account.AllowedRoles) == 0 {
		return true
	}
	for _, allowed := range e.config.Account.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}
