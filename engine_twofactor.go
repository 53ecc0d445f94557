package marketauth

import (
	"context"
	"errors"

	"github.com/tautanid/marketauth/internal"
	internalaudit "github.com/tautanid/marketauth/internal/audit"
	"github.com/tautanid/marketauth/jwt"
)

// SetupTwoFactor generates provisioning material for an account: a fresh
// TOTP secret, its otpauth:// URI, and a set of backup codes. Nothing is
// persisted until [Engine.ActivateTwoFactor] confirms the client can
// produce a valid code.
func (e *Engine) SetupTwoFactor(ctx context.Context, accountID string) (*TwoFactorSetup, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.TOTP.Enabled {
		return nil, ErrTwoFactorNotEnabled
	}

	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	_, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	codes, err := internal.NewBackupCodes(e.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	return &TwoFactorSetup{
		SecretBase32: secretBase32,
		URI:          e.totp.ProvisionURI(secretBase32, account.Email),
		BackupCodes:  codes,
	}, nil
}

// ActivateTwoFactor enables two-factor login for the account after
// verifying one code against the provisioned secret. The secret and the
// SHA-256 hashes of the backup codes are persisted together, keeping the
// secret-present-iff-enabled invariant.
func (e *Engine) ActivateTwoFactor(ctx context.Context, accountID, secretBase32, code string, backupCodes []string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if !e.config.TOTP.Enabled {
		return ErrTwoFactorNotEnabled
	}

	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}

	secret, err := e.totp.DecodeSecret(secretBase32)
	if err != nil || len(secret) == 0 {
		return ErrTwoFactorCodeInvalid
	}

	ok, err := e.totp.VerifyCode(secret, code, e.now())
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		return ErrTwoFactorCodeInvalid
	}

	records := make([]BackupCodeRecord, 0, len(backupCodes))
	for _, c := range backupCodes {
		records = append(records, BackupCodeRecord{Hash: internal.HashBackupCode(c)})
	}

	if err := e.store.EnableTwoFactor(ctx, accountID, secret, records); err != nil {
		return err
	}

	e.emitAudit(ctx, internalaudit.EventTwoFactorEnabled, true, accountID, account.Email, nil, nil)
	return nil
}

// DisableTwoFactor turns off two-factor login. A currently valid TOTP code
// is required so a hijacked session cannot silently weaken the account.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.TwoFactorEnabled || len(account.TwoFactorSecret) == 0 {
		return ErrTwoFactorNotEnabled
	}

	ok, err := e.totp.VerifyCode(account.TwoFactorSecret, code, e.now())
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		return ErrTwoFactorCodeInvalid
	}

	if err := e.store.DisableTwoFactor(ctx, accountID); err != nil {
		return err
	}

	e.emitAudit(ctx, internalaudit.EventTwoFactorDisabled, true, accountID, account.Email, nil, nil)
	return nil
}

// RegenerateBackupCodes replaces the account's unused backup codes with a
// fresh set, returned in plaintext exactly once. Requires a currently
// valid TOTP code.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.TwoFactorEnabled || len(account.TwoFactorSecret) == 0 {
		return nil, ErrTwoFactorNotEnabled
	}

	ok, err := e.totp.VerifyCode(account.TwoFactorSecret, code, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		return nil, ErrTwoFactorCodeInvalid
	}

	codes, err := internal.NewBackupCodes(e.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	records := make([]BackupCodeRecord, 0, len(codes))
	for _, c := range codes {
		records = append(records, BackupCodeRecord{Hash: internal.HashBackupCode(c)})
	}

	if err := e.store.ReplaceBackupCodes(ctx, accountID, records); err != nil {
		return nil, err
	}

	return codes, nil
}

// CompleteTwoFactorLogin redeems a challenge token together with a TOTP
// code or a backup code and issues the full session token plus the 24-hour
// verified marker. Backup codes are consumed atomically on first use; a
// second presentation of the same code fails.
//
// A failed code does not feed the lockout counter — the password stage
// already succeeded for this challenge.
func (e *Engine) CompleteTwoFactorLogin(ctx context.Context, challengeToken, code string) (*TwoFactorLoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseChallenge(challengeToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	account, err := e.store.AccountByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if gateErr := accountGate(account); gateErr != nil {
		return nil, gateErr
	}
	if !account.TwoFactorEnabled || len(account.TwoFactorSecret) == 0 {
		// Two-factor was disabled after the challenge was issued; the
		// challenge no longer proves anything useful.
		return nil, ErrTokenInvalid
	}

	usedBackup := false
	ok, err := e.totp.VerifyCode(account.TwoFactorSecret, code, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		consumed, err := e.store.ConsumeBackupCode(ctx, account.ID, internal.HashBackupCode(code))
		if err != nil {
			return nil, err
		}
		if !consumed {
			e.metricInc(MetricTwoFactorFailure)
			e.emitAudit(ctx, internalaudit.EventTwoFactorFailure, false, account.ID, account.Email, ErrTwoFactorCodeInvalid, nil)
			return nil, ErrTwoFactorCodeInvalid
		}
		usedBackup = true
		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, internalaudit.EventBackupCodeUsed, true, account.ID, account.Email, nil, nil)
	}

	token, err := e.tokens.CreateSession(account.ID, string(account.Role), string(account.Membership))
	if err != nil {
		return nil, err
	}
	verified, err := e.tokens.CreateVerifiedMarker(account.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, internalaudit.EventTwoFactorSuccess, true, account.ID, account.Email, nil, map[string]string{
		"backup_code": boolString(usedBackup),
	})

	return &TwoFactorLoginResult{
		Token:         token,
		VerifiedToken: verified,
		UsedBackup:    usedBackup,
	}, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
