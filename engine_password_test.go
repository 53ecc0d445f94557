package marketauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestChangePassword(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	id := seedAccount(t, engine)
	ctx := context.Background()

	if err := engine.ChangePassword(ctx, id, "wrong-password", "new-password-456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := engine.ChangePassword(ctx, id, testPassword, testPassword); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
	if err := engine.ChangePassword(ctx, id, testPassword, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}

	if err := engine.ChangePassword(ctx, id, testPassword, "new-password-456"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, err := engine.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should be dead, got %v", err)
	}
	if _, err := engine.Login(ctx, testEmail, "new-password-456"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestRequestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	seedAccount(t, engine)

	raw, err := engine.RequestPasswordReset(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("expected nil error for unknown email, got %v", err)
	}
	if raw != "" {
		t.Fatal("unknown email must not yield a token")
	}
}

func TestResetPassword_HappyPath(t *testing.T) {
	engine, store, _ := newTestEngine(t, engineTestConfig())
	id := seedAccount(t, engine)
	ctx := context.Background()

	raw, err := engine.RequestPasswordReset(ctx, testEmail)
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if raw == "" {
		t.Fatal("expected a raw token")
	}

	// Only the hash is stored.
	rec, _ := store.AccountByID(ctx, id)
	if len(rec.ResetTokenHash) != 32 {
		t.Fatalf("expected a 32-byte hash, got %d bytes", len(rec.ResetTokenHash))
	}
	if string(rec.ResetTokenHash) == raw {
		t.Fatal("raw token leaked into the store")
	}

	if err := engine.ResetPassword(ctx, raw, "new-password-456"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := engine.Login(ctx, testEmail, "new-password-456"); err != nil {
		t.Fatalf("login with reset password failed: %v", err)
	}
	if _, err := engine.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should be dead, got %v", err)
	}

	// Token fields were cleared.
	rec, _ = store.AccountByID(ctx, id)
	if len(rec.ResetTokenHash) != 0 || !rec.ResetTokenExpiresAt.IsZero() {
		t.Fatal("reset token fields must be cleared after redemption")
	}
}

func TestResetPassword_SingleUse(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	seedAccount(t, engine)
	ctx := context.Background()

	raw, err := engine.RequestPasswordReset(ctx, testEmail)
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if err := engine.ResetPassword(ctx, raw, "new-password-456"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if err := engine.ResetPassword(ctx, raw, "another-pass-789"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid on reuse, got %v", err)
	}
}

func TestResetPassword_BogusToken(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	seedAccount(t, engine)

	err := engine.ResetPassword(context.Background(), "deadbeef", "new-password-456")
	if !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid, got %v", err)
	}
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	cfg := engineTestConfig()
	cfg.PasswordReset.ResetTTL = 30 * time.Minute
	engine, _, _ := newTestEngine(t, cfg)
	seedAccount(t, engine)
	ctx := context.Background()

	raw, err := engine.RequestPasswordReset(ctx, testEmail)
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	engine.nowOverride = func() time.Time { return time.Now().Add(31 * time.Minute) }
	defer func() { engine.nowOverride = nil }()

	if err := engine.ResetPassword(ctx, raw, "new-password-456"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid for expired token, got %v", err)
	}
}

func TestResetPassword_NewRequestReplacesOldToken(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	seedAccount(t, engine)
	ctx := context.Background()

	first, err := engine.RequestPasswordReset(ctx, testEmail)
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	second, err := engine.RequestPasswordReset(ctx, testEmail)
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if first == second {
		t.Fatal("tokens must be unique per request")
	}

	if err := engine.ResetPassword(ctx, first, "new-password-456"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("superseded token should be dead, got %v", err)
	}
	if err := engine.ResetPassword(ctx, second, "new-password-456"); err != nil {
		t.Fatalf("latest token rejected: %v", err)
	}
}

func TestRequestPasswordReset_Throttled(t *testing.T) {
	cfg := engineTestConfig()
	cfg.RateLimit.MaxResetPerIdentifier = 2
	engine, _, _ := newTestEngine(t, cfg)
	seedAccount(t, engine)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := engine.RequestPasswordReset(ctx, testEmail); err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
	}

	_, err := engine.RequestPasswordReset(ctx, testEmail)
	if !errors.Is(err, ErrResetRateLimited) {
		t.Fatalf("expected ErrResetRateLimited, got %v", err)
	}

	// Unknown identifiers are throttled through the same budget so the
	// rejection cannot be used to probe for accounts.
	for i := 0; i < 2; i++ {
		if _, err := engine.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
			t.Fatalf("unknown-email request %d failed: %v", i+1, err)
		}
	}
	_, err = engine.RequestPasswordReset(ctx, "nobody@example.com")
	if !errors.Is(err, ErrResetRateLimited) {
		t.Fatalf("expected ErrResetRateLimited for unknown email, got %v", err)
	}
}
