package marketauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// totpFor computes the code for the given instant with the engine's TOTP
// parameters.
func totpFor(t *testing.T, engine *Engine, secretBase32 string, at time.Time) string {
	t.Helper()
	secret, err := engine.totp.DecodeSecret(secretBase32)
	if err != nil {
		t.Fatalf("DecodeSecret failed: %v", err)
	}
	cfg := engine.config.TOTP
	code, err := hotpCode(secret, at.Unix()/int64(cfg.Period), cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

// enableTwoFactor runs setup+activate for the account and returns the
// provisioned secret and backup codes.
func enableTwoFactor(t *testing.T, engine *Engine, accountID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := engine.SetupTwoFactor(ctx, accountID)
	if err != nil {
		t.Fatalf("SetupTwoFactor failed: %v", err)
	}
	err = engine.ActivateTwoFactor(ctx, accountID, setup.SecretBase32, totpFor(t, engine, setup.SecretBase32, engine.now()), setup.BackupCodes)
	if err != nil {
		t.Fatalf("ActivateTwoFactor failed: %v", err)
	}
	return setup.SecretBase32, setup.BackupCodes
}

func TestTwoFactor_SetupAndActivate(t *testing.T) {
	cfg := engineTestConfig()
	engine, store, _ := newTestEngine(t, cfg)
	id := seedAccount(t, engine)
	ctx := context.Background()

	setup, err := engine.SetupTwoFactor(ctx, id)
	if err != nil {
		t.Fatalf("SetupTwoFactor failed: %v", err)
	}
	if setup.SecretBase32 == "" {
		t.Fatal("expected a secret")
	}
	if !strings.HasPrefix(setup.URI, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning URI: %q", setup.URI)
	}
	if len(setup.BackupCodes) != cfg.TOTP.BackupCodeCount {
		t.Fatalf("expected %d backup codes, got %d", cfg.TOTP.BackupCodeCount, len(setup.BackupCodes))
	}

	// Setup alone persists nothing.
	rec, _ := store.AccountByID(ctx, id)
	if rec.TwoFactorEnabled || len(rec.TwoFactorSecret) != 0 {
		t.Fatal("setup must not persist the secret")
	}

	// A wrong code refuses activation.
	err = engine.ActivateTwoFactor(ctx, id, setup.SecretBase32, "000000", setup.BackupCodes)
	if !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("expected ErrTwoFactorCodeInvalid, got %v", err)
	}

	code := totpFor(t, engine, setup.SecretBase32, engine.now())
	if err := engine.ActivateTwoFactor(ctx, id, setup.SecretBase32, code, setup.BackupCodes); err != nil {
		t.Fatalf("ActivateTwoFactor failed: %v", err)
	}

	rec, _ = store.AccountByID(ctx, id)
	if !rec.TwoFactorEnabled || len(rec.TwoFactorSecret) == 0 {
		t.Fatal("activation must persist the secret with the enabled flag")
	}

	if _, err := engine.SetupTwoFactor(ctx, id); !errors.Is(err, ErrTwoFactorAlreadyEnabled) {
		t.Fatalf("expected ErrTwoFactorAlreadyEnabled, got %v", err)
	}
}

func TestTwoFactor_ChallengeLogin(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	id := seedAccount(t, engine)
	ctx := context.Background()

	secret, _ := enableTwoFactor(t, engine, id)

	res, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !res.TwoFactorRequired || res.ChallengeToken == "" {
		t.Fatal("expected a two-factor challenge")
	}
	if res.Token != "" {
		t.Fatal("no session token before the second factor")
	}

	// Wrong code fails the challenge.
	_, err = engine.CompleteTwoFactorLogin(ctx, res.ChallengeToken, "000000")
	if !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("expected ErrTwoFactorCodeInvalid, got %v", err)
	}

	done, err := engine.CompleteTwoFactorLogin(ctx, res.ChallengeToken, totpFor(t, engine, secret, engine.now()))
	if err != nil {
		t.Fatalf("CompleteTwoFactorLogin failed: %v", err)
	}
	if done.Token == "" || done.VerifiedToken == "" {
		t.Fatal("expected session token and verified marker")
	}
	if done.UsedBackup {
		t.Fatal("TOTP completion must not report backup use")
	}

	if _, err := engine.Authenticate(ctx, done.Token); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if err := engine.VerifyTwoFactorMarker(ctx, done.VerifiedToken, id); err != nil {
		t.Fatalf("VerifyTwoFactorMarker failed: %v", err)
	}
	if err := engine.VerifyTwoFactorMarker(ctx, done.VerifiedToken, "someone-else"); err == nil {
		t.Fatal("marker must be bound to the account")
	}
}

func TestTwoFactor_ChallengeRejectsSessionToken(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	id := seedAccount(t, engine)
	ctx := context.Background()

	secret, _ := enableTwoFactor(t, engine, id)

	// A full session token is not a challenge token.
	session, err := engine.tokens.CreateSession(id, string(RoleBuyer), string(MembershipBasic))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	_, err = engine.CompleteTwoFactorLogin(ctx, session, totpFor(t, engine, secret, engine.now()))
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTwoFactor_ExpiredChallenge(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	id := seedAccount(t, engine)
	ctx := context.Background()

	secret, _ := enableTwoFactor(t, engine, id)

	res, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	engine.tokens.WithClock(func() time.Time { return time.Now().Add(10 * time.Minute) })
	defer engine.tokens.WithClock(time.Now)

	_, err = engine.CompleteTwoFactorLogin(ctx, res.ChallengeToken, totpFor(t, engine, secret, engine.now()))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTwoFactor_CodeWindow(t *testing.T) {
	cfg := engineTestConfig()
	engine, _, _ := newTestEngine(t, cfg)
	id := seedAccount(t, engine)
	ctx := context.Background()

	secret, _ := enableTwoFactor(t, engine, id)

	// Pin the verification clock to a step midpoint so step arithmetic is
	// exact.
	base := time.Now().Truncate(30 * time.Second).Add(15 * time.Second)
	engine.nowOverride = func() time.Time { return base }
	defer func() { engine.nowOverride = nil }()

	step := time.Duration(cfg.TOTP.Period) * time.Second
	for offset := -cfg.TOTP.Skew; offset <= cfg.TOTP.Skew; offset++ {
		res, err := engine.Login(ctx, testEmail, testPassword)
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		code := totpFor(t, engine, secret, base.Add(time.Duration(offset)*step))
		if _, err := engine.CompleteTwoFactorLogin(ctx, res.ChallengeToken, code); err != nil {
			t.Fatalf("offset %d: expected acceptance, got %v", offset, err)
		}
	}

	for _, offset := range []int{-(cfg.TOTP.Skew + 1), cfg.TOTP.Skew + 1} {
		res, err := engine.Login(ctx, testEmail, testPassword)
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		code := totpFor(t, engine, secret, base.Add(time.Duration(offset)*step))
		_, err = engine.CompleteTwoFactorLogin(ctx, res.ChallengeToken, code)
		if !errors.Is(err, ErrTwoFactorCodeInvalid) {
			t.Fatalf("offset %d: expected ErrTwoFactorCodeInvalid, got %v", offset, err)
		}
	}
}

func TestTwoFactor_BackupCodeSingleUse(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	id := seedAccount(t, engine)
	ctx := context.Background()

	_, codes := enableTwoFactor(t, engine, id)

	res, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	done, err := engine.CompleteTwoFactorLogin(ctx, res.ChallengeToken, codes[0])
	if err != nil {
		t.Fatalf("backup code rejected: %v", err)
	}
	if !done.UsedBackup {
		t.Fatal("expected UsedBackup to be reported")
	}

	// The same code again fails; other codes stay valid.
	res2, _ := engine.Login(ctx, testEmail, testPassword)
	_, err = engine.CompleteTwoFactorLogin(ctx, res2.ChallengeToken, codes[0])
	if !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("expected ErrTwoFactorCodeInvalid for reused code, got %v", err)
	}
	if _, err := engine.CompleteTwoFactorLogin(ctx, res2.ChallengeToken, codes[1]); err != nil {
		t.Fatalf("second backup code rejected: %v", err)
	}
}

func TestTwoFactor_FailedCodesDoNotFeedLockout(t *testing.T) {
	cfg := engineTestConfig()
	engine, _, _ := newTestEngine(t, cfg)
	id := seedAccount(t, engine)
	ctx := context.Background()

	enableTwoFactor(t, engine, id)

	res, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Far more bad codes than the lockout threshold.
	for i := 0; i < cfg.Lockout.Threshold*2; i++ {
		_, err := engine.CompleteTwoFactorLogin(ctx, res.ChallengeToken, "000000")
		if !errors.Is(err, ErrTwoFactorCodeInvalid) {
			t.Fatalf("attempt %d: expected ErrTwoFactorCodeInvalid, got %v", i+1, err)
		}
	}

	// The password stage is unaffected.
	if _, err := engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("expected password login to stay available, got %v", err)
	}
}

func TestTwoFactor_DisableRequiresValidCode(t *testing.T) {
	engine, store, _ := newTestEngine(t, engineTestConfig())
	id := seedAccount(t, engine)
	ctx := context.Background()

	secret, _ := enableTwoFactor(t, engine, id)

	if err := engine.DisableTwoFactor(ctx, id, "000000"); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("expected ErrTwoFactorCodeInvalid, got %v", err)
	}

	if err := engine.DisableTwoFactor(ctx, id, totpFor(t, engine, secret, engine.now())); err != nil {
		t.Fatalf("DisableTwoFactor failed: %v", err)
	}

	rec, _ := store.AccountByID(ctx, id)
	if rec.TwoFactorEnabled || len(rec.TwoFactorSecret) != 0 {
		t.Fatal("disable must clear the secret with the flag")
	}

	// Login is back to single factor.
	res, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.TwoFactorRequired {
		t.Fatal("two-factor still required after disable")
	}
}

func TestTwoFactor_RegenerateBackupCodes(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	id := seedAccount(t, engine)
	ctx := context.Background()

	secret, oldCodes := enableTwoFactor(t, engine, id)

	newCodes, err := engine.RegenerateBackupCodes(ctx, id, totpFor(t, engine, secret, engine.now()))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if len(newCodes) == 0 {
		t.Fatal("expected fresh codes")
	}

	res, _ := engine.Login(ctx, testEmail, testPassword)
	if _, err := engine.CompleteTwoFactorLogin(ctx, res.ChallengeToken, oldCodes[0]); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("old code should be dead, got %v", err)
	}
	if _, err := engine.CompleteTwoFactorLogin(ctx, res.ChallengeToken, newCodes[0]); err != nil {
		t.Fatalf("new code rejected: %v", err)
	}
}
