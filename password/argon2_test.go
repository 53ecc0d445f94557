package password

import (
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := New(testConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("P@ssw0rd-Ascii", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected password verification to succeed")
	}
}

func TestVerifyWrongPassword(t *testing.T) {
	hasher, err := New(testConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := hasher.Verify("wrong-password", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestHashIsSalted(t *testing.T) {
	hasher, err := New(testConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	first, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	second, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestVerifySurvivesParameterChange(t *testing.T) {
	oldHasher, err := New(testConfig())
	if err != nil {
		t.Fatalf("New(old) error: %v", err)
	}
	hash, err := oldHasher.Hash("migrating-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	// Parameters travel inside the PHC string, so a hasher with different
	// costs still verifies old digests.
	cfg := testConfig()
	cfg.Memory = 16 * 1024
	cfg.Time = 2
	newHasher, err := New(cfg)
	if err != nil {
		t.Fatalf("New(new) error: %v", err)
	}

	ok, err := newHasher.Verify("migrating-password", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected old digest to verify under new parameters")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	hasher, err := New(testConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for _, encoded := range []string{
		"",
		"not-a-phc-hash",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdA$aGFzaA",
	} {
		if _, err := hasher.Verify("password", encoded); err == nil {
			t.Fatalf("expected error for malformed hash %q", encoded)
		}
	}
}

func TestHashEmptyPassword(t *testing.T) {
	hasher, err := New(testConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if _, err := hasher.Hash(""); err == nil {
		t.Fatal("expected empty password hash to fail")
	}
}

func TestNewRejectsWeakConfig(t *testing.T) {
	weak := testConfig()
	weak.Memory = 1024
	if _, err := New(weak); err == nil {
		t.Fatal("expected weak memory parameter to be rejected")
	}

	weak = testConfig()
	weak.SaltLength = 8
	if _, err := New(weak); err == nil {
		t.Fatal("expected short salt parameter to be rejected")
	}
}
