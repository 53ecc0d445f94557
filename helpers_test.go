package marketauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testPassword = "correct-password-123"
	testEmail    = "alice@example.com"
)

// memStore is an in-memory AccountStore for engine tests.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]AccountRecord
	codes    map[string]map[[32]byte]struct{}
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]AccountRecord),
		codes:    make(map[string]map[[32]byte]struct{}),
	}
}

func (s *memStore) CreateAccount(_ context.Context, input CreateAccountInput) (AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == input.Email || a.Phone == input.Phone {
			return AccountRecord{}, ErrAccountExists
		}
	}
	rec := AccountRecord{
		ID:                input.ID,
		FullName:          input.FullName,
		Email:             input.Email,
		Phone:             input.Phone,
		PasswordHash:      input.PasswordHash,
		PasswordChangedAt: input.PasswordChangedAt,
		Role:              input.Role,
		Membership:        input.Membership,
		Active:            true,
	}
	s.accounts[rec.ID] = rec
	return rec, nil
}

func (s *memStore) AccountByID(_ context.Context, id string) (AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.accounts[id]
	if !ok {
		return AccountRecord{}, ErrAccountNotFound
	}
	return rec, nil
}

func (s *memStore) AccountByEmail(_ context.Context, email string) (AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return AccountRecord{}, ErrAccountNotFound
}

func (s *memStore) AccountByPhone(_ context.Context, phone string) (AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Phone == phone {
			return a, nil
		}
	}
	return AccountRecord{}, ErrAccountNotFound
}

func (s *memStore) AccountByResetTokenHash(_ context.Context, hash [32]byte) (AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if len(a.ResetTokenHash) == 32 && [32]byte(a.ResetTokenHash) == hash {
			return a, nil
		}
	}
	return AccountRecord{}, ErrAccountNotFound
}

func (s *memStore) UpdatePasswordHash(_ context.Context, id, newHash string, changedAt time.Time) error {
	return s.mutate(id, func(a *AccountRecord) {
		a.PasswordHash = newHash
		a.PasswordChangedAt = changedAt
	})
}

func (s *memStore) SetResetToken(_ context.Context, id string, hash [32]byte, expiresAt time.Time) error {
	return s.mutate(id, func(a *AccountRecord) {
		a.ResetTokenHash = append([]byte(nil), hash[:]...)
		a.ResetTokenExpiresAt = expiresAt
	})
}

func (s *memStore) ClearResetToken(_ context.Context, id string) error {
	return s.mutate(id, func(a *AccountRecord) {
		a.ResetTokenHash = nil
		a.ResetTokenExpiresAt = time.Time{}
	})
}

func (s *memStore) EnableTwoFactor(_ context.Context, id string, secret []byte, codes []BackupCodeRecord) error {
	err := s.mutate(id, func(a *AccountRecord) {
		a.TwoFactorEnabled = true
		a.TwoFactorSecret = append([]byte(nil), secret...)
	})
	if err != nil {
		return err
	}
	s.setCodes(id, codes)
	return nil
}

func (s *memStore) DisableTwoFactor(_ context.Context, id string) error {
	err := s.mutate(id, func(a *AccountRecord) {
		a.TwoFactorEnabled = false
		a.TwoFactorSecret = nil
	})
	if err != nil {
		return err
	}
	s.setCodes(id, nil)
	return nil
}

func (s *memStore) ReplaceBackupCodes(_ context.Context, id string, codes []BackupCodeRecord) error {
	s.mu.Lock()
	_, ok := s.accounts[id]
	s.mu.Unlock()
	if !ok {
		return ErrAccountNotFound
	}
	s.setCodes(id, codes)
	return nil
}

func (s *memStore) ConsumeBackupCode(_ context.Context, id string, hash [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.codes[id]
	if _, ok := set[hash]; !ok {
		return false, nil
	}
	delete(set, hash)
	return true, nil
}

func (s *memStore) SetBlocked(_ context.Context, id string, blocked bool, reason string) error {
	return s.mutate(id, func(a *AccountRecord) {
		a.Blocked = blocked
		a.BlockReason = reason
	})
}

func (s *memStore) mutate(id string, fn func(*AccountRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	fn(&rec)
	s.accounts[id] = rec
	return nil
}

func (s *memStore) setCodes(id string, codes []BackupCodeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[[32]byte]struct{}, len(codes))
	for _, c := range codes {
		set[c.Hash] = struct{}{}
	}
	s.codes[id] = set
}

// engineTestConfig lowers Argon2 cost so tests stay fast.
func engineTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("engine-test-secret-0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *memStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store := newMemStore()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()})).
		WithAccountStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, store, mr
}

// seedAccount registers alice and returns her account ID.
func seedAccount(t *testing.T, engine *Engine) string {
	t.Helper()
	res, err := engine.Register(context.Background(), RegisterRequest{
		FullName: "Alice",
		Email:    testEmail,
		Phone:    "+628111000111",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return res.AccountID
}
