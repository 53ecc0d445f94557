// Package gormstore implements marketauth.AccountStore on top of GORM.
// It owns two tables: accounts and account_backup_codes. Backup codes live
// in their own table so consuming one is a single DELETE, which keeps the
// single-use guarantee under concurrent redemption attempts.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tautanid/marketauth"
)

// Account is the GORM model for the accounts table.
type Account struct {
	ID                string `gorm:"primaryKey;size:64"`
	FullName          string `gorm:"size:255"`
	Email             string `gorm:"uniqueIndex;size:255"`
	Phone             string `gorm:"uniqueIndex;size:32"`
	PasswordHash      string `gorm:"size:512"`
	PasswordChangedAt time.Time
	Role              string `gorm:"size:16"`
	Membership        string `gorm:"size:16"`
	BusinessName      string `gorm:"size:255"`
	BusinessType      string `gorm:"size:64"`

	TwoFactorEnabled bool
	TwoFactorSecret  []byte `gorm:"size:64"`

	Active      bool
	Blocked     bool
	BlockReason string `gorm:"size:255"`

	ResetTokenHash      []byte `gorm:"index;size:32"`
	ResetTokenExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BackupCode is the GORM model for the account_backup_codes table.
// Rows hold only the SHA-256 hash of each code.
type BackupCode struct {
	AccountID string `gorm:"primaryKey;size:64"`
	Hash      []byte `gorm:"primaryKey;size:32"`
	CreatedAt time.Time
}

func (BackupCode) TableName() string { return "account_backup_codes" }

// Store implements marketauth.AccountStore.
type Store struct {
	db *gorm.DB
}

// New wraps an existing *gorm.DB. The caller is responsible for migration;
// use Migrate for the default schema.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to a SQLite database at dsn, runs migrations, and returns
// a ready Store. TranslateError is required so unique violations surface
// as gorm.ErrDuplicatedKey.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", marketauth.ErrStoreUnavailable, err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return New(db), nil
}

// Migrate creates or updates the tables used by the store.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Account{}, &BackupCode{}); err != nil {
		return fmt.Errorf("%w: %v", marketauth.ErrStoreUnavailable, err)
	}
	return nil
}

// DB exposes the underlying handle for callers that share the connection.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) CreateAccount(ctx context.Context, input marketauth.CreateAccountInput) (marketauth.AccountRecord, error) {
	row := Account{
		ID:                input.ID,
		FullName:          input.FullName,
		Email:             input.Email,
		Phone:             input.Phone,
		PasswordHash:      input.PasswordHash,
		PasswordChangedAt: input.PasswordChangedAt,
		Role:              string(input.Role),
		Membership:        string(input.Membership),
		BusinessName:      input.BusinessName,
		BusinessType:      input.BusinessType,
		Active:            true,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return marketauth.AccountRecord{}, marketauth.ErrAccountExists
		}
		return marketauth.AccountRecord{}, fmt.Errorf("%w: %v", marketauth.ErrStoreUnavailable, err)
	}
	return toRecord(&row), nil
}

func (s *Store) AccountByID(ctx context.Context, id string) (marketauth.AccountRecord, error) {
	return s.one(ctx, "id = ?", id)
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (marketauth.AccountRecord, error) {
	return s.one(ctx, "email = ?", email)
}

func (s *Store) AccountByPhone(ctx context.Context, phone string) (marketauth.AccountRecord, error) {
	return s.one(ctx, "phone = ?", phone)
}

func (s *Store) AccountByResetTokenHash(ctx context.Context, hash [32]byte) (marketauth.AccountRecord, error) {
	return s.one(ctx, "reset_token_hash = ?", hash[:])
}

func (s *Store) one(ctx context.Context, query string, arg any) (marketauth.AccountRecord, error) {
	var row Account
	err := s.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return marketauth.AccountRecord{}, marketauth.ErrAccountNotFound
		}
		return marketauth.AccountRecord{}, fmt.Errorf("%w: %v", marketauth.ErrStoreUnavailable, err)
	}
	return toRecord(&row), nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, newHash string, changedAt time.Time) error {
	return s.update(ctx, id, map[string]any{
		"password_hash":       newHash,
		"password_changed_at": changedAt,
	})
}

func (s *Store) SetResetToken(ctx context.Context, id string, hash [32]byte, expiresAt time.Time) error {
	return s.update(ctx, id, map[string]any{
		"reset_token_hash":       hash[:],
		"reset_token_expires_at": expiresAt,
	})
}

func (s *Store) ClearResetToken(ctx context.Context, id string) error {
	return s.update(ctx, id, map[string]any{
		"reset_token_hash":       nil,
		"reset_token_expires_at": time.Time{},
	})
}

func (s *Store) EnableTwoFactor(ctx context.Context, id string, secret []byte, codes []marketauth.BackupCodeRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Account{}).Where("id = ?", id).Updates(map[string]any{
			"two_factor_enabled": true,
			"two_factor_secret":  secret,
		})
		if res.Error != nil {
			return fmt.Errorf("%w: %v", marketauth.ErrStoreUnavailable, res.Error)
		}
		if res.RowsAffected == 0 {
			return marketauth.ErrAccountNotFound
		}
		return replaceCodes(tx, id, codes)
	})
}

func (s *Store) DisableTwoFactor(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Account{}).Where("id = ?", id).Updates(map[string]any{
			"two_factor_enabled": false,
			"two_factor_secret":  nil,
		})
		if res.Error != nil {
			return fmt.Errorf("%w: %v", marketauth.ErrStoreUnavailable, res.Error)
		}
		if res.RowsAffected == 0 {
			return marketauth.ErrAccountNotFound
		}
		return replaceCodes(tx, id, nil)
	})
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, id string, codes []marketauth.BackupCodeRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Account{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("%w: %v", marketauth.ErrStoreUnavailable, err)
		}
		if count == 0 {
			return marketauth.ErrAccountNotFound
		}
		return replaceCodes(tx, id, codes)
	})
}

// ConsumeBackupCode deletes the matching code row. The DELETE itself is the
// atomicity boundary: two concurrent redemptions of the same code race on
// RowsAffected and exactly one observes 1.
func (s *Store) ConsumeBackupCode(ctx context.Context, id string, hash [32]byte) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("account_id = ? AND hash = ?", id, hash[:]).
		Delete(&BackupCode{})
	if res.Error != nil {
		return false, fmt.Errorf("%w: %v", marketauth.ErrStoreUnavailable, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) SetBlocked(ctx context.Context, id string, blocked bool, reason string) error {
	return s.update(ctx, id, map[string]any{
		"blocked":      blocked,
		"block_reason": reason,
	})
}

func (s *Store) update(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", marketauth.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return marketauth.ErrAccountNotFound
	}
	return nil
}

func replaceCodes(tx *gorm.DB, id string, codes []marketauth.BackupCodeRecord) error {
	if err := tx.Where("account_id = ?", id).Delete(&BackupCode{}).Error; err != nil {
		return fmt.Errorf("%w: %v", marketauth.ErrStoreUnavailable, err)
	}
	if len(codes) == 0 {
		return nil
	}
	rows := make([]BackupCode, 0, len(codes))
	for _, c := range codes {
		h := c.Hash
		rows = append(rows, BackupCode{AccountID: id, Hash: h[:]})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("%w: %v", marketauth.ErrStoreUnavailable, err)
	}
	return nil
}

func toRecord(row *Account) marketauth.AccountRecord {
	return marketauth.AccountRecord{
		ID:                  row.ID,
		FullName:            row.FullName,
		Email:               row.Email,
		Phone:               row.Phone,
		PasswordHash:        row.PasswordHash,
		PasswordChangedAt:   row.PasswordChangedAt,
		Role:                marketauth.Role(row.Role),
		Membership:          marketauth.Membership(row.Membership),
		TwoFactorEnabled:    row.TwoFactorEnabled,
		TwoFactorSecret:     row.TwoFactorSecret,
		Active:              row.Active,
		Blocked:             row.Blocked,
		BlockReason:         row.BlockReason,
		ResetTokenHash:      row.ResetTokenHash,
		ResetTokenExpiresAt: row.ResetTokenExpiresAt,
	}
}
