// Package internal holds random-material generation shared by the engine.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const (
	resetSecretSize = 32
	backupCodeChars = 8
)

// Backup codes avoid characters that are ambiguous when read aloud or
// copied by hand (0/O, 1/I/L).
const backupCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewResetToken generates a high-entropy reset token. The hex-encoded raw
// value goes to the caller exactly once; only the SHA-256 hash is persisted.
func NewResetToken() (raw string, hash [32]byte, err error) {
	var secret [resetSecretSize]byte
	if _, err = rand.Read(secret[:]); err != nil {
		return "", hash, err
	}
	raw = hex.EncodeToString(secret[:])
	return raw, HashResetToken(raw), nil
}

// HashResetToken maps a raw reset token to its stored form.
func HashResetToken(raw string) [32]byte {
	return sha256.Sum256([]byte(raw))
}

// NewBackupCodes generates n single-use backup codes, retrying on the
// (vanishingly rare) collision so codes are unique within the set.
func NewBackupCodes(n int) ([]string, error) {
	if n <= 0 {
		return nil, errors.New("backup code count must be positive")
	}

	codes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for len(codes) < n {
		code, err := newBackupCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

func newBackupCode() (string, error) {
	buf := make([]byte, backupCodeChars)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = backupCodeAlphabet[int(b)%len(backupCodeAlphabet)]
	}
	return string(buf), nil
}

// HashBackupCode maps a plaintext backup code to its stored form.
func HashBackupCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}
