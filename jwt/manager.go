// Package jwt issues and verifies the three token kinds the engine uses:
// long-lived session tokens, five-minute two-factor challenge tokens, and
// 24-hour two-factor verified markers. All three are stateless; the engine
// layers account-state checks (lock, block, password-changed-at) on top.
package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// Token type markers. Session tokens carry no marker.
const (
	TypeChallenge = "2fa"
	TypeVerified  = "2fa-verified"
)

var (
	// ErrTokenExpired is returned when a token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed is returned for unparseable tokens and bad signatures.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrWrongTokenType is returned when a token parses but carries the
	// wrong type marker for the operation.
	ErrWrongTokenType = errors.New("wrong token type")
)

// Config holds the token manager parameters.
type Config struct {
	SessionTTL   time.Duration
	ChallengeTTL time.Duration
	VerifiedTTL  time.Duration

	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// SessionClaims is the signed-claims structure of a session token:
// subject identity, role, membership tier, issued-at, expires-at.
type SessionClaims struct {
	Role       string `json:"role"`
	Membership string `json:"membership"`
	TokenType  string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// MarkerClaims is the claims structure of challenge and verified-marker
// tokens: subject identity and a type marker only.
type MarkerClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens. It is immutable after NewManager and
// safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates the configuration and returns a token manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SessionTTL <= 0 || cfg.ChallengeTTL <= 0 || cfg.VerifiedTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// WithClock replaces the time source. Test hook.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CreateSession issues a session token for the account.
func (m *Manager) CreateSession(accountID, role, membership string) (string, error) {
	claims := SessionClaims{
		Role:             role,
		Membership:       membership,
		RegisteredClaims: m.registered(accountID, m.config.SessionTTL),
	}
	return m.sign(claims)
}

// ParseSession verifies a session token. Tokens carrying a type marker
// (challenge or verified marker) are rejected with ErrWrongTokenType.
func (m *Manager) ParseSession(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != "" {
		return nil, ErrWrongTokenType
	}
	if claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// CreateChallenge issues a short-lived two-factor challenge token.
func (m *Manager) CreateChallenge(accountID string) (string, error) {
	claims := MarkerClaims{
		TokenType:        TypeChallenge,
		RegisteredClaims: m.registered(accountID, m.config.ChallengeTTL),
	}
	return m.sign(claims)
}

// ParseChallenge verifies a two-factor challenge token.
func (m *Manager) ParseChallenge(tokenStr string) (*MarkerClaims, error) {
	return m.parseMarker(tokenStr, TypeChallenge)
}

// CreateVerifiedMarker issues the secondary token that proves a completed
// two-factor verification to downstream routes.
func (m *Manager) CreateVerifiedMarker(accountID string) (string, error) {
	claims := MarkerClaims{
		TokenType:        TypeVerified,
		RegisteredClaims: m.registered(accountID, m.config.VerifiedTTL),
	}
	return m.sign(claims)
}

// ParseVerifiedMarker verifies a two-factor verified marker token.
func (m *Manager) ParseVerifiedMarker(tokenStr string) (*MarkerClaims, error) {
	return m.parseMarker(tokenStr, TypeVerified)
}

func (m *Manager) parseMarker(tokenStr, wantType string) (*MarkerClaims, error) {
	claims := &MarkerClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != wantType {
		return nil, ErrWrongTokenType
	}
	if claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (m *Manager) registered(accountID string, ttl time.Duration) jwt.RegisteredClaims {
	now := m.now()
	return jwt.RegisteredClaims{
		Subject:   accountID,
		Issuer:    m.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (m *Manager) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(m.method(), claims)
	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	_, err := jwt.ParseWithClaims(tokenStr, claims, m.keyFunc, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenMalformed
	}
	return nil
}

func (m *Manager) keyFunc(*jwt.Token) (interface{}, error) {
	return m.verifyKey()
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (m *Manager) signKey() (interface{}, error) {
	if m.config.SigningMethod == MethodEd25519 {
		return parseEdPrivateKey(m.config.PrivateKey)
	}
	return m.config.PrivateKey, nil
}

func (m *Manager) verifyKey() (interface{}, error) {
	if m.config.SigningMethod == MethodEd25519 {
		if len(m.config.PublicKey) > 0 {
			return parseEdPublicKey(m.config.PublicKey)
		}
		priv, err := parseEdPrivateKey(m.config.PrivateKey)
		if err != nil {
			return nil, err
		}
		return priv.Public(), nil
	}
	return m.config.PrivateKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	switch len(key) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(key), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(key), nil
	default:
		return nil, fmt.Errorf("invalid ed25519 private key size %d", len(key))
	}
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 public key size %d", len(key))
	}
	return ed25519.PublicKey(key), nil
}
