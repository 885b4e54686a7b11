package security

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// minSigningKeyLen is the minimum key size for HS256 to keep its security margin.
const minSigningKeyLen = 32

var ErrSigningKeyTooShort = errors.New("jwt signing secret must be at least 32 bytes, raw or base64-decoded")

// JWTManager signs and parses the bearer tokens this service issues. The
// subject claim carries the identity's lookup key (email).
type JWTManager struct {
	key      []byte
	validity time.Duration
}

// NewJWTManager derives the signing key from the operator secret. A secret
// shorter than 32 raw bytes is retried as base64; if the decoded form is also
// too short the constructor fails so startup aborts instead of signing weakly.
func NewJWTManager(secret string, validity time.Duration) (*JWTManager, error) {
	key, err := deriveSigningKey(secret)
	if err != nil {
		return nil, err
	}
	if validity <= 0 {
		return nil, fmt.Errorf("jwt validity must be positive, got %s", validity)
	}
	return &JWTManager{key: key, validity: validity}, nil
}

func deriveSigningKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("jwt signing secret is not configured")
	}
	raw := []byte(secret)
	if len(raw) >= minSigningKeyLen {
		return raw, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: secret is short and not valid base64", ErrSigningKeyTooShort)
	}
	if len(decoded) < minSigningKeyLen {
		return nil, ErrSigningKeyTooShort
	}
	return decoded, nil
}

func (m *JWTManager) Validity() time.Duration { return m.validity }

// Sign issues a token for subject with iat=now and exp=now+validity.
func (m *JWTManager) Sign(subject string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.validity)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
}

func (m *JWTManager) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.key, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Validate reports whether token carries a valid signature, the expected
// subject, and an unexpired expiry. All failures degrade to false.
func (m *JWTManager) Validate(token, expectedSubject string) bool {
	claims, err := m.parse(token)
	if err != nil {
		return false
	}
	if claims.Subject == "" || claims.Subject != expectedSubject {
		return false
	}
	return claims.ExpiresAt != nil && !time.Now().After(claims.ExpiresAt.Time)
}

// ExtractSubject decodes the subject claim; malformed or unverifiable tokens
// yield the empty string rather than an error.
func (m *JWTManager) ExtractSubject(token string) string {
	claims, err := m.parse(token)
	if err != nil {
		return ""
	}
	return claims.Subject
}

// ExtractExpiry decodes the expiry claim; malformed tokens yield the zero time.
func (m *JWTManager) ExtractExpiry(token string) time.Time {
	claims, err := m.parse(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
