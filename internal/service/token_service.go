package service

import (
	"time"

	"github.com/finsight/identity-service/internal/domain"
	"github.com/finsight/identity-service/internal/security"
)

// TokenService binds signed bearer tokens to identities. Tokens are stateless:
// there is no revocation list and logout only clears the cookie.
type TokenService struct {
	jwtMgr *security.JWTManager
}

func NewTokenService(jwtMgr *security.JWTManager) *TokenService {
	return &TokenService{jwtMgr: jwtMgr}
}

// Issue signs a token whose subject is the identity's lookup key and returns
// it with its absolute expiry.
func (s *TokenService) Issue(user *domain.User) (string, time.Time, error) {
	token, err := s.jwtMgr.Sign(user.Email)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, time.Now().UTC().Add(s.jwtMgr.Validity()), nil
}

// Validate reports whether token is a currently valid credential for user.
// Parse and signature failures never escape this boundary.
func (s *TokenService) Validate(token string, user *domain.User) bool {
	if user == nil {
		return false
	}
	return s.jwtMgr.Validate(token, user.Email)
}

// ExtractSubject returns the token's subject or "" for malformed input.
func (s *TokenService) ExtractSubject(token string) string {
	return s.jwtMgr.ExtractSubject(token)
}

// ExtractExpiry returns the token's expiry or the zero time for malformed input.
func (s *TokenService) ExtractExpiry(token string) time.Time {
	return s.jwtMgr.ExtractExpiry(token)
}

func (s *TokenService) Validity() time.Duration {
	return s.jwtMgr.Validity()
}
