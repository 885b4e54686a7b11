package security

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
)

const (
	otpMin  = 100000
	otpSpan = 900000
)

// OTPSource produces one-time passcodes. Injected so tests can substitute a
// deterministic source.
type OTPSource interface {
	Code() (string, error)
}

// CryptoOTPSource draws 6-digit codes uniformly from [100000, 999999] using
// crypto/rand.
type CryptoOTPSource struct{}

func NewCryptoOTPSource() *CryptoOTPSource { return &CryptoOTPSource{} }

func (CryptoOTPSource) Code() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", err
	}
	return big.NewInt(otpMin + n.Int64()).String(), nil
}

// NewRandomString returns a URL-safe random string of byteLen entropy bytes.
func NewRandomString(byteLen int) (string, error) {
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
