package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

var ErrInvalidCSRFToken = errors.New("invalid CSRF token")

// GenerateCSRFToken returns 32 random bytes as a 64-character hex string.
// The token is sent as a readable cookie and echoed back in a header.
func GenerateCSRFToken() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(randomBytes), nil
}

// VerifyCSRFToken compares the cookie and header values in constant time.
func VerifyCSRFToken(cookieToken, headerToken string) error {
	if cookieToken == "" || headerToken == "" {
		return ErrInvalidCSRFToken
	}
	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
		return ErrInvalidCSRFToken
	}
	return nil
}
