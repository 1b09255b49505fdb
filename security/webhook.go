package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// SignBody computes the hex HMAC-SHA256 a webhook caller must present
// in the X-Signature header.
func SignBody(body, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyBody checks a webhook body against its signature header in
// constant time.
func VerifyBody(body, key []byte, signature string) bool {
	return hmac.Equal([]byte(SignBody(body, key)), []byte(signature))
}

// HashSecret stores a shared secret in bcrypt form so configuration
// dumps never leak the raw value.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareSecret reports whether the presented secret matches the stored
// bcrypt hash.
func CompareSecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
