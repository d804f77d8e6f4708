package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptySecret is returned when signing is attempted without key material
var ErrEmptySecret = errors.New("webhook: signing secret is empty")

// Sign computes the lowercase-hex HMAC-SHA256 digest of payload under
// secret. The payload must be the exact bytes that will be transmitted.
func Sign(payload, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature reports whether signature matches the digest of payload
// under secret, using a constant-time comparison.
func VerifySignature(payload, secret []byte, signature string) bool {
	want, err := Sign(payload, secret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(signature))
}
