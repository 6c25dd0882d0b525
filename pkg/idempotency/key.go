package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// NormalizeKey trims surrounding whitespace from a header value
func NormalizeKey(key string) string {
	return strings.TrimSpace(key)
}

// ValidateKey accepts non-empty keys of letters, digits, '-' and '_' no longer than maxLength
func ValidateKey(key string, maxLength int) error {
	switch {
	case key == "":
		return ErrKeyRequired
	case len(key) > maxLength:
		return ErrKeyTooLong
	case !keyPattern.MatchString(key):
		return ErrKeyInvalid
	}
	return nil
}

// ComputeRequestFingerprint hashes method, path and body. A key replayed against
// another transaction or with another payload yields a different fingerprint.
func ComputeRequestFingerprint(method, path string, body []byte) string {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(method), []byte(path)} {
		h.Write(part)
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
