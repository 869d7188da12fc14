package internal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// RandomHex returns n random bytes hex encoded.
func RandomHex(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("random: size must be > 0")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Mask keeps the first visible characters of s and replaces the rest with
// '*'. Strings no longer than visible are masked entirely.
func Mask(s string, visible int) string {
	if visible < 0 || len(s) <= visible {
		visible = 0
	}
	out := make([]byte, len(s))
	copy(out, s[:visible])
	for i := visible; i < len(out); i++ {
		out[i] = '*'
	}
	return string(out)
}
