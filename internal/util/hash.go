package util

import (
	"crypto/sha256"
	"encoding/hex"
)

func SHA256Hex(b []byte) string {
	x := sha256.Sum256(b)
	return hex.EncodeToString(x[:])
}

// ShortHash is the first n hex characters of the SHA-256 of s.
func ShortHash(s string, n int) string {
	h := SHA256Hex([]byte(s))
	if n <= 0 || n >= len(h) {
		return h
	}
	return h[:n]
}
