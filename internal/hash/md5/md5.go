// Package md5 provides the identity digests used for item, signal and candidate ids.
package md5

import (
	"crypto/md5" //nolint:gosec // identity hashing, not security
	"encoding/hex"
	"strings"
)

// Hex returns the lowercase hex MD5 digest of s.
func Hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // identity hashing
	return hex.EncodeToString(sum[:])
}

// Key joins parts with "|" and returns the digest.
func Key(parts ...string) string {
	return Hex(strings.Join(parts, "|"))
}

// Short returns the first n hex characters of the digest of s.
func Short(s string, n int) string {
	d := Hex(s)
	if n <= 0 || n >= len(d) {
		return d
	}
	return d[:n]
}
