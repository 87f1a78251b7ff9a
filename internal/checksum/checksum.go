package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

func SHA256(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SHA256String hashes the UTF-8 bytes of s. Script checksums go through here
// after decoding and placeholder substitution so the digest is independent of
// the on-disk encoding.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}
