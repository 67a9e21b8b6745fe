package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// KeyedHasher computes deterministic HMAC-SHA256 digests for short-lived
// numeric codes. Not for passwords.
type KeyedHasher struct {
	key []byte
}

func NewKeyedHasher(key string) *KeyedHasher {
	return &KeyedHasher{key: []byte(key)}
}

func (k *KeyedHasher) Sum(value string) string {
	h := hmac.New(sha256.New, k.key)
	h.Write([]byte(value))

	return hex.EncodeToString(h.Sum(nil))
}

// Equal compares two hex digests in constant time.
func (k *KeyedHasher) Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
