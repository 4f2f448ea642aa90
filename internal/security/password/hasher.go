// Package password derives and verifies salted Argon2id password digests.
//
// A stored record has the shape hex(key) + "." + hex(salt). Cost parameters
// are fixed per deployment and are not part of the record.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Delimiter separates the digest and salt segments of a stored record.
const Delimiter = "."

// Params are the Argon2id cost parameters shared by every record.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// DefaultParams returns the deployment defaults.
func DefaultParams() Params {
	return Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		KeyLen:  32,
		SaltLen: 16,
	}
}

// Hasher hashes and verifies passwords with fixed parameters.
type Hasher struct {
	params    Params
	dummySalt []byte
}

// NewHasher creates a hasher with the given parameters.
func NewHasher(params Params) *Hasher {
	return &Hasher{
		params:    params,
		dummySalt: randomBytes(params.SaltLen),
	}
}

// Hash derives a key from plaintext and a fresh random salt and returns the
// encoded record.
func (h *Hasher) Hash(plaintext string) string {
	salt := randomBytes(h.params.SaltLen)
	key := h.derive(plaintext, salt)
	return hex.EncodeToString(key) + Delimiter + hex.EncodeToString(salt)
}

// Verify reports whether plaintext matches the stored record. Malformed
// records yield false after the same derivation work as a real mismatch.
func (h *Hasher) Verify(plaintext, stored string) bool {
	digest, salt, ok := h.decode(stored)
	if !ok {
		h.derive(plaintext, h.dummySalt)
		return false
	}
	candidate := h.derive(plaintext, salt)
	return subtle.ConstantTimeCompare(candidate, digest) == 1
}

// WellFormed reports whether stored has the record shape this hasher emits.
func (h *Hasher) WellFormed(stored string) bool {
	_, _, ok := h.decode(stored)
	return ok
}

func (h *Hasher) decode(stored string) (digest, salt []byte, ok bool) {
	parts := strings.Split(stored, Delimiter)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, nil, false
	}
	digest, err := hex.DecodeString(parts[0])
	if err != nil || len(digest) != int(h.params.KeyLen) {
		return nil, nil, false
	}
	salt, err = hex.DecodeString(parts[1])
	if err != nil {
		return nil, nil, false
	}
	return digest, salt, true
}

func (h *Hasher) derive(plaintext string, salt []byte) []byte {
	p := h.params
	return argon2.IDKey([]byte(plaintext), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
}

// randomBytes panics only if the system randomness source is broken, which
// crypto/rand itself treats as fatal.
func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("password: crypto/rand failed: " + err.Error())
	}
	return b
}
