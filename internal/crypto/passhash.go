// Package crypto hashes and verifies account passwords with Argon2id.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"

	"github.com/and161185/grovi/internal/errs"
)

// Params are the Argon2id cost settings.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// DefaultParams is used by the backend.
var DefaultParams = Params{Time: 3, Memory: 64 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

// MinPasswordLen is the shortest accepted password, in characters.
const MinPasswordLen = 6

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// CheckPassword rejects passwords the backend will not store.
func CheckPassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters: %w", MinPasswordLen, errs.ErrValidation)
	}
	return nil
}

// Hasher derives password hashes with fixed parameters.
type Hasher struct{ p Params }

// NewHasher returns a Hasher for p.
func NewHasher(p Params) Hasher { return Hasher{p: p} }

// Hash returns the hash of password under a fresh random salt.
func (h Hasher) Hash(password string) (hash, salt []byte, err error) {
	salt, err = RandBytes(h.p.SaltLen)
	if err != nil {
		return nil, nil, err
	}
	return h.derive(password, salt), salt, nil
}

// Verify reports whether password matches expected under salt, in constant time.
func (h Hasher) Verify(password string, salt, expected []byte) bool {
	got := h.derive(password, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}

// Burn spends the same work as Verify so unknown accounts cost as much as known ones.
func (h Hasher) Burn(password string) {
	_ = h.derive(password, make([]byte, h.p.SaltLen))
}

func (h Hasher) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, h.p.Time, h.p.Memory, h.p.Threads, h.p.KeyLen)
}
