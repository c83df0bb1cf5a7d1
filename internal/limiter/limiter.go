// Package limiter throttles sign-in attempts per (identifier, client address).
package limiter

import (
	"context"
	"crypto/sha256"
	"strings"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether a login may be tried now, with the remaining block otherwise.
	Allow(ctx context.Context, identifier string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, identifier string, ipHash []byte) error
	// Failure records a failed attempt and reports whether it placed a block.
	Failure(ctx context.Context, identifier string, ipHash []byte) (bool, time.Duration, error)
}

// Policy sets the sliding window and lockout.
type Policy struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// DefaultPolicy allows five failures per fifteen minutes.
var DefaultPolicy = Policy{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}

// HashIP returns a stable hash for an address so raw addresses are never stored.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Key normalizes an identifier (username or email) so case variants share a counter.
func Key(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Nop never limits.
type Nop struct{}

var _ Limiter = Nop{}

// Allow implements Limiter.
func (Nop) Allow(context.Context, string, []byte) (bool, time.Duration, error) { return true, 0, nil }

// Success implements Limiter.
func (Nop) Success(context.Context, string, []byte) error { return nil }

// Failure implements Limiter.
func (Nop) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}
