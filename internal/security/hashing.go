package security

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 10

// MaxPasswordBytes is the longest password bcrypt accepts; longer inputs are rejected by GenerateFromPassword.
const MaxPasswordBytes = 72

// Hasher hashes and verifies local-account passwords with bcrypt. Callers
// must not log or persist plaintext passwords.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to 4–31.
// A non-positive cost selects DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a salted bcrypt hash of password suitable for storage.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies password against the stored hash. Returns nil on match and
// bcrypt.ErrMismatchedHashAndPassword (or a parse error) otherwise.
func (h *Hasher) Compare(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}

// Verify reports whether password matches hash. A malformed or empty hash is
// a mismatch, never an error.
func (h *Hasher) Verify(password []byte, hash string) bool {
	if hash == "" {
		return false
	}
	return h.Compare(hash, password) == nil
}

// dummyHash is compared against when no account exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("auth-gateway-timing-equalizer"), DefaultCost)

// Burn performs one bcrypt comparison against a fixed hash and discards the result.
func (h *Hasher) Burn(password []byte) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, password)
}
