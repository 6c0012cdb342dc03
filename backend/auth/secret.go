package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MaxSecretLength is the longest secret bcrypt will accept.
const MaxSecretLength = 72

var ErrSecretTooLong = errors.New("secret exceeds maximum length")

// SecretHasher hashes private room secrets so that plaintext is never kept in memory
// past room creation. Verification is constant-time.
type SecretHasher struct {
	cost int
}

func NewSecretHasher(cost int) *SecretHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &SecretHasher{cost: cost}
}

func (h *SecretHasher) Hash(secret string) ([]byte, error) {
	if len(secret) > MaxSecretLength {
		return nil, ErrSecretTooLong
	}
	return bcrypt.GenerateFromPassword([]byte(secret), h.cost)
}

func (h *SecretHasher) Verify(hash []byte, secret string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}
