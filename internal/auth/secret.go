package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// maxSecretBytes is the longest input bcrypt hashes without truncation.
const maxSecretBytes = 72

// ErrSecretTooLong is returned for client secrets bcrypt cannot hash whole.
var ErrSecretTooLong = errors.New("client secret longer than 72 bytes")

// HashSecret hashes a client secret. Costs outside bcrypt's range fall back
// to bcrypt.DefaultCost.
func HashSecret(secret string, cost int) (string, error) {
	if len(secret) > maxSecretBytes {
		return "", ErrSecretTooLong
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifySecret reports whether secret matches the stored hash.
func VerifySecret(hash, secret string) bool {
	if hash == "" || len(secret) > maxSecretBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
