package identity

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// BcryptVerifier is the default CredentialVerifier
type BcryptVerifier struct {
	Cost int
}

// NewBcryptVerifier returns a verifier using the build's default cost
func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{Cost: passwordHashCost()}
}

// Hash will generate a salted password hash
func (v *BcryptVerifier) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	cost := v.Cost
	if cost == 0 {
		cost = passwordHashCost()
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", wrapStoreError(err, "failed to hash password")
	}
	return string(h), nil
}

// Verify will validate the given cleartext password matches the hashed
// password. Malformed hashes never match.
func (v *BcryptVerifier) Verify(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
