package identity

import (
	"github.com/alexedwards/argon2id"
)

// DefaultArgon2Params are the parameters used by NewArgon2Verifier
var DefaultArgon2Params = &argon2id.Params{
	Memory:      64 * 1024,
	Iterations:  2,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// Argon2Verifier hashes passwords with argon2id
type Argon2Verifier struct {
	Params *argon2id.Params
}

func NewArgon2Verifier(params *argon2id.Params) *Argon2Verifier {
	if params == nil {
		params = DefaultArgon2Params
	}
	return &Argon2Verifier{Params: params}
}

func (v *Argon2Verifier) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	h, err := argon2id.CreateHash(password, v.Params)
	if err != nil {
		return "", wrapStoreError(err, "failed to hash password")
	}
	return h, nil
}

func (v *Argon2Verifier) Verify(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false
	}
	return match
}

// NewCredentialVerifier returns the verifier registered under name, bcrypt
// when name is unknown or empty.
func NewCredentialVerifier(name string) CredentialVerifier {
	switch name {
	case "argon2id", "argon2":
		return NewArgon2Verifier(nil)
	default:
		return NewBcryptVerifier()
	}
}
