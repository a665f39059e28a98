package identity_test

import (
	"strings"
	"testing"

	"github.com/alexedwards/argon2id"
	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var fastArgon2 = &argon2id.Params{
	Memory:      8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func TestCredentialVerifiers(t *testing.T) {
	verifiers := map[string]identity.CredentialVerifier{
		"bcrypt":   &identity.BcryptVerifier{Cost: bcrypt.MinCost},
		"argon2id": identity.NewArgon2Verifier(fastArgon2),
	}

	for name, v := range verifiers {
		t.Run(name, func(t *testing.T) {
			hash, err := v.Hash("s3cret-password")
			require.NoError(t, err)
			assert.NotEqual(t, "s3cret-password", hash)

			assert.True(t, v.Verify("s3cret-password", hash))
			assert.False(t, v.Verify("wrong-password", hash))
			assert.False(t, v.Verify("", hash))
			assert.False(t, v.Verify("s3cret-password", ""))
			assert.False(t, v.Verify("s3cret-password", "not-a-hash"))

			again, err := v.Hash("s3cret-password")
			require.NoError(t, err)
			assert.NotEqual(t, hash, again, "hashes are salted")
		})
	}
}

func TestCredentialVerifiersRejectEmptyPassword(t *testing.T) {
	_, err := (&identity.BcryptVerifier{Cost: bcrypt.MinCost}).Hash("")
	assert.ErrorIs(t, err, identity.ErrEmptyPassword)

	_, err = identity.NewArgon2Verifier(fastArgon2).Hash("")
	assert.ErrorIs(t, err, identity.ErrEmptyPassword)
}

func TestNewCredentialVerifier(t *testing.T) {
	assert.IsType(t, &identity.Argon2Verifier{}, identity.NewCredentialVerifier("argon2id"))
	assert.IsType(t, &identity.BcryptVerifier{}, identity.NewCredentialVerifier("bcrypt"))
	assert.IsType(t, &identity.BcryptVerifier{}, identity.NewCredentialVerifier(""))
}

func TestArgon2HashFormat(t *testing.T) {
	hash, err := identity.NewArgon2Verifier(fastArgon2).Hash("password")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))
}
