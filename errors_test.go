package identity_test

import (
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	cases := []struct {
		err      error
		category goerrors.Category
		textCode string
		code     int
	}{
		{identity.ErrAlreadyRegistered, goerrors.CategoryConflict, identity.TextCodeAlreadyRegistered, goerrors.CodeConflict},
		{identity.ErrInvalidCredentials, goerrors.CategoryAuth, identity.TextCodeInvalidCredentials, goerrors.CodeUnauthorized},
		{identity.ErrNotVerified, goerrors.CategoryAuth, identity.TextCodeNotVerified, goerrors.CodeUnauthorized},
		{identity.ErrInvalidCode, goerrors.CategoryAuth, identity.TextCodeInvalidCode, goerrors.CodeUnauthorized},
		{identity.ErrInvalidToken, goerrors.CategoryAuth, identity.TextCodeInvalidToken, goerrors.CodeUnauthorized},
		{identity.ErrMissingToken, goerrors.CategoryAuth, identity.TextCodeMissingToken, goerrors.CodeUnauthorized},
		{identity.ErrForbidden, goerrors.CategoryAuthz, identity.TextCodeForbidden, goerrors.CodeForbidden},
		{identity.ErrAccountNotFound, goerrors.CategoryNotFound, identity.TextCodeAccountNotFound, goerrors.CodeNotFound},
		{identity.ErrInvalidCodeFormat, goerrors.CategoryValidation, identity.TextCodeInvalidCodeFormat, goerrors.CodeBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.textCode, func(t *testing.T) {
			var richErr *goerrors.Error
			require.True(t, goerrors.As(tc.err, &richErr))
			assert.Equal(t, tc.category, richErr.Category)
			assert.Equal(t, tc.textCode, richErr.TextCode)
			assert.Equal(t, tc.code, richErr.Code)
		})
	}
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, identity.IsUnauthorized(identity.ErrInvalidToken))
	assert.True(t, identity.IsUnauthorized(identity.ErrMissingToken))
	assert.True(t, identity.IsUnauthorized(identity.ErrInvalidCredentials))
	assert.False(t, identity.IsUnauthorized(identity.ErrForbidden))
	assert.False(t, identity.IsUnauthorized(identity.ErrAccountNotFound))
	assert.False(t, identity.IsUnauthorized(errors.New("plain")))
	assert.False(t, identity.IsUnauthorized(nil))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, identity.IsNotFound(identity.ErrAccountNotFound))
	assert.True(t, identity.IsNotFound(fmt.Errorf("lookup: %w", identity.ErrAccountNotFound)))
	assert.False(t, identity.IsNotFound(identity.ErrInvalidToken))
	assert.False(t, identity.IsNotFound(errors.New("plain")))
}
