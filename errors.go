package identity

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation         = "VALIDATION_ERROR"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeInvalidCodeFormat  = "INVALID_CODE_FORMAT"
	TextCodeAlreadyRegistered  = "ALREADY_REGISTERED"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeNotVerified        = "ACCOUNT_NOT_VERIFIED"
	TextCodeInvalidCode        = "INVALID_VERIFICATION_CODE"
	TextCodeInvalidToken       = "INVALID_TOKEN"
	TextCodeMissingToken       = "MISSING_TOKEN"
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	TextCodeAccountChanged     = "ACCOUNT_STATE_CHANGED"
)

// ErrValidation is returned when an input payload fails validation.
var ErrValidation = goerrors.New("invalid input", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCodeFormat is returned when a verification code is not six digits.
var ErrInvalidCodeFormat = goerrors.New("verification code must be 6 digits", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidCodeFormat).
	WithCode(goerrors.CodeBadRequest)

// ErrAlreadyRegistered is returned on signup when the email is taken.
var ErrAlreadyRegistered = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyRegistered).
	WithCode(goerrors.CodeConflict)

// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrNotVerified is returned when a pending account tries to log in.
var ErrNotVerified = goerrors.New("account not verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotVerified).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidCode is returned when a verification code is missing, expired or wrong.
var ErrInvalidCode = goerrors.New("invalid verification code", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCode).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidToken is the single outcome of every failed token validation.
var ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrMissingToken is returned when the session carries no token.
var ErrMissingToken = goerrors.New("missing token", goerrors.CategoryAuth).
	WithTextCode(TextCodeMissingToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden is returned when a verified account lacks the required role.
var ErrForbidden = goerrors.New("insufficient privileges", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrAccountNotFound is returned when an id or email does not resolve.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrAccountStateChanged is returned when a conditional update matched no row
// because the account moved on since it was read.
var ErrAccountStateChanged = goerrors.New("account state changed concurrently", goerrors.CategoryConflict).
	WithTextCode(TextCodeAccountChanged).
	WithCode(goerrors.CodeConflict)

// IsUnauthorized reports whether err belongs to the generic unauthorized class.
func IsUnauthorized(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryAuth
}

// IsNotFound reports whether err means the account does not exist.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrAccountNotFound) {
		return true
	}
	return goerrors.IsNotFound(err)
}

func wrapStoreError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category != goerrors.CategoryInternal {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithCode(goerrors.CodeInternal)
}
