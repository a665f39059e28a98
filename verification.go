package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// VerificationCodeLength is the number of digits in a code
	VerificationCodeLength = 6
	// DefaultVerificationCodeTTL is how long an issued code stays valid
	DefaultVerificationCodeTTL = 15 * time.Minute
)

var codeSpace = big.NewInt(1_000_000)

// CodeGenerator returns a fresh numeric code
type CodeGenerator func() (string, error)

// RandomCode draws a uniformly random 6 digit code, leading zeros allowed.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}
	return fmt.Sprintf("%0*d", VerificationCodeLength, n.Int64()), nil
}

// VerificationCodeIssuer generates, stores and validates one-time codes
type VerificationCodeIssuer struct {
	repo     AccountRepository
	ttl      time.Duration
	now      Clock
	generate CodeGenerator
}

type IssuerOption func(*VerificationCodeIssuer)

// WithIssuerClock injects a custom clock (useful for tests).
func WithIssuerClock(clock Clock) IssuerOption {
	return func(i *VerificationCodeIssuer) {
		if clock != nil {
			i.now = clock
		}
	}
}

// WithCodeTTL overrides the 15 minute validity window.
func WithCodeTTL(ttl time.Duration) IssuerOption {
	return func(i *VerificationCodeIssuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithCodeGenerator overrides the random source.
func WithCodeGenerator(gen CodeGenerator) IssuerOption {
	return func(i *VerificationCodeIssuer) {
		if gen != nil {
			i.generate = gen
		}
	}
}

func NewVerificationCodeIssuer(repo AccountRepository, opts ...IssuerOption) *VerificationCodeIssuer {
	issuer := &VerificationCodeIssuer{
		repo:     repo,
		ttl:      DefaultVerificationCodeTTL,
		now:      systemClock,
		generate: RandomCode,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(issuer)
		}
	}
	return issuer
}

// Issue generates a code, persists it with its expiry onto the account and
// returns the plaintext code. Any previous code is overwritten. The write
// only lands while the stored account is still pending, otherwise
// ErrAccountStateChanged is returned.
func (i *VerificationCodeIssuer) Issue(ctx context.Context, account *Account) (string, error) {
	if account == nil {
		return "", goerrors.New("account must not be nil", goerrors.CategoryInternal)
	}

	code, err := i.generate()
	if err != nil {
		return "", err
	}

	expiresAt := i.now().Add(i.ttl)

	if _, err := i.repo.Update(ctx, account.ID, AccountPatch{
		VerificationCode:      &code,
		VerificationExpiresAt: &expiresAt,
		RequireStatus:         AccountStatusPending,
	}); err != nil {
		return "", wrapStoreError(err, "failed to store verification code")
	}

	account.setVerification(code, expiresAt)

	return code, nil
}

// Stamp sets a fresh code on an account that is about to be created, so the
// code is persisted by the same insert.
func (i *VerificationCodeIssuer) Stamp(account *Account) (string, error) {
	code, err := i.generate()
	if err != nil {
		return "", err
	}
	account.setVerification(code, i.now().Add(i.ttl))
	return code, nil
}

// Validate reports whether candidate is the outstanding, unexpired code of
// account. It never clears the code.
func (i *VerificationCodeIssuer) Validate(account *Account, candidate string) bool {
	pending := account.PendingVerification()
	if pending == nil {
		return false
	}

	if i.now().After(pending.ExpiresAt) {
		return false
	}

	return constantTimeEqual(pending.Code, candidate)
}

// ValidateFormat rejects anything that is not exactly six ASCII digits.
func ValidateFormat(candidate string) error {
	if len(candidate) != VerificationCodeLength {
		return ErrInvalidCodeFormat
	}
	for _, r := range candidate {
		if r < '0' || r > '9' {
			return ErrInvalidCodeFormat
		}
	}
	return nil
}
