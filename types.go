package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// CredentialVerifier hashes and verifies passwords
type CredentialVerifier interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, verifier string) bool
}

// AccountRepository is the persistence contract consumed by the core
type AccountRepository interface {
	Create(ctx context.Context, account *Account) (*Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	// Update applies the non nil fields of patch to the account.
	Update(ctx context.Context, id uuid.UUID, patch AccountPatch) (*Account, error)
	// UpdateStatus moves the account from one status to another only if the
	// stored row still has status from. It returns ErrAccountStateChanged
	// when no row matched.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to AccountStatus, opts ...StatusUpdateOption) (*Account, error)
	DeleteWhere(ctx context.Context, filter DeleteFilter) (int64, error)
}

// Mailer delivers a rendered email
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// Email is a rendered outbound message
type Email struct {
	To      string
	From    string
	Subject string
	HTML    string
	Text    string
}

// Dispatcher hands verification emails to a background worker. Dispatch must
// not block on delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg VerificationEmailMessage) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, msg VerificationEmailMessage) error

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, msg VerificationEmailMessage) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

// Clock returns the current time
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

// NopLogger discards every message.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
