package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the lifecycle state of an account
type AccountStatus string

const (
	// AccountStatusPending accounts have not proven email ownership yet
	AccountStatusPending AccountStatus = "pending"
	// AccountStatusVerified accounts are login eligible. Terminal.
	AccountStatusVerified AccountStatus = "verified"
)

// AccountRole is the account's role
type AccountRole string

const (
	RoleUser  AccountRole = "user"
	RoleAdmin AccountRole = "admin"
)

// Account is the identity record
type Account struct {
	bun.BaseModel         `bun:"table:accounts,alias:acc"`
	ID                    uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	Email                 string        `bun:"email,notnull,unique" json:"email"`
	PasswordHash          string        `bun:"password_hash,notnull" json:"-"`
	Name                  *string       `bun:"name" json:"name,omitempty"`
	Surname               *string       `bun:"surname" json:"surname,omitempty"`
	Status                AccountStatus `bun:"status,notnull" json:"status"`
	Role                  AccountRole   `bun:"role,notnull" json:"role"`
	VerificationCode      *string       `bun:"verification_code" json:"-"`
	VerificationExpiresAt *time.Time    `bun:"verification_expires_at" json:"-"`
	CreatedAt             time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt             *time.Time    `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// PendingVerification is the outstanding code of a pending account
type PendingVerification struct {
	Code      string
	ExpiresAt time.Time
}

// PendingVerification returns the outstanding code or nil. Both code and
// expiry must be present for a code to count as outstanding.
func (a *Account) PendingVerification() *PendingVerification {
	if a == nil || a.VerificationCode == nil || a.VerificationExpiresAt == nil {
		return nil
	}
	return &PendingVerification{
		Code:      *a.VerificationCode,
		ExpiresAt: *a.VerificationExpiresAt,
	}
}

// EnsureDefaults fills the status and role when empty.
func (a *Account) EnsureDefaults() {
	if a.Status == "" {
		a.Status = AccountStatusPending
	}
	if a.Role == "" {
		a.Role = RoleUser
	}
}

func (a *Account) IsVerified() bool {
	return a != nil && a.Status == AccountStatusVerified
}

func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

func (a *Account) setVerification(code string, expiresAt time.Time) {
	a.VerificationCode = &code
	a.VerificationExpiresAt = &expiresAt
}

func (a *Account) clearVerification() {
	a.VerificationCode = nil
	a.VerificationExpiresAt = nil
}

// AccountPatch is a partial update. Nil fields are left untouched.
type AccountPatch struct {
	Name                  *string
	Surname               *string
	Role                  *AccountRole
	VerificationCode      *string
	VerificationExpiresAt *time.Time
	// ClearVerification nulls both code columns and wins over the code fields.
	ClearVerification bool
	// RequireStatus applies the patch only while the account is still in
	// this status. A mismatch yields ErrAccountStateChanged.
	RequireStatus AccountStatus
}

// IsEmpty reports whether the patch would change nothing.
func (p AccountPatch) IsEmpty() bool {
	return p.Name == nil &&
		p.Surname == nil &&
		p.Role == nil &&
		p.VerificationCode == nil &&
		p.VerificationExpiresAt == nil &&
		!p.ClearVerification
}

// DeleteFilter selects accounts for bulk deletion. CreatedBefore is
// inclusive. A zero filter matches nothing.
type DeleteFilter struct {
	Status        AccountStatus
	CreatedBefore time.Time
}

func (f DeleteFilter) IsZero() bool {
	return f.Status == "" && f.CreatedBefore.IsZero()
}

// Matches applies the filter to a single account.
func (f DeleteFilter) Matches(a *Account) bool {
	if a == nil || f.IsZero() {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if !f.CreatedBefore.IsZero() && a.CreatedAt.After(f.CreatedBefore) {
		return false
	}
	return true
}

// StatusUpdate carries the extra conditions and side effects of a status change
type StatusUpdate struct {
	ExpectedCode      *string
	ClearVerification bool
	At                time.Time
}

type StatusUpdateOption func(*StatusUpdate)

// WithExpectedCode only matches rows whose stored code equals code.
func WithExpectedCode(code string) StatusUpdateOption {
	return func(su *StatusUpdate) {
		su.ExpectedCode = &code
	}
}

// WithClearedVerification nulls the code columns in the same update.
func WithClearedVerification() StatusUpdateOption {
	return func(su *StatusUpdate) {
		su.ClearVerification = true
	}
}

// WithStatusUpdatedAt sets the updated_at value written with the status.
func WithStatusUpdatedAt(t time.Time) StatusUpdateOption {
	return func(su *StatusUpdate) {
		su.At = t
	}
}

// BuildStatusUpdate resolves options, used by repository implementations.
func BuildStatusUpdate(opts ...StatusUpdateOption) StatusUpdate {
	su := StatusUpdate{}
	for _, opt := range opts {
		if opt != nil {
			opt(&su)
		}
	}
	if su.At.IsZero() {
		su.At = systemClock()
	}
	return su
}

// NormalizeEmail lower cases and trims an address so lookups are case
// insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
