package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

const pgUniqueViolation = "23505"

// Accounts implements identity.AccountRepository using Bun.
type Accounts struct {
	db   *bun.DB
	base repository.Repository[*identity.Account]
	now  identity.Clock
}

var _ identity.AccountRepository = (*Accounts)(nil)

type AccountsOption func(*Accounts)

// WithAccountsClock sets the clock used for created_at and updated_at.
func WithAccountsClock(clock identity.Clock) AccountsOption {
	return func(a *Accounts) {
		if clock != nil {
			a.now = clock
		}
	}
}

// NewAccounts creates a new repository.
func NewAccounts(db *bun.DB, opts ...AccountsOption) *Accounts {
	base := repository.NewRepository[*identity.Account](db, repository.ModelHandlers[*identity.Account]{
		NewRecord: func() *identity.Account { return &identity.Account{} },
		GetID: func(a *identity.Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *identity.Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	accounts := &Accounts{
		db:   db,
		base: base,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(accounts)
		}
	}
	return accounts
}

// Create implements identity.AccountRepository.
func (r *Accounts) Create(ctx context.Context, account *identity.Account) (*identity.Account, error) {
	if account == nil {
		return nil, goerrors.New("account must not be nil", goerrors.CategoryBadInput)
	}

	account.Email = identity.NormalizeEmail(account.Email)
	account.EnsureDefaults()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = r.now()
	}
	account.CreatedAt = account.CreatedAt.UTC()

	if _, err := r.db.NewInsert().Model(account).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, identity.ErrAlreadyRegistered
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create account")
	}

	return account, nil
}

// GetByID implements identity.AccountRepository.
func (r *Accounts) GetByID(ctx context.Context, id uuid.UUID) (*identity.Account, error) {
	account, err := r.base.GetByID(ctx, id.String())
	if err != nil {
		return nil, mapReadError(err)
	}
	return account, nil
}

// GetByEmail implements identity.AccountRepository. Matching is case
// insensitive.
func (r *Accounts) GetByEmail(ctx context.Context, email string) (*identity.Account, error) {
	record := &identity.Account{}
	err := r.db.NewSelect().
		Model(record).
		Where("lower(?TableAlias.email) = ?", identity.NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapReadError(err)
	}
	return record, nil
}

// Update implements identity.AccountRepository.
func (r *Accounts) Update(ctx context.Context, id uuid.UUID, patch identity.AccountPatch) (*identity.Account, error) {
	if patch.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	q := r.db.NewUpdate().
		Model((*identity.Account)(nil)).
		Set("updated_at = ?", r.now()).
		Where("id = ?", id.String())

	if patch.RequireStatus != "" {
		q = q.Where("status = ?", patch.RequireStatus)
	}
	if patch.Name != nil {
		q = q.Set("name = ?", *patch.Name)
	}
	if patch.Surname != nil {
		q = q.Set("surname = ?", *patch.Surname)
	}
	if patch.Role != nil {
		q = q.Set("role = ?", *patch.Role)
	}

	switch {
	case patch.ClearVerification:
		q = q.Set("verification_code = NULL").Set("verification_expires_at = NULL")
	case patch.VerificationCode != nil && patch.VerificationExpiresAt != nil:
		q = q.Set("verification_code = ?", *patch.VerificationCode).
			Set("verification_expires_at = ?", patch.VerificationExpiresAt.UTC())
	case patch.VerificationCode != nil || patch.VerificationExpiresAt != nil:
		return nil, goerrors.New("verification code and expiry must be updated together", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not update account")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if patch.RequireStatus == "" {
			return nil, identity.ErrAccountNotFound
		}
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, identity.ErrAccountStateChanged
	}

	return r.GetByID(ctx, id)
}

// UpdateStatus implements identity.AccountRepository. The update only
// matches a row still in status from (and holding the expected code when
// one is given), which makes concurrent transitions single-winner.
func (r *Accounts) UpdateStatus(ctx context.Context, id uuid.UUID, from, to identity.AccountStatus, opts ...identity.StatusUpdateOption) (*identity.Account, error) {
	su := identity.BuildStatusUpdate(opts...)

	q := r.db.NewUpdate().
		Model((*identity.Account)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", su.At.UTC()).
		Where("id = ?", id.String()).
		Where("status = ?", from)

	if su.ExpectedCode != nil {
		q = q.Where("verification_code = ?", *su.ExpectedCode)
	}
	if su.ClearVerification {
		q = q.Set("verification_code = NULL").Set("verification_expires_at = NULL")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not update account status")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not read affected rows")
	}

	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, identity.ErrAccountStateChanged
	}

	return r.GetByID(ctx, id)
}

// DeleteWhere implements identity.AccountRepository as a single conditional
// DELETE. A zero filter is rejected rather than deleting every row.
func (r *Accounts) DeleteWhere(ctx context.Context, filter identity.DeleteFilter) (int64, error) {
	if filter.IsZero() {
		return 0, goerrors.New("delete filter must not be empty", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	q := r.db.NewDelete().Model((*identity.Account)(nil))
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if !filter.CreatedBefore.IsZero() {
		q = q.Where("created_at <= ?", filter.CreatedBefore.UTC())
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "could not delete accounts")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "could not read affected rows")
	}
	return n, nil
}

func mapReadError(err error) error {
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return identity.ErrAccountNotFound
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "could not read account")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
