package identity_test

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockAccounts implements identity.AccountRepository
type MockAccounts struct {
	mock.Mock
}

var _ identity.AccountRepository = (*MockAccounts)(nil)

func (m *MockAccounts) Create(ctx context.Context, account *identity.Account) (*identity.Account, error) {
	args := m.Called(ctx, account)
	if a := args.Get(0); a != nil {
		return a.(*identity.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) GetByID(ctx context.Context, id uuid.UUID) (*identity.Account, error) {
	args := m.Called(ctx, id)
	if a := args.Get(0); a != nil {
		return a.(*identity.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) GetByEmail(ctx context.Context, email string) (*identity.Account, error) {
	args := m.Called(ctx, email)
	if a := args.Get(0); a != nil {
		return a.(*identity.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) Update(ctx context.Context, id uuid.UUID, patch identity.AccountPatch) (*identity.Account, error) {
	args := m.Called(ctx, id, patch)
	if a := args.Get(0); a != nil {
		return a.(*identity.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) UpdateStatus(ctx context.Context, id uuid.UUID, from, to identity.AccountStatus, opts ...identity.StatusUpdateOption) (*identity.Account, error) {
	args := m.Called(ctx, id, from, to, opts)
	if a := args.Get(0); a != nil {
		return a.(*identity.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) DeleteWhere(ctx context.Context, filter identity.DeleteFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

// MockMailer implements identity.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, email identity.Email) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// MockRenderer implements identity.EmailRenderer
type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) RenderVerification(msg identity.VerificationEmailMessage) (identity.Email, error) {
	args := m.Called(msg)
	return args.Get(0).(identity.Email), args.Error(1)
}

// testClock is a manually advanced clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
