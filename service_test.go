package identity_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct-horse-battery"

type captureLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(string, ...any)  {}
func (l *captureLogger) Warn(string, ...any)  {}
func (l *captureLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

type sentCodes struct {
	mu       sync.Mutex
	messages []identity.VerificationEmailMessage
}

func (s *sentCodes) Dispatch(_ context.Context, msg identity.VerificationEmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *sentCodes) last(t *testing.T) identity.VerificationEmailMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.messages)
	return s.messages[len(s.messages)-1]
}

type authFixture struct {
	auth     *identity.AuthService
	tokens   *identity.TokenService
	accounts identity.AccountRepository
	clock    *testClock
	sent     *sentCodes
	logger   *captureLogger
}

func newSQLiteAccounts(t *testing.T, clock *testClock) *repository.Accounts {
	t.Helper()

	db, err := repository.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = repository.Migrate(context.Background(), db)
	require.NoError(t, err)

	return repository.NewAccounts(db, repository.WithAccountsClock(clock.Now))
}

func newAuthFixture(t *testing.T, opts ...identity.AuthServiceOption) *authFixture {
	t.Helper()

	clock := newTestClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	accounts := newSQLiteAccounts(t, clock)
	tokens := newTokenService(t, clock)
	sent := &sentCodes{}
	logger := &captureLogger{}

	base := []identity.AuthServiceOption{
		identity.WithCredentialVerifier(&identity.BcryptVerifier{Cost: bcrypt.MinCost}),
		identity.WithDispatcher(sent),
		identity.WithAuthClock(clock.Now),
		identity.WithAuthLogger(logger),
		identity.WithVerificationURL("https://example.com/auth/verify"),
	}

	return &authFixture{
		auth:     identity.NewAuthService(accounts, tokens, append(base, opts...)...),
		tokens:   tokens,
		accounts: accounts,
		clock:    clock,
		sent:     sent,
		logger:   logger,
	}
}

func (f *authFixture) signup(t *testing.T, email string) string {
	t.Helper()
	_, err := f.auth.Signup(context.Background(), identity.SignupInput{Email: email, Password: testPassword})
	require.NoError(t, err)
	return f.sent.last(t).Code
}

func (f *authFixture) verified(t *testing.T, email string) *identity.VerifyResult {
	t.Helper()
	code := f.signup(t, email)
	res, err := f.auth.Verify(context.Background(), email, code)
	require.NoError(t, err)
	return res
}

func TestSignupCreatesPendingAccount(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	name := "Ada"
	res, err := f.auth.Signup(ctx, identity.SignupInput{Email: " Ada@Example.COM ", Password: testPassword, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", res.Email)
	assert.False(t, res.Verified)

	account, err := f.accounts.GetByID(ctx, res.AccountID)
	require.NoError(t, err)
	assert.Equal(t, identity.AccountStatusPending, account.Status)
	assert.Equal(t, identity.RoleUser, account.Role)
	assert.NotEqual(t, testPassword, account.PasswordHash)
	require.NotNil(t, account.Name)
	assert.Equal(t, "Ada", *account.Name)

	pending := account.PendingVerification()
	require.NotNil(t, pending)
	assert.True(t, pending.ExpiresAt.Equal(f.clock.Now().Add(15*time.Minute)))

	msg := f.sent.last(t)
	assert.Equal(t, "ada@example.com", msg.Email)
	assert.Equal(t, pending.Code, msg.Code)
	assert.Contains(t, msg.MagicLink, "https://example.com/auth/verify?")
	assert.Contains(t, msg.MagicLink, "code="+msg.Code)
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "dup@example.com")

	_, err := f.auth.Signup(context.Background(), identity.SignupInput{Email: "DUP@example.com", Password: testPassword})
	assert.ErrorIs(t, err, identity.ErrAlreadyRegistered)
}

func TestSignupValidation(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.auth.Signup(context.Background(), identity.SignupInput{Email: "nope", Password: strings.Repeat("p", 73)})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	assert.Equal(t, identity.TextCodeValidation, richErr.TextCode)

	fields, ok := richErr.Metadata["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestSignupSucceedsWhenDispatchFails(t *testing.T) {
	logger := &captureLogger{}
	f := newAuthFixture(t,
		identity.WithDispatcher(identity.DispatcherFunc(func(context.Context, identity.VerificationEmailMessage) error {
			return errors.New("smtp down")
		})),
		identity.WithAuthLogger(logger),
	)

	res, err := f.auth.Signup(context.Background(), identity.SignupInput{Email: "mailfail@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.False(t, res.Verified)

	require.Len(t, logger.errors, 1)
	assert.Contains(t, logger.errors[0], "smtp down")
}

func TestVerifyFlow(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	code := f.signup(t, "flow@example.com")

	wrong := "000000"
	if code == wrong {
		wrong = "999999"
	}

	_, err := f.auth.Verify(ctx, "flow@example.com", wrong)
	assert.ErrorIs(t, err, identity.ErrInvalidCode)

	_, err = f.auth.Verify(ctx, "flow@example.com", "12345")
	assert.ErrorIs(t, err, identity.ErrInvalidCodeFormat)

	_, err = f.auth.Verify(ctx, "ghost@example.com", code)
	assert.ErrorIs(t, err, identity.ErrAccountNotFound)

	res, err := f.auth.Verify(ctx, "FLOW@example.com", code)
	require.NoError(t, err)
	assert.False(t, res.AlreadyVerified)
	assert.True(t, res.Account.IsVerified())
	require.NotNil(t, res.Tokens)

	claims, err := f.tokens.ValidateAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "flow@example.com", claims.Email)

	stored, err := f.accounts.GetByEmail(ctx, "flow@example.com")
	require.NoError(t, err)
	assert.Equal(t, identity.AccountStatusVerified, stored.Status)
	assert.Nil(t, stored.PendingVerification())

	// codes are single use
	again, err := f.auth.Verify(ctx, "flow@example.com", code)
	require.NoError(t, err)
	assert.True(t, again.AlreadyVerified)
	assert.Nil(t, again.Tokens)
}

func TestVerifyExpiredCode(t *testing.T) {
	f := newAuthFixture(t)
	code := f.signup(t, "late@example.com")

	f.clock.Advance(15*time.Minute + time.Minute)

	_, err := f.auth.Verify(context.Background(), "late@example.com", code)
	assert.ErrorIs(t, err, identity.ErrInvalidCode)
}

func TestVerifyJustBeforeExpiry(t *testing.T) {
	f := newAuthFixture(t)
	code := f.signup(t, "ontime@example.com")

	f.clock.Advance(14*time.Minute + 59*time.Second)

	res, err := f.auth.Verify(context.Background(), "ontime@example.com", code)
	require.NoError(t, err)
	assert.True(t, res.Account.IsVerified())
}

func TestResendCodeInvalidatesPrevious(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	first := f.signup(t, "resend@example.com")

	require.NoError(t, f.auth.ResendCode(ctx, "resend@example.com"))
	second := f.sent.last(t).Code

	if first != second {
		_, err := f.auth.Verify(ctx, "resend@example.com", first)
		assert.ErrorIs(t, err, identity.ErrInvalidCode)
	}

	_, err := f.auth.Verify(ctx, "resend@example.com", second)
	require.NoError(t, err)

	// unknown and verified emails succeed without sending anything
	count := len(f.sent.messages)
	require.NoError(t, f.auth.ResendCode(ctx, "nobody@example.com"))
	require.NoError(t, f.auth.ResendCode(ctx, "resend@example.com"))
	assert.Len(t, f.sent.messages, count)
}

func TestLoginFlow(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.signup(t, "pending@example.com")
	_, err := f.auth.Login(ctx, "pending@example.com", testPassword)
	assert.ErrorIs(t, err, identity.ErrNotVerified)

	_, err = f.auth.Login(ctx, "pending@example.com", "wrong-password")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	f.verified(t, "active@example.com")

	pair, err := f.auth.Login(ctx, "Active@Example.com", testPassword)
	require.NoError(t, err)
	_, err = f.tokens.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	_, err = f.tokens.ValidateRefresh(pair.RefreshToken)
	require.NoError(t, err)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.verified(t, "known@example.com")

	_, wrongPassword := f.auth.Login(ctx, "known@example.com", "not-the-password")
	_, unknownEmail := f.auth.Login(ctx, "unknown@example.com", "not-the-password")

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.Same(t, identity.ErrInvalidCredentials, wrongPassword)
	assert.Same(t, identity.ErrInvalidCredentials, unknownEmail)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestRefreshRotatesTokens(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.verified(t, "rotate@example.com")

	f.clock.Advance(20 * time.Minute)

	_, err := f.tokens.ValidateAccess(res.Tokens.AccessToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken, "access token expired")

	pair, err := f.auth.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.Tokens.AccessToken, pair.AccessToken)
	assert.NotEqual(t, res.Tokens.RefreshToken, pair.RefreshToken)

	claims, err := f.tokens.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "rotate@example.com", claims.Email)
	assert.True(t, pair.AccessExpiresAt.Equal(f.clock.Now().Add(15*time.Minute)))
}

func TestRefreshFailures(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.verified(t, "refresh@example.com")

	_, err := f.auth.Refresh(ctx, "")
	assert.ErrorIs(t, err, identity.ErrMissingToken)

	_, err = f.auth.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	_, err = f.auth.Refresh(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	f.clock.Advance(8 * 24 * time.Hour)
	_, err = f.auth.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestRefreshRejectsNonUUIDSubject(t *testing.T) {
	f := newAuthFixture(t)
	now := f.clock.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, identity.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Kind: identity.TokenKindRefresh,
	})
	signed, err := token.SignedString(testSigningKey)
	require.NoError(t, err)

	_, err = f.auth.Refresh(context.Background(), signed)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
	assert.NotErrorIs(t, err, identity.ErrAccountNotFound)
}

func TestRefreshForDeletedAccount(t *testing.T) {
	repo := &MockAccounts{}
	clock := newTestClock(time.Now())
	tokens := newTokenService(t, clock)
	auth := identity.NewAuthService(repo, tokens, identity.WithAuthLogger(identity.NopLogger{}))

	id := uuid.New()
	refresh, _, err := tokens.IssueRefresh(id)
	require.NoError(t, err)

	repo.On("GetByID", mock.Anything, id).Return(nil, identity.ErrAccountNotFound).Once()

	_, err = auth.Refresh(context.Background(), refresh)
	assert.ErrorIs(t, err, identity.ErrAccountNotFound)
	repo.AssertExpectations(t)
}

func TestCurrentAccountAndRequireAdmin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.verified(t, "me@example.com")

	account, err := f.auth.CurrentAccount(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", account.Email)
	assert.ErrorIs(t, f.auth.RequireAdmin(account), identity.ErrForbidden)

	role := identity.RoleAdmin
	_, err = f.accounts.Update(ctx, account.ID, identity.AccountPatch{Role: &role})
	require.NoError(t, err)

	account, err = f.auth.CurrentAccount(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.NoError(t, f.auth.RequireAdmin(account))

	_, err = f.auth.CurrentAccount(ctx, "")
	assert.ErrorIs(t, err, identity.ErrMissingToken)

	_, err = f.auth.CurrentAccount(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	assert.ErrorIs(t, f.auth.RequireAdmin(nil), identity.ErrMissingToken)
}

func TestAuthServiceHonorsCancelledContext(t *testing.T) {
	repo := &MockAccounts{}
	auth := identity.NewAuthService(repo, newTokenService(t, newTestClock(time.Now())),
		identity.WithAuthLogger(identity.NopLogger{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := auth.Signup(ctx, identity.SignupInput{Email: "a@example.com", Password: testPassword})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = auth.Login(ctx, "a@example.com", testPassword)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = auth.Verify(ctx, "a@example.com", "123456")
	assert.ErrorIs(t, err, context.Canceled)

	repo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestSignupStoreFailureIsInternal(t *testing.T) {
	repo := &MockAccounts{}
	auth := identity.NewAuthService(repo, newTokenService(t, newTestClock(time.Now())),
		identity.WithCredentialVerifier(&identity.BcryptVerifier{Cost: bcrypt.MinCost}),
		identity.WithAuthLogger(identity.NopLogger{}))

	repo.On("GetByEmail", mock.Anything, "a@example.com").Return(nil, errors.New("connection reset")).Once()

	_, err := auth.Signup(context.Background(), identity.SignupInput{Email: "a@example.com", Password: testPassword})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryInternal, richErr.Category)
	repo.AssertExpectations(t)
}

func TestSignupDeterministicIDs(t *testing.T) {
	a := newAuthFixture(t, identity.WithDeterministicIDs())
	b := newAuthFixture(t, identity.WithDeterministicIDs())

	ra, err := a.auth.Signup(context.Background(), identity.SignupInput{Email: "same@example.com", Password: testPassword})
	require.NoError(t, err)
	rb, err := b.auth.Signup(context.Background(), identity.SignupInput{Email: "same@example.com", Password: testPassword})
	require.NoError(t, err)

	assert.Equal(t, ra.AccountID, rb.AccountID)
}

func TestSignupVerifyLoginScenario(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.auth.Signup(ctx, identity.SignupInput{Email: "a@x.com", Password: "pw"})
	require.NoError(t, err)

	account, err := f.accounts.GetByID(ctx, res.AccountID)
	require.NoError(t, err)
	assert.Equal(t, identity.AccountStatusPending, account.Status)
	code := f.sent.last(t).Code

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = f.auth.Verify(ctx, "a@x.com", wrong)
	assert.ErrorIs(t, err, identity.ErrInvalidCode)

	account, err = f.accounts.GetByID(ctx, res.AccountID)
	require.NoError(t, err)
	assert.Equal(t, identity.AccountStatusPending, account.Status)

	verified, err := f.auth.Verify(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.Equal(t, identity.AccountStatusVerified, verified.Account.Status)
	require.NotNil(t, verified.Tokens)

	loginPair, err := f.auth.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)
	assert.NotEqual(t, verified.Tokens.AccessToken, loginPair.AccessToken)
	assert.NotEqual(t, verified.Tokens.RefreshToken, loginPair.RefreshToken)
}

// staleReads serves GetByEmail from a snapshot taken before another flow
// changed the account.
type staleReads struct {
	identity.AccountRepository
	snapshot *identity.Account
}

func (s *staleReads) GetByEmail(context.Context, string) (*identity.Account, error) {
	account := *s.snapshot
	return &account, nil
}

func TestIssueDoesNotRestoreCodeOnVerifiedAccount(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	code := f.signup(t, "race@example.com")

	stale, err := f.accounts.GetByEmail(ctx, "race@example.com")
	require.NoError(t, err)

	_, err = f.auth.Verify(ctx, "race@example.com", code)
	require.NoError(t, err)

	issuer := identity.NewVerificationCodeIssuer(f.accounts, identity.WithIssuerClock(f.clock.Now))
	_, err = issuer.Issue(ctx, stale)
	assert.ErrorIs(t, err, identity.ErrAccountStateChanged)

	stored, err := f.accounts.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.AccountStatusVerified, stored.Status)
	assert.Nil(t, stored.PendingVerification())
}

func TestResendRacingVerifyIsSilent(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	code := f.signup(t, "race@example.com")

	stale, err := f.accounts.GetByEmail(ctx, "race@example.com")
	require.NoError(t, err)

	_, err = f.auth.Verify(ctx, "race@example.com", code)
	require.NoError(t, err)

	sent := len(f.sent.messages)
	resend := identity.NewAuthService(&staleReads{AccountRepository: f.accounts, snapshot: stale}, f.tokens,
		identity.WithDispatcher(f.sent),
		identity.WithAuthClock(f.clock.Now),
		identity.WithAuthLogger(f.logger),
	)
	require.NoError(t, resend.ResendCode(ctx, "race@example.com"))
	assert.Len(t, f.sent.messages, sent)

	stored, err := f.accounts.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.AccountStatusVerified, stored.Status)
	assert.Nil(t, stored.PendingVerification())
}
