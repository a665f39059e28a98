package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

const defaultOperationTimeout = time.Second * 10

// SignupInput is the payload of a signup
type SignupInput struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name,omitempty"`
	Surname  *string `json:"surname,omitempty"`
}

func (r SignupInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		// bcrypt ignores anything past 72 bytes
		validation.Field(&r.Password, validation.Required, validation.Length(1, 72)),
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&r.Surname, validation.NilOrNotEmpty, validation.Length(1, 100)),
	)
}

// SignupResult acknowledges a signup. Verified is always false.
type SignupResult struct {
	AccountID uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Verified  bool      `json:"verified"`
}

// VerifyResult is returned by a successful verification. Tokens is nil when
// the account was already verified, the caller must log in instead.
type VerifyResult struct {
	Account         *Account   `json:"account"`
	Tokens          *TokenPair `json:"-"`
	AlreadyVerified bool       `json:"already_verified"`
}

// AuthService composes the verifier, code issuer, token service and
// repository into the signup, verify, login and refresh flows.
type AuthService struct {
	accounts         AccountRepository
	tokens           *TokenService
	credentials      CredentialVerifier
	codes            *VerificationCodeIssuer
	states           AccountStateMachine
	dispatcher       Dispatcher
	logger           Logger
	activitySink     ActivitySink
	now              Clock
	timeout          time.Duration
	deterministicIDs bool
	verificationURL  string

	dummyOnce sync.Once
	dummyHash string
}

type AuthServiceOption func(*AuthService)

func WithCredentialVerifier(v CredentialVerifier) AuthServiceOption {
	return func(s *AuthService) {
		if v != nil {
			s.credentials = v
		}
	}
}

func WithCodeIssuer(issuer *VerificationCodeIssuer) AuthServiceOption {
	return func(s *AuthService) {
		if issuer != nil {
			s.codes = issuer
		}
	}
}

func WithStateMachine(sm AccountStateMachine) AuthServiceOption {
	return func(s *AuthService) {
		if sm != nil {
			s.states = sm
		}
	}
}

// WithDispatcher sets where verification emails are handed off.
func WithDispatcher(d Dispatcher) AuthServiceOption {
	return func(s *AuthService) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

func WithAuthLogger(logger Logger) AuthServiceOption {
	return func(s *AuthService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuthActivitySink(sink ActivitySink) AuthServiceOption {
	return func(s *AuthService) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

// WithAuthClock injects a custom clock, shared with the default code issuer
// and state machine.
func WithAuthClock(clock Clock) AuthServiceOption {
	return func(s *AuthService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithOperationTimeout bounds each flow, store calls included.
func WithOperationTimeout(d time.Duration) AuthServiceOption {
	return func(s *AuthService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithDeterministicIDs derives account ids from the email address.
func WithDeterministicIDs() AuthServiceOption {
	return func(s *AuthService) {
		s.deterministicIDs = true
	}
}

// WithVerificationURL sets the base of the magic link sent with each code.
func WithVerificationURL(base string) AuthServiceOption {
	return func(s *AuthService) {
		s.verificationURL = base
	}
}

func NewAuthService(accounts AccountRepository, tokens *TokenService, opts ...AuthServiceOption) *AuthService {
	s := &AuthService{
		accounts:     accounts,
		tokens:       tokens,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          systemClock,
		timeout:      defaultOperationTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.credentials == nil {
		s.credentials = NewBcryptVerifier()
	}
	if s.codes == nil {
		s.codes = NewVerificationCodeIssuer(accounts, WithIssuerClock(s.now))
	}
	if s.states == nil {
		s.states = NewAccountStateMachine(accounts,
			WithStateMachineClock(s.now),
			WithStateMachineLogger(s.logger),
			WithStateMachineActivitySink(s.activitySink),
		)
	}
	if s.dispatcher == nil {
		s.dispatcher = DispatcherFunc(func(_ context.Context, msg VerificationEmailMessage) error {
			s.logger.Warn("no email dispatcher configured, dropping code for %s", msg.Email)
			return nil
		})
	}

	return s
}

// Signup creates a pending account and hands its code to the dispatcher.
// Email delivery failures are logged and never returned.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*SignupResult, error) {
	if err := cancelled(ctx, "signup"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	input.Email = NormalizeEmail(input.Email)
	if err := input.Validate(); err != nil {
		return nil, ValidationError(err, "invalid signup payload")
	}

	existing, err := s.accounts.GetByEmail(ctx, input.Email)
	if err == nil && existing != nil {
		return nil, ErrAlreadyRegistered
	}
	if err != nil && !IsNotFound(err) {
		return nil, wrapStoreError(err, "failed to look up account")
	}

	hash, err := s.credentials.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	account := &Account{
		ID:           s.newAccountID(input.Email),
		Email:        input.Email,
		PasswordHash: hash,
		Name:         input.Name,
		Surname:      input.Surname,
		Status:       AccountStatusPending,
		Role:         RoleUser,
		CreatedAt:    s.now(),
	}

	code, err := s.codes.Stamp(account)
	if err != nil {
		return nil, err
	}

	created, err := s.accounts.Create(ctx, account)
	if err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			return nil, ErrAlreadyRegistered
		}
		return nil, wrapStoreError(err, "failed to create account")
	}
	if created != nil {
		account = created
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventSignup,
		Actor:     accountActor(account),
		AccountID: account.ID.String(),
		ToStatus:  AccountStatusPending,
	})

	s.dispatchCode(ctx, account, code)

	return &SignupResult{
		AccountID: account.ID,
		Email:     account.Email,
		Verified:  false,
	}, nil
}

// Verify proves email ownership with the outstanding code and returns a
// token pair. An already verified account yields AlreadyVerified without
// tokens.
func (s *AuthService) Verify(ctx context.Context, email, code string) (*VerifyResult, error) {
	if err := cancelled(ctx, "verification"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := ValidateFormat(code); err != nil {
		return nil, err
	}

	account, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if account.IsVerified() {
		return &VerifyResult{Account: account, AlreadyVerified: true}, nil
	}

	if !s.codes.Validate(account, code) {
		s.recordVerifyFailure(ctx, account, "code mismatch or expired")
		return nil, ErrInvalidCode
	}

	account, err = s.states.Transition(ctx, accountActor(account), account, AccountStatusVerified,
		WithTransitionCode(code),
		WithTransitionReason("email ownership verified"),
	)
	if err != nil {
		if errors.Is(err, ErrAccountStateChanged) {
			s.recordVerifyFailure(ctx, account, "account changed concurrently")
			return nil, ErrInvalidCode
		}
		return nil, wrapStoreError(err, "failed to verify account")
	}

	pair, err := s.tokens.IssuePair(account.ID, account.Email)
	if err != nil {
		return nil, err
	}

	return &VerifyResult{Account: account, Tokens: pair}, nil
}

// ResendCode issues a new code for a pending account, invalidating the
// previous one. Unknown and verified emails succeed silently.
func (s *AuthService) ResendCode(ctx context.Context, email string) error {
	if err := cancelled(ctx, "code resend"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return wrapStoreError(err, "failed to look up account")
	}

	if account.IsVerified() {
		return nil
	}

	code, err := s.codes.Issue(ctx, account)
	if err != nil {
		// verified since it was read
		if errors.Is(err, ErrAccountStateChanged) {
			return nil
		}
		return err
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventCodeIssued,
		Actor:     accountActor(account),
		AccountID: account.ID.String(),
	})

	s.dispatchCode(ctx, account, code)
	return nil
}

// Login authenticates a verified account. Unknown emails and wrong
// passwords return the same ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	if err := cancelled(ctx, "login"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	email = NormalizeEmail(email)

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if !IsNotFound(err) {
			return nil, wrapStoreError(err, "failed to look up account")
		}
		s.credentials.Verify(password, s.placeholderHash())
		s.recordLoginFailure(ctx, "", email)
		return nil, ErrInvalidCredentials
	}

	if !s.credentials.Verify(password, account.PasswordHash) {
		s.recordLoginFailure(ctx, account.ID.String(), email)
		return nil, ErrInvalidCredentials
	}

	if !account.IsVerified() {
		return nil, ErrNotVerified
	}

	pair, err := s.tokens.IssuePair(account.ID, account.Email)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     accountActor(account),
		AccountID: account.ID.String(),
	})

	return pair, nil
}

// Refresh validates a refresh token, re-reads the account and rotates both
// tokens.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := cancelled(ctx, "token refresh"); err != nil {
		return nil, err
	}

	if refreshToken == "" {
		return nil, ErrMissingToken
	}

	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.lookupByClaims(ctx, claims)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(account.ID, account.Email)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventTokenRefreshed,
		Actor:     accountActor(account),
		AccountID: account.ID.String(),
	})

	return pair, nil
}

// CurrentAccount resolves an access token to its account.
func (s *AuthService) CurrentAccount(ctx context.Context, accessToken string) (*Account, error) {
	if err := cancelled(ctx, "account lookup"); err != nil {
		return nil, err
	}

	if accessToken == "" {
		return nil, ErrMissingToken
	}

	claims, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.lookupByClaims(ctx, claims)
}

// RequireAdmin returns ErrForbidden unless the account is an admin.
func (s *AuthService) RequireAdmin(account *Account) error {
	if account == nil {
		return ErrMissingToken
	}
	if !account.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

func (s *AuthService) lookupByEmail(ctx context.Context, email string) (*Account, error) {
	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapStoreError(err, "failed to look up account")
	}
	return account, nil
}

func (s *AuthService) lookupByClaims(ctx context.Context, claims *TokenClaims) (*Account, error) {
	id, err := claims.AccountID()
	if err != nil {
		return nil, ErrInvalidToken
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapStoreError(err, "failed to load account")
	}
	return account, nil
}

func (s *AuthService) newAccountID(email string) uuid.UUID {
	if s.deterministicIDs {
		if id, err := hashid.NewUUID(email); err == nil {
			return id
		}
	}
	return uuid.New()
}

func (s *AuthService) dispatchCode(ctx context.Context, account *Account, code string) {
	msg := VerificationEmailMessage{
		Email:     account.Email,
		Code:      code,
		MagicLink: MagicLink(s.verificationURL, account.Email, code),
	}
	if pending := account.PendingVerification(); pending != nil {
		msg.ExpiresAt = pending.ExpiresAt
	}

	// the request context ends with the response
	if err := s.dispatcher.Dispatch(context.WithoutCancel(ctx), msg); err != nil {
		s.logger.Error("failed to dispatch verification email for %s: %v", account.Email, err)
	}
}

func (s *AuthService) placeholderHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.credentials.Hash(uuid.NewString())
		if err != nil {
			s.logger.Error("failed to build placeholder hash: %v", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func (s *AuthService) recordLoginFailure(ctx context.Context, accountID, email string) {
	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     ActorRef{ID: accountID, Type: "account"},
		AccountID: accountID,
		Metadata: map[string]any{
			"email": email,
		},
	})
}

func (s *AuthService) recordVerifyFailure(ctx context.Context, account *Account, reason string) {
	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventVerifyFailure,
		Actor:     accountActor(account),
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"reason": reason,
		},
	})
}

func accountActor(account *Account) ActorRef {
	if account == nil {
		return ActorRef{}
	}
	return ActorRef{ID: account.ID.String(), Type: "account"}
}

func cancelled(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during "+op,
		)
	default:
		return nil
	}
}

// ValidationError wraps an ozzo validation failure, exposing per field
// messages under the "fields" metadata key.
func ValidationError(err error, msg string) error {
	var fields map[string]any
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		fields = make(map[string]any, len(verrs))
		for k, v := range verrs {
			fields[k] = v.Error()
		}
	}

	out := goerrors.Wrap(err, goerrors.CategoryValidation, msg).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
	if len(fields) > 0 {
		out = out.WithMetadata(map[string]any{"fields": fields})
	}
	return out
}
