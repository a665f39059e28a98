package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenConfig is the immutable configuration of a TokenService
type TokenConfig struct {
	SigningKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   []string
}

// TokenService issues and validates access and refresh tokens
type TokenService struct {
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        Clock
	logger     Logger
}

type TokenServiceOption func(*TokenService)

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock Clock) TokenServiceOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg TokenConfig, opts ...TokenServiceOption) (*TokenService, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, goerrors.New("token signing key must not be empty", goerrors.CategoryValidation).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	ts := &TokenService{
		signingKey: append([]byte(nil), cfg.SigningKey...),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		now:        systemClock,
		logger:     defLogger{},
	}

	if ts.accessTTL <= 0 {
		ts.accessTTL = DefaultAccessTTL
	}
	if ts.refreshTTL <= 0 {
		ts.refreshTTL = DefaultRefreshTTL
	}
	if len(cfg.Audience) > 0 {
		ts.audience = append(jwt.ClaimStrings(nil), cfg.Audience...)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts, nil
}

func (ts *TokenService) AccessTTL() time.Duration  { return ts.accessTTL }
func (ts *TokenService) RefreshTTL() time.Duration { return ts.refreshTTL }

// IssueAccess signs a short lived access token carrying the email claim
func (ts *TokenService) IssueAccess(accountID uuid.UUID, email string) (string, time.Time, error) {
	claims := ts.newClaims(accountID, TokenKindAccess, ts.accessTTL)
	claims.Email = email
	return ts.sign(claims)
}

// IssueRefresh signs a long lived refresh token. It carries no email so a
// refresh always re-reads the account.
func (ts *TokenService) IssueRefresh(accountID uuid.UUID) (string, time.Time, error) {
	claims := ts.newClaims(accountID, TokenKindRefresh, ts.refreshTTL)
	return ts.sign(claims)
}

// IssuePair issues a fresh access and refresh token
func (ts *TokenService) IssuePair(accountID uuid.UUID, email string) (*TokenPair, error) {
	access, accessExp, err := ts.IssueAccess(accountID, email)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := ts.IssueRefresh(accountID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ValidateAccess returns the claims of a valid access token or ErrInvalidToken
func (ts *TokenService) ValidateAccess(token string) (*TokenClaims, error) {
	return ts.validate(token, TokenKindAccess)
}

// ValidateRefresh returns the claims of a valid refresh token or ErrInvalidToken
func (ts *TokenService) ValidateRefresh(token string) (*TokenClaims, error) {
	return ts.validate(token, TokenKindRefresh)
}

func (ts *TokenService) newClaims(accountID uuid.UUID, kind TokenKind, ttl time.Duration) *TokenClaims {
	now := ts.now()
	return &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   accountID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: kind,
	}
}

func (ts *TokenService) sign(claims *TokenClaims) (string, time.Time, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, claims.ExpiresAt.Time, nil
}

func (ts *TokenService) validate(tokenString string, kind TokenKind) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		ts.logger.Debug("token validation failed: %v", err)
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		ts.logger.Debug("token validation could not decode claims")
		return nil, ErrInvalidToken
	}

	if claims.Kind != kind {
		ts.logger.Debug("token validation rejected kind %q, expected %q", claims.Kind, kind)
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
