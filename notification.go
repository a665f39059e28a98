package identity

import (
	"context"
	"net/url"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// VerificationEmailMessageType is the task type of verification emails
const VerificationEmailMessageType = "identity.verification.email"

// VerificationEmailMessage asks a worker to deliver a verification code
type VerificationEmailMessage struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	MagicLink string    `json:"magic_link,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e VerificationEmailMessage) Type() string { return VerificationEmailMessageType }

// EmailRenderer turns a verification message into an email
type EmailRenderer interface {
	RenderVerification(msg VerificationEmailMessage) (Email, error)
}

// VerificationEmailHandler renders and sends verification emails. It runs on
// the dispatcher's worker, never on the request path.
type VerificationEmailHandler struct {
	mailer   Mailer
	renderer EmailRenderer
	logger   Logger
}

func NewVerificationEmailHandler(mailer Mailer, renderer EmailRenderer) *VerificationEmailHandler {
	return &VerificationEmailHandler{
		mailer:   mailer,
		renderer: renderer,
		logger:   defLogger{},
	}
}

func (h *VerificationEmailHandler) WithLogger(logger Logger) *VerificationEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerificationEmailHandler) Execute(ctx context.Context, event VerificationEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification email delivery",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerificationEmailHandler) execute(ctx context.Context, event VerificationEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email, err := h.renderer.RenderVerification(event)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render verification email")
	}

	if email.To == "" {
		email.To = event.Email
	}

	if err := h.mailer.Send(ctx, email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send verification email").
			WithMetadata(map[string]any{
				"email": event.Email,
			})
	}

	h.logger.Debug("verification email sent to %s", event.Email)
	return nil
}

// MagicLink builds the one-click verification link for base.
func MagicLink(base, email, code string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("email", email)
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String()
}
