package mailer

import (
	"context"
	"net/url"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/resend/resend-go/v2"
)

// DefaultFromEmail is the sender Resend accepts without a verified domain
const DefaultFromEmail = "onboarding@resend.dev"

// ResendMailer delivers email through the Resend API
type ResendMailer struct {
	client *resend.Client
	from   string
}

var _ identity.Mailer = (*ResendMailer)(nil)

type ResendOption func(*ResendMailer)

// WithResendBaseURL points the client at a different API host.
func WithResendBaseURL(base string) ResendOption {
	return func(m *ResendMailer) {
		if u, err := url.Parse(base); err == nil {
			m.client.BaseURL = u
		}
	}
}

func NewResendMailer(apiKey, from string, opts ...ResendOption) *ResendMailer {
	if from == "" {
		from = DefaultFromEmail
	}
	m := &ResendMailer{
		client: resend.NewClient(apiKey),
		from:   from,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *ResendMailer) Send(ctx context.Context, email identity.Email) error {
	from := email.From
	if from == "" {
		from = m.from
	}

	params := &resend.SendEmailRequest{
		From:    from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}

	if _, err := m.client.Emails.SendWithContext(ctx, params); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "resend delivery failed").
			WithMetadata(map[string]any{
				"to": email.To,
			})
	}
	return nil
}
