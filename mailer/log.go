package mailer

import (
	"context"

	"github.com/goliatone/go-identity"
)

// LogMailer writes emails to a logger instead of delivering them. Useful in
// development where no provider is configured.
type LogMailer struct {
	logger identity.Logger
}

var _ identity.Mailer = (*LogMailer)(nil)

func NewLogMailer(logger identity.Logger) *LogMailer {
	if logger == nil {
		logger = identity.NopLogger{}
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, email identity.Email) error {
	m.logger.Info("email to=%s subject=%q\n%s", email.To, email.Subject, email.Text)
	return nil
}
