package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
)

// SMTPConfig holds the relay settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS dials an implicit TLS connection (port 465 style)
	TLS bool
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.Port > 0
}

// SMTPMailer delivers email through an SMTP relay
type SMTPMailer struct {
	cfg SMTPConfig
}

var _ identity.Mailer = (*SMTPMailer)(nil)

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (s *SMTPMailer) Send(ctx context.Context, email identity.Email) error {
	if !s.cfg.Enabled() {
		return goerrors.New("smtp is not configured", goerrors.CategoryInternal)
	}

	from := email.From
	if from == "" {
		from = s.cfg.From
	}

	msg := buildMessage(from, email)
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	conn, err := s.dial(ctx, addr)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp dial failed")
	}
	defer conn.Close()

	// a cancelled ctx aborts the conversation mid-flight
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp handshake failed")
	}
	defer client.Close()

	if !s.cfg.TLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp STARTTLS failed")
			}
		}
	}

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp auth failed")
		}
	}
	if err := client.Mail(from); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp MAIL failed")
	}
	if err := client.Rcpt(email.To); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp RCPT failed")
	}

	w, err := client.Data()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp DATA failed")
	}
	if _, err := w.Write(msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp write failed")
	}
	if err := w.Close(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp delivery failed")
	}
	return client.Quit()
}

func (s *SMTPMailer) dial(ctx context.Context, addr string) (net.Conn, error) {
	if s.cfg.TLS {
		dialer := &tls.Dialer{Config: &tls.Config{ServerName: s.cfg.Host}}
		return dialer.DialContext(ctx, "tcp", addr)
	}
	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", addr)
}

func buildMessage(from string, email identity.Email) []byte {
	body := email.HTML
	contentType := "text/html"
	if strings.TrimSpace(body) == "" {
		body = email.Text
		contentType = "text/plain"
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", email.To))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: %s; charset=\"UTF-8\"\r\n\r\n", contentType))
	msg.WriteString(body)
	return []byte(msg.String())
}
