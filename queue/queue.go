// Package queue runs verification email tasks off the request path.
package queue

import (
	"context"

	"github.com/goliatone/go-identity"
)

// Handler executes a single verification email task
type Handler interface {
	Execute(ctx context.Context, msg identity.VerificationEmailMessage) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, msg identity.VerificationEmailMessage) error

func (f HandlerFunc) Execute(ctx context.Context, msg identity.VerificationEmailMessage) error {
	return f(ctx, msg)
}
