package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// ErrorHandler renders errors returned by handlers. Store and internal
// failures never leak their message, and unknown accounts are reported as
// unauthorized.
func ErrorHandler(logger identity.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = identity.NopLogger{}
	}
	return func(c *fiber.Ctx, err error) error {
		status, body := renderError(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error("%s %s: %v", c.Method(), c.Path(), err)
		} else {
			logger.Debug("%s %s: %v", c.Method(), c.Path(), err)
		}
		return c.Status(status).JSON(ErrorResponse{Error: body})
	}
}

func renderError(err error) (int, ErrorBody) {
	if identity.IsNotFound(err) {
		return fiber.StatusUnauthorized, ErrorBody{
			Code:    identity.TextCodeInvalidCredentials,
			Message: identity.ErrInvalidCredentials.Message,
		}
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return fiberErr.Code, ErrorBody{Code: "HTTP_ERROR", Message: fiberErr.Message}
		}
		return fiber.StatusInternalServerError, internalError()
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		body := ErrorBody{Code: textCodeOr(richErr, identity.TextCodeValidation), Message: richErr.Message}
		if fields, ok := richErr.Metadata["fields"].(map[string]any); ok {
			body.Fields = fields
		}
		return fiber.StatusBadRequest, body
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized, ErrorBody{Code: textCodeOr(richErr, identity.TextCodeInvalidToken), Message: richErr.Message}
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden, ErrorBody{Code: textCodeOr(richErr, identity.TextCodeForbidden), Message: richErr.Message}
	case goerrors.CategoryConflict:
		return fiber.StatusConflict, ErrorBody{Code: textCodeOr(richErr, identity.TextCodeAlreadyRegistered), Message: richErr.Message}
	default:
		return fiber.StatusInternalServerError, internalError()
	}
}

func internalError() ErrorBody {
	return ErrorBody{Code: "INTERNAL_ERROR", Message: "internal server error"}
}

func textCodeOr(err *goerrors.Error, fallback string) string {
	if err.TextCode != "" {
		return err.TextCode
	}
	return fallback
}

func invalidPayload(err error) error {
	return identity.ValidationError(err, "invalid request payload")
}
