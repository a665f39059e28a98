package httpapi

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-identity"
)

type verifyRequest struct {
	Email string `json:"email" query:"email" form:"email"`
	Code  string `json:"code" query:"code" form:"code"`
}

func (r verifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required),
	)
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type resendRequest struct {
	Email string `json:"email" form:"email"`
}

func (r resendRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// accountView is the public projection of an account
type accountView struct {
	ID       string                 `json:"id"`
	Email    string                 `json:"email"`
	Name     *string                `json:"name,omitempty"`
	Surname  *string                `json:"surname,omitempty"`
	Status   identity.AccountStatus `json:"status"`
	Role     identity.AccountRole   `json:"role"`
	Verified bool                   `json:"verified"`
}

func newAccountView(a *identity.Account) accountView {
	return accountView{
		ID:       a.ID.String(),
		Email:    a.Email,
		Name:     a.Name,
		Surname:  a.Surname,
		Status:   a.Status,
		Role:     a.Role,
		Verified: a.IsVerified(),
	}
}
