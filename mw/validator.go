package mw

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// NewValidator lets handlers call c.Validate on their bound request structs.
func NewValidator(validate *validator.Validate) *Validator {
	if validate == nil {
		validate = validator.New()
	}

	return &Validator{validator: validate}
}

type Validator struct {
	validator *validator.Validate
}

var _ echo.Validator = (*Validator)(nil)

func (v *Validator) Validate(i any) error {
	if err := v.validator.Struct(i); err != nil {
		return err //nolint:wrapcheck // return the original validate error to not break the api for the caller
	}

	return nil
}
