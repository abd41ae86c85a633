package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	apictx "github.com/go-arrower/api/ctx"
)

var ErrInvalidInput = errors.New("invalid input")

const CtxValidated apictx.CTXKey = "api.validated"

// PassedValidation reports if ctx was passed on by a Validated handler.
func PassedValidation(ctx context.Context) bool {
	v, _ := ctx.Value(CtxValidated).(bool)

	return v
}

// Validated calls h only if in passes the validation tags of its type.
// A nil validate uses a default validator.
func Validated[T any](validate *validator.Validate, h Handler[T]) Handler[T] {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return HandlerFunc[T](func(ctx context.Context, in T) error {
		if err := validate.StructCtx(ctx, in); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidInput, name(in), err)
		}

		return h.H(context.WithValue(ctx, CtxValidated, true), in)
	})
}
