package app

import (
	"context"
	"errors"
)

// ErrHandlerFailed is returned by Failing.
var ErrHandlerFailed = errors.New("handler failed")

// Succeeding returns a Handler for tests, that always succeeds.
func Succeeding[T any]() Handler[T] {
	return HandlerFunc[T](func(context.Context, T) error { return nil })
}

// Failing returns a Handler for tests, that always returns ErrHandlerFailed.
func Failing[T any]() Handler[T] {
	return HandlerFunc[T](func(context.Context, T) error { return ErrHandlerFailed })
}
