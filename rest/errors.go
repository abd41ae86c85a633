package rest

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/go-arrower/api/repository"
	"github.com/go-arrower/api/storage"
)

// Problem is the JSON body of every error response.
type Problem struct {
	Fields map[string]string `json:"fields,omitempty"`
	Detail string            `json:"detail"`
}

// HTTPErrorHandler renders errors as Problem.
// Not found and validation errors of the domain are mapped to 404 and 400,
// everything unknown is logged and returned as 500 without details.
func HTTPErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, problem := problemFromError(err)
		if code >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request().Context(), "request failed",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Request().URL.Path),
				slog.Any("err", err),
			)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, problem)
		}

		if err != nil {
			logger.ErrorContext(c.Request().Context(), "could not write error response", slog.Any("err", err))
		}
	}
}

func problemFromError(err error) (int, Problem) {
	var (
		httpErr        *echo.HTTPError
		validationErrs validator.ValidationErrors
	)

	switch {
	case errors.As(err, &httpErr):
		detail := http.StatusText(httpErr.Code)
		if msg, ok := httpErr.Message.(string); ok && msg != "" {
			detail = msg
		}

		return httpErr.Code, Problem{Detail: detail, Fields: nil}
	case errors.As(err, &validationErrs):
		fields := make(map[string]string, len(validationErrs))
		for _, fe := range validationErrs {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}

		return http.StatusBadRequest, Problem{Detail: "Invalid input.", Fields: fields}
	case errors.Is(err, ErrInvalidPage):
		return http.StatusNotFound, Problem{Detail: "Invalid page.", Fields: nil}
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, Problem{Detail: "Not found.", Fields: nil}
	case errors.Is(err, repository.ErrAlreadyExists):
		return http.StatusConflict, Problem{Detail: "Already exists.", Fields: nil}
	}

	return http.StatusInternalServerError, Problem{Detail: "A server error occurred.", Fields: nil}
}
