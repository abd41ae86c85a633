// Package rest contains the building blocks of the JSON api:
// page number pagination, request throttling and the mapping of errors to responses.
package rest

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

var ErrInvalidPage = errors.New("invalid page")

// Settings are the values of the rest settings.
type Settings struct {
	PageSize    int
	MaxPageSize int
	// ThrottleRates maps a scope, e.g. "anon" or "user", to a rate like "100/day".
	ThrottleRates map[string]string
}

// Page is the requested slice of a list, Number starts with 1.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

func (p Page) Limit() int {
	return p.Size
}

// PageFromRequest reads the query parameters page and page_size.
// The page size is limited to MaxPageSize.
func PageFromRequest(c echo.Context, settings Settings) (Page, error) {
	const defaultPageSize = 20

	page := Page{Number: 1, Size: settings.PageSize}
	if page.Size <= 0 {
		page.Size = defaultPageSize
	}

	if raw := c.QueryParam("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Page{}, fmt.Errorf("%w: %s", ErrInvalidPage, raw)
		}

		page.Number = n
	}

	if raw := c.QueryParam("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Page{}, fmt.Errorf("%w: page_size %s", ErrInvalidPage, raw)
		}

		page.Size = n
	}

	if settings.MaxPageSize > 0 && page.Size > settings.MaxPageSize {
		page.Size = settings.MaxPageSize
	}

	if page.Number-1 > math.MaxInt/page.Size {
		return Page{}, fmt.Errorf("%w: %d out of range", ErrInvalidPage, page.Number)
	}

	return page, nil
}

// Paginated is the response body of a list endpoint.
type Paginated[T any] struct {
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
	Count    int     `json:"count"`
}

// NewPaginated links the next and previous pages of the current request.
func NewPaginated[T any](c echo.Context, page Page, count int, results []T) Paginated[T] {
	if results == nil {
		results = []T{}
	}

	p := Paginated[T]{Count: count, Results: results, Next: nil, Previous: nil}

	if page.Offset()+len(results) < count {
		next := pageURL(c, page.Number+1)
		p.Next = &next
	}

	if page.Number > 1 {
		prev := pageURL(c, page.Number-1)
		p.Previous = &prev
	}

	return p
}

func pageURL(c echo.Context, number int) string {
	u := url.URL{
		Scheme:   c.Scheme(),
		Host:     c.Request().Host,
		Path:     c.Request().URL.Path,
		RawQuery: "",
	}

	q := c.Request().URL.Query()
	q.Set("page", strconv.Itoa(number))
	u.RawQuery = q.Encode()

	return u.String()
}

// JSONList is a helper for list endpoints.
func JSONList[T any](c echo.Context, page Page, count int, results []T) error {
	return c.JSON(http.StatusOK, NewPaginated(c, page, count, results)) //nolint:wrapcheck // echo error is handled by the router
}
