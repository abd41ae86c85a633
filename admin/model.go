package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/go-arrower/api/rest"
)

// Options describe how a model is shown in the admin.
// Empty names are derived from the model's type name.
type Options struct {
	// App is the label of the app the model belongs to, it is required.
	App               string        `json:"app"`
	Model             string        `json:"model"`
	VerboseName       string        `json:"verboseName"`
	VerboseNamePlural string        `json:"verboseNamePlural"`
	ListDisplay       []string      `json:"listDisplay"`
	SearchFields      []string      `json:"searchFields"`
	Settings          rest.Settings `json:"-"`
}

func (o Options) key() string {
	return o.App + "." + o.Model
}

// ListQuery is passed to the Store by the list view: /admin/<app>/<model>/?q=search&page=2.
type ListQuery struct {
	Search       string
	SearchFields []string
	Page         rest.Page
}

// Store persists the objects managed by the admin.
// Get returns an error wrapping repository.ErrNotFound, if no object has the id.
type Store[T any] interface {
	List(ctx context.Context, query ListQuery) ([]T, int, error)
	Get(ctx context.Context, id string) (T, error)
	Save(ctx context.Context, obj *T) error
	Delete(ctx context.Context, id string) error
}

// Saver is implemented by a type embedding Base to customise how an object is saved.
type Saver[T any] interface {
	SaveModel(req *http.Request, obj *T, form url.Values, change bool) error
}

// Base implements a ModelAdmin for T. Embed it and override SaveModel or DeleteModel where needed.
//
//	type UserAdmin struct{ admin.Base[User] }
type Base[T any] struct {
	Store   Store[T]
	Opts    Options
	NewFunc func() *T

	self     any
	validate *validator.Validate
}

var _ ModelAdmin = (*Base[struct{}])(nil)

func (b *Base[T]) Options() Options {
	opts := b.Opts

	typeName := reflect.TypeFor[T]().Name()

	if opts.Model == "" {
		opts.Model = urlName(typeName)
	}

	if opts.VerboseName == "" {
		opts.VerboseName = verboseName(typeName)
	}

	if opts.VerboseNamePlural == "" {
		opts.VerboseNamePlural = pluralise(opts.VerboseName)
	}

	return opts
}

// New returns a new object for the create view.
func (b *Base[T]) New() *T {
	if b.NewFunc != nil {
		return b.NewFunc()
	}

	return new(T)
}

// SaveModel persists obj with the Store. It is called by the create and update views,
// change reports, if obj exists already. The form is nil, if the request was not a form submission.
func (b *Base[T]) SaveModel(req *http.Request, obj *T, _ url.Values, _ bool) error {
	if b.Store == nil {
		return fmt.Errorf("%w: missing store", ErrInvalidModelAdmin)
	}

	return b.Store.Save(requestContext(req), obj) //nolint:wrapcheck // store errors are mapped by the rest error handler
}

func (b *Base[T]) DeleteModel(req *http.Request, id string) error {
	if b.Store == nil {
		return fmt.Errorf("%w: missing store", ErrInvalidModelAdmin)
	}

	return b.Store.Delete(requestContext(req), id) //nolint:wrapcheck // store errors are mapped by the rest error handler
}

func requestContext(req *http.Request) context.Context {
	if req == nil {
		return context.Background()
	}

	return req.Context()
}

func (b *Base[T]) bind(self any, validate *validator.Validate) error {
	if b.Opts.App == "" {
		return fmt.Errorf("%w: missing app label for %s", ErrInvalidModelAdmin, reflect.TypeFor[T]().Name())
	}

	if b.Store == nil {
		return fmt.Errorf("%w: missing store for %s", ErrInvalidModelAdmin, reflect.TypeFor[T]().Name())
	}

	b.self = self
	b.validate = validate

	return nil
}

// save calls the SaveModel of the embedding type, if it has one.
func (b *Base[T]) save(req *http.Request, obj *T, form url.Values, change bool) error {
	if s, ok := b.self.(Saver[T]); ok {
		return s.SaveModel(req, obj, form, change)
	}

	return b.SaveModel(req, obj, form, change)
}

func (b *Base[T]) remove(req *http.Request, id string) error {
	if d, ok := b.self.(interface {
		DeleteModel(req *http.Request, id string) error
	}); ok {
		return d.DeleteModel(req, id)
	}

	return b.DeleteModel(req, id)
}

func (b *Base[T]) routes(group *echo.Group) {
	group.GET("/", b.list)
	group.POST("/", b.create)
	group.GET("/:id/", b.detail)
	group.POST("/:id/", b.update)
	group.DELETE("/:id/", b.delete)
}

type listResponse[T any] struct {
	rest.Paginated[T]

	Options Options `json:"options"`
}

func (b *Base[T]) list(c echo.Context) error {
	opts := b.Options()

	page, err := rest.PageFromRequest(c, opts.Settings)
	if err != nil {
		return err //nolint:wrapcheck // mapped by the rest error handler
	}

	objs, count, err := b.Store.List(c.Request().Context(), ListQuery{
		Search:       strings.TrimSpace(c.QueryParam("q")),
		SearchFields: opts.SearchFields,
		Page:         page,
	})
	if err != nil {
		return fmt.Errorf("could not list %s: %w", opts.VerboseNamePlural, err)
	}

	return c.JSON(http.StatusOK, listResponse[T]{ //nolint:wrapcheck // echo error is handled by the router
		Paginated: rest.NewPaginated(c, page, count, objs),
		Options:   opts,
	})
}

func (b *Base[T]) detail(c echo.Context) error {
	obj, err := b.Store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err //nolint:wrapcheck // mapped by the rest error handler
	}

	return c.JSON(http.StatusOK, obj) //nolint:wrapcheck // echo error is handled by the router
}

func (b *Base[T]) create(c echo.Context) error {
	obj := b.New()
	id := identity(obj)

	form, err := b.bindRequest(c, obj)
	if err != nil {
		return err
	}

	keepIdentity(obj, id)

	if err := b.save(c.Request(), obj, form, false); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, obj) //nolint:wrapcheck // echo error is handled by the router
}

func (b *Base[T]) update(c echo.Context) error {
	existing, err := b.Store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err //nolint:wrapcheck // mapped by the rest error handler
	}

	obj := &existing
	id := identity(obj)

	form, err := b.bindRequest(c, obj)
	if err != nil {
		return err
	}

	keepIdentity(obj, id)

	if err := b.save(c.Request(), obj, form, true); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, obj) //nolint:wrapcheck // echo error is handled by the router
}

func (b *Base[T]) delete(c echo.Context) error {
	if err := b.remove(c.Request(), c.Param("id")); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent) //nolint:wrapcheck // echo error is handled by the router
}

var errBind = errors.New("could not read request body")

// bindRequest decodes the body into obj and validates it.
// For form submissions the form values are returned.
func (b *Base[T]) bindRequest(c echo.Context, obj *T) (url.Values, error) {
	var form url.Values

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationForm) ||
		strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		values, err := c.FormParams()
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, errBind.Error())
		}

		form = values
	}

	if err := (&echo.DefaultBinder{}).BindBody(c, obj); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, errBind.Error())
	}

	if b.validate != nil {
		if err := b.validate.Struct(obj); err != nil {
			return nil, err //nolint:wrapcheck // validation errors are mapped by the rest error handler
		}
	}

	if v, ok := any(obj).(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			var validationErrs validator.ValidationErrors
			if errors.As(err, &validationErrs) {
				return nil, err //nolint:wrapcheck // validation errors are mapped by the rest error handler
			}

			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	return form, nil
}

// identity returns the ID field of obj, it is never changed by a request.
func identity[T any](obj *T) reflect.Value {
	v := reflect.ValueOf(obj).Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}
	}

	id := v.FieldByName("ID")
	if !id.IsValid() || !id.CanInterface() {
		return reflect.Value{}
	}

	return reflect.ValueOf(id.Interface())
}

func keepIdentity[T any](obj *T, id reflect.Value) {
	if !id.IsValid() {
		return
	}

	if field := reflect.ValueOf(obj).Elem().FieldByName("ID"); field.CanSet() {
		field.Set(id)
	}
}
