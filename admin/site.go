// Package admin is a JSON admin for the models of the installed apps.
// Apps register a ModelAdmin for each of their models in their Ready hook,
// the Site exposes list, detail, create, update and delete routes for them.
package admin

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var (
	ErrAlreadyRegistered = errors.New("model already registered")
	ErrInvalidModelAdmin = errors.New("invalid model admin")
	ErrSiteMounted       = errors.New("admin site already mounted")
)

// ModelAdmin is implemented by embedding Base.
type ModelAdmin interface {
	Options() Options

	bind(self any, validate *validator.Validate) error
	routes(group *echo.Group)
}

type SiteOpt func(*Site)

// WithPrefix sets the path the admin is mounted on, default is /admin.
func WithPrefix(prefix string) SiteOpt {
	return func(s *Site) {
		s.prefix = "/" + strings.Trim(prefix, "/")
	}
}

// WithValidator sets the validator used for create and update, default is validator.New().
func WithValidator(validate *validator.Validate) SiteOpt {
	return func(s *Site) {
		s.validate = validate
	}
}

func NewSite(logger *slog.Logger, opts ...SiteOpt) *Site {
	site := &Site{
		mu:       sync.Mutex{},
		logger:   logger,
		prefix:   "/admin",
		validate: nil,
		models:   map[string]ModelAdmin{},
		order:    []string{},
		mounted:  false,
	}

	for _, opt := range opts {
		opt(site)
	}

	if site.validate == nil {
		site.validate = validator.New()
	}

	return site
}

// Site is the registry of all ModelAdmins.
type Site struct { //nolint:govet // fields are grouped by meaning
	mu sync.Mutex

	logger   *slog.Logger
	prefix   string
	validate *validator.Validate

	models  map[string]ModelAdmin
	order   []string
	mounted bool
}

// Register adds the model to the admin.
// A model can only be registered once per app.
func (s *Site) Register(model ModelAdmin) error {
	if model == nil {
		return fmt.Errorf("%w: nil", ErrInvalidModelAdmin)
	}

	if err := model.bind(model, s.validate); err != nil {
		return err
	}

	opts := model.Options()
	key := opts.key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mounted {
		return fmt.Errorf("%w: can not register %s", ErrSiteMounted, key)
	}

	if _, ok := s.models[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, key)
	}

	s.models[key] = model
	s.order = append(s.order, key)

	s.logger.Debug("registered admin model", slog.String("model", key))

	return nil
}

// IsRegistered reports, if the model of app is registered, e.g. IsRegistered("user", "user").
func (s *Site) IsRegistered(app string, model string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.models[app+"."+model]

	return ok
}

// Models returns the Options of all registered models, ordered by app and model.
func (s *Site) Models() []Options {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := slices.Clone(s.order)
	slices.Sort(keys)

	models := make([]Options, 0, len(keys))
	for _, key := range keys {
		models = append(models, s.models[key].Options())
	}

	return models
}

// Mount adds the routes of the admin to the router.
// After the site is mounted no more models can be registered.
func (s *Site) Mount(router *echo.Echo, middleware ...echo.MiddlewareFunc) *echo.Group {
	s.mu.Lock()
	s.mounted = true
	s.mu.Unlock()

	group := router.Group(s.prefix, middleware...)
	group.GET("/", s.index)

	for _, opts := range s.Models() {
		s.mu.Lock()
		model := s.models[opts.key()]
		s.mu.Unlock()

		model.routes(group.Group("/" + opts.App + "/" + opts.Model))
	}

	return group
}

type (
	appIndex struct {
		Label  string       `json:"label"`
		Models []modelIndex `json:"models"`
	}

	modelIndex struct {
		Name        string `json:"name"`
		VerboseName string `json:"verboseName"`
		URL         string `json:"url"`
	}
)

func (s *Site) index(c echo.Context) error {
	apps := []appIndex{}

	for _, opts := range s.Models() {
		if len(apps) == 0 || apps[len(apps)-1].Label != opts.App {
			apps = append(apps, appIndex{Label: opts.App, Models: []modelIndex{}})
		}

		apps[len(apps)-1].Models = append(apps[len(apps)-1].Models, modelIndex{
			Name:        opts.Model,
			VerboseName: title(opts.VerboseNamePlural),
			URL:         s.prefix + "/" + opts.App + "/" + opts.Model + "/",
		})
	}

	return c.JSON(http.StatusOK, map[string]any{"apps": apps}) //nolint:wrapcheck // echo error is handled by the router
}
