package user

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/go-arrower/api/app"
	"github.com/go-arrower/api/apps"
	"github.com/go-arrower/api/auth"
	"github.com/go-arrower/api/repository"
	"github.com/go-arrower/api/schema"
)

const (
	AppName  = "api.user"
	AppLabel = "user"
)

// AppConfig installs the user app.
// If Repository is nil, Ready chooses the postgres repository or,
// without a database, the memory repository persisted to Store, if set.
// See OpenMemoryRepository.
type AppConfig struct {
	Repository Repository
	Store      repository.Store
}

var _ apps.Config = (*AppConfig)(nil)

func (a *AppConfig) Name() string  { return AppName }
func (a *AppConfig) Label() string { return AppLabel }

func (a *AppConfig) Ready(_ context.Context, deps *apps.Deps) error {
	if a.Repository == nil {
		if deps.PGx != nil {
			a.Repository = NewPostgresRepository(deps.PGx)
		} else if a.Store != nil {
			repo, err := OpenMemoryRepository(a.Store)
			if err != nil {
				return err
			}

			a.Repository = repo
		} else {
			a.Repository = NewMemoryRepository()
		}
	}

	if deps.Admin != nil {
		if err := deps.Admin.Register(NewUserAdmin(a.Repository, deps.REST)); err != nil {
			return fmt.Errorf("could not register user admin: %w", err)
		}
	}

	if deps.Router != nil {
		deps.Router.Use(auth.RefreshAccountMiddleware(Accounts(a.Repository)))
	}

	if deps.Lockout != nil && deps.Hasher != nil {
		auth.NewController(deps.Logger, Accounts(a.Repository), deps.Hasher, deps.Lockout, deps.Auth).
			Register(deps.Router)
	}

	if deps.API != nil {
		a.routes(deps)
	}

	if deps.Queue != nil && deps.Private != nil {
		export := app.Instrumented(deps.TraceProvider, deps.MeterProvider, deps.Logger,
			app.Validated(nil, app.InTx(deps.PGx,
				app.HandlerFunc[ExportUsers](ExportUsersFunc(a.Repository, deps.Private)),
			)),
		)

		if err := deps.Queue.RegisterJobFunc(export.H); err != nil {
			return fmt.Errorf("could not register export job: %w", err)
		}
	}

	return nil
}

func (a *AppConfig) routes(deps *apps.Deps) {
	mws := []echo.MiddlewareFunc{auth.EnsureLoggedIn(deps.Auth)}
	if deps.Throttle != nil {
		mws = append([]echo.MiddlewareFunc{deps.Throttle}, mws...)
	}

	ctrl := NewController(a.Repository, deps.Queue, deps.Private, deps.REST)

	users := deps.API.Group("/users", mws...)
	users.GET("/", ctrl.List())
	users.GET("/:id/", ctrl.Detail())

	if deps.Queue != nil && deps.Private != nil {
		staff := auth.EnsureStaff(deps.Auth)

		users.POST("/export/", ctrl.Export(), staff)
		users.GET("/exports/", ctrl.Exports(), staff)
		users.GET("/exports/:name", ctrl.DownloadExport(), staff)
	}

	if deps.Schema == nil {
		return
	}

	deps.Schema.AddSchema("User", schema.Schema{
		Type: "object",
		Properties: map[string]schema.Schema{
			"id":          {Type: "string", Format: "uuid"},
			"username":    {Type: "string"},
			"email":       {Type: "string", Format: "email"},
			"firstName":   {Type: "string"},
			"lastName":    {Type: "string"},
			"isStaff":     {Type: "boolean"},
			"isActive":    {Type: "boolean"},
			"isSuperuser": {Type: "boolean"},
			"dateJoined":  {Type: "string", Format: "date-time"},
			"lastLogin":   {Type: "string", Format: "date-time"},
		},
	})

	user := schema.Ref("User")

	deps.Schema.Describe(http.MethodGet, "/api/users/", schema.Operation{
		Summary: "List the users",
		Tags:    []string{"users"},
		Parameters: []schema.Parameter{
			{Name: "page", In: "query", Schema: schema.Schema{Type: "integer"}},
			{Name: "page_size", In: "query", Schema: schema.Schema{Type: "integer"}},
			{Name: "search", In: "query", Schema: schema.Schema{Type: "string"}},
		},
		Responses: map[string]schema.Response{
			"200": {Description: "A page of users", Content: map[string]schema.MediaType{
				echo.MIMEApplicationJSON: {Schema: schema.Schema{
					Type: "object",
					Properties: map[string]schema.Schema{
						"count":    {Type: "integer"},
						"next":     {Type: "string"},
						"previous": {Type: "string"},
						"results":  {Type: "array", Items: &user},
					},
				}},
			}},
		},
	})

	deps.Schema.Describe(http.MethodGet, "/api/users/:id/", schema.Operation{
		Summary: "Get a user",
		Tags:    []string{"users"},
		Responses: map[string]schema.Response{
			"200": {Description: "The user", Content: map[string]schema.MediaType{
				echo.MIMEApplicationJSON: {Schema: user},
			}},
			"404": {Description: "Not found"},
		},
	})
}
