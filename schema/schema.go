// Package schema generates an OpenAPI 3 document of the routes registered with echo.
// Apps describe their endpoints with Describe; routes without a description are
// included with their method and path only.
package schema

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
)

// Options are the values of the spectacular settings.
type Options struct {
	Title       string
	Description string
	Version     string
	// Path the document is served on, default is /api/schema/.
	Path string
	// Prefixes of the routes to include, default is /api/.
	Prefixes []string
}

type (
	// OpenAPI is the root of the document.
	OpenAPI struct {
		OpenAPI    string              `json:"openapi"              yaml:"openapi"`
		Info       Info                `json:"info"                 yaml:"info"`
		Paths      map[string]PathItem `json:"paths"                yaml:"paths"`
		Components *Components         `json:"components,omitempty" yaml:"components,omitempty"`
	}

	Info struct {
		Title       string `json:"title"                 yaml:"title"`
		Description string `json:"description,omitempty" yaml:"description,omitempty"`
		Version     string `json:"version"               yaml:"version"`
	}

	// PathItem maps the lower case http method to its operation.
	PathItem map[string]Operation

	Operation struct {
		OperationID string              `json:"operationId,omitempty" yaml:"operationId,omitempty"`
		Summary     string              `json:"summary,omitempty"     yaml:"summary,omitempty"`
		Tags        []string            `json:"tags,omitempty"        yaml:"tags,omitempty"`
		Parameters  []Parameter         `json:"parameters,omitempty"  yaml:"parameters,omitempty"`
		Responses   map[string]Response `json:"responses"             yaml:"responses"`
	}

	Parameter struct {
		Name     string `json:"name"     yaml:"name"`
		In       string `json:"in"       yaml:"in"`
		Required bool   `json:"required" yaml:"required"`
		Schema   Schema `json:"schema"   yaml:"schema"`
	}

	Response struct {
		Description string               `json:"description"       yaml:"description"`
		Content     map[string]MediaType `json:"content,omitempty" yaml:"content,omitempty"`
	}

	MediaType struct {
		Schema Schema `json:"schema" yaml:"schema"`
	}

	Schema struct {
		Ref        string            `json:"$ref,omitempty"       yaml:"$ref,omitempty"`
		Type       string            `json:"type,omitempty"       yaml:"type,omitempty"`
		Format     string            `json:"format,omitempty"     yaml:"format,omitempty"`
		Items      *Schema           `json:"items,omitempty"      yaml:"items,omitempty"`
		Properties map[string]Schema `json:"properties,omitempty" yaml:"properties,omitempty"`
	}

	Components struct {
		Schemas map[string]Schema `json:"schemas" yaml:"schemas"`
	}
)

func New(opts Options) *Document {
	if opts.Path == "" {
		opts.Path = "/api/schema/"
	}

	if len(opts.Prefixes) == 0 {
		opts.Prefixes = []string{"/api/"}
	}

	if opts.Version == "" {
		opts.Version = "1.0.0"
	}

	return &Document{
		mu:         sync.Mutex{},
		opts:       opts,
		operations: map[string]Operation{},
		schemas:    map[string]Schema{},
	}
}

// Document collects the descriptions of the endpoints.
type Document struct {
	mu sync.Mutex

	opts       Options
	operations map[string]Operation
	schemas    map[string]Schema
}

// Describe sets the documentation of the route method path, e.g. Describe(http.MethodGet, "/api/users/", op).
func (d *Document) Describe(method string, path string, op Operation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.operations[strings.ToUpper(method)+" "+path] = op
}

// AddSchema adds a reusable component, refer to it with Ref(name).
func (d *Document) AddSchema(name string, schema Schema) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.schemas[name] = schema
}

func Ref(name string) Schema {
	return Schema{Ref: "#/components/schemas/" + name} //nolint:exhaustruct // a ref has no other fields
}

// Build returns the document for the given routes.
func (d *Document) Build(routes []*echo.Route) OpenAPI {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc := OpenAPI{
		OpenAPI: "3.0.3",
		Info: Info{
			Title:       d.opts.Title,
			Description: d.opts.Description,
			Version:     d.opts.Version,
		},
		Paths:      map[string]PathItem{},
		Components: nil,
	}

	for _, route := range routes {
		if !d.included(route) {
			continue
		}

		op, ok := d.operations[route.Method+" "+route.Path]
		if !ok {
			op = Operation{} //nolint:exhaustruct // undocumented route
		}

		if op.Responses == nil {
			op.Responses = map[string]Response{"200": {Description: http.StatusText(http.StatusOK), Content: nil}}
		}

		path, params := openAPIPath(route.Path)
		op.Parameters = append(params, op.Parameters...)

		if op.OperationID == "" {
			op.OperationID = strings.ToLower(route.Method) + strings.ReplaceAll(strings.Trim(route.Path, "/"), "/", "_")
		}

		if doc.Paths[path] == nil {
			doc.Paths[path] = PathItem{}
		}

		doc.Paths[path][strings.ToLower(route.Method)] = op
	}

	if len(d.schemas) > 0 {
		doc.Components = &Components{Schemas: d.schemas}
	}

	return doc
}

func (d *Document) included(route *echo.Route) bool {
	if route.Path == d.opts.Path || route.Method == echo.RouteNotFound {
		return false
	}

	return slices.ContainsFunc(d.opts.Prefixes, func(p string) bool { return strings.HasPrefix(route.Path, p) })
}

// openAPIPath converts echo path params: /api/users/:id/ => /api/users/{id}/.
func openAPIPath(path string) (string, []Parameter) {
	parts := strings.Split(path, "/")
	params := []Parameter{}

	for i, part := range parts {
		if strings.HasPrefix(part, ":") {
			name := strings.TrimPrefix(part, ":")
			parts[i] = "{" + name + "}"
			params = append(params, Parameter{
				Name:     name,
				In:       "path",
				Required: true,
				Schema:   Schema{Type: "string"}, //nolint:exhaustruct // path params are plain strings
			})
		}
	}

	return strings.Join(parts, "/"), params
}

// Register serves the document on the path of the options.
// The format is yaml, unless ?format=json is requested or the client accepts json only.
func (d *Document) Register(router *echo.Echo) {
	router.GET(d.opts.Path, d.handler(router))
}

func (d *Document) handler(router *echo.Echo) echo.HandlerFunc {
	return func(c echo.Context) error {
		doc := d.Build(router.Routes())

		if c.QueryParam("format") == "json" ||
			c.Request().Header.Get(echo.HeaderAccept) == echo.MIMEApplicationJSON {
			b, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err //nolint:wrapcheck // handled by the router
			}

			return c.Blob(http.StatusOK, "application/vnd.oai.openapi+json", b) //nolint:wrapcheck // handled by the router
		}

		b, err := yaml.Marshal(doc)
		if err != nil {
			return err //nolint:wrapcheck // handled by the router
		}

		return c.Blob(http.StatusOK, "application/vnd.oai.openapi", b) //nolint:wrapcheck // handled by the router
	}
}
