package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-arrower/api/profiling"
)

const (
	metricPath = "/metrics"
	statusPath = "/status"
)

// newStatusRouter serves the operational endpoints on their own port,
// so they are not reachable through the public router.
func newStatusRouter(dc *Container) *echo.Echo {
	router := echo.New()
	router.HideBanner = true
	router.HidePort = true
	router.Logger.SetOutput(io.Discard)

	router.GET(metricPath, echo.WrapHandler(promhttp.HandlerFor(
		dc.Registry,
		promhttp.HandlerOpts{ //nolint:exhaustruct
			EnableOpenMetrics: true, // to enable Examplars in the export format
		},
	)))

	router.GET(statusPath, func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderCacheControl, "no-store")

		status := getSystemStatus(c.Request().Context(), dc)

		code := http.StatusOK
		if status.Status != statusOnline {
			code = http.StatusServiceUnavailable
		}

		return c.JSON(code, status)
	})

	if dc.Config.Profiling.PprofEndpoint {
		profiling.RegisterPprof(router)
	}

	return router
}

const (
	statusOnline   = "online"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

type (
	systemStatus struct {
		Status           string      `json:"status"`
		Time             time.Time   `json:"time"`
		Uptime           string      `json:"uptime"`
		GitHash          string      `json:"gitHash"`
		OrganisationName string      `json:"organisationName"`
		ApplicationName  string      `json:"applicationName"`
		InstanceName     string      `json:"instanceName"`
		Environment      Environment `json:"environment"`

		Web      HTTP            `json:"web"`
		Database *databaseStatus `json:"database,omitempty"`
		Apps     []string        `json:"apps"`
		Failures map[string]any  `json:"failures"`
	}

	databaseStatus struct {
		Database
		Status string `json:"status"`
	}
)

func getSystemStatus(ctx context.Context, dc *Container) systemStatus {
	status := systemStatus{
		Status:           statusOnline,
		Time:             time.Now(),
		Uptime:           time.Since(dc.startedAt).Round(time.Second).String(),
		GitHash:          gitHash(),
		OrganisationName: dc.Config.OrganisationName,
		ApplicationName:  dc.Config.ApplicationName,
		InstanceName:     dc.Config.InstanceName,
		Environment:      dc.Config.Environment,
		Web:              dc.Config.HTTP,
		Database:         nil,
		Apps:             []string{},
		Failures:         map[string]any{},
	}

	if !dc.Ready() {
		status.Status = statusStarting
	}

	if dc.Apps != nil {
		status.Apps = dc.Apps.Ready()
	}

	if dc.PGx != nil {
		db, _ := dc.Config.Database(DefaultDatabaseAlias)
		status.Database = &databaseStatus{Database: db, Status: statusOnline}

		if err := dc.PGx.Ping(ctx); err != nil {
			status.Database.Status = err.Error()
			status.Status = statusDegraded
			status.Failures["database"] = err.Error()
		}
	}

	return status
}
