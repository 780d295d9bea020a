package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoapi "github.com/pilab-dev/glass-analytics/api/echo"
	"github.com/pilab-dev/glass-analytics/config"
	"github.com/pilab-dev/glass-analytics/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the echo router with the dashboard routes and /metrics.
func NewRouter(appLogger log.Logger, dashboardAPI *echoapi.DashboardAPI, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(echoapi.RequestID())
	e.Use(echoapi.RequestLogger(appLogger))

	dashboardAPI.RegisterRoutes(e)

	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return e
}

// NewHTTPServer wraps the router in an http.Server listening on HTTP_PORT.
func NewHTTPServer(cfg *config.ServerConfig, appLogger log.Logger, dashboardAPI *echoapi.DashboardAPI, gatherer prometheus.Gatherer) *http.Server {
	return &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: NewRouter(appLogger, dashboardAPI, gatherer),
		// Upstream calls may take up to HTTP_TIMEOUT each.
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2*cfg.HTTPTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
