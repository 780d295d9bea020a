// Package echo serves the dashboard reports and settings over HTTP.
package echo

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/glass-analytics/api"
	"github.com/pilab-dev/glass-analytics/domain"
	serrors "github.com/pilab-dev/glass-analytics/errors"
)

// Dashboard is what the API needs from settings.Dashboard.
type Dashboard interface {
	Settings() domain.Settings
	Err() error
	RealtimeActiveUsers(ctx context.Context) (int, bool)
	HistoricalSummary(ctx context.Context) (*domain.HistoricalSummary, bool)
	Save(ctx context.Context, next domain.Settings) (domain.Settings, error)
	Invalidate(ctx context.Context) error
}

// DashboardAPI holds the handler dependencies.
type DashboardAPI struct {
	dashboard Dashboard
}

// NewDashboardAPI initializes the dashboard API.
func NewDashboardAPI(dashboard Dashboard) *DashboardAPI {
	return &DashboardAPI{dashboard: dashboard}
}

// RegisterRoutes registers the dashboard routes.
func (da *DashboardAPI) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.GET("/analytics/realtime", da.RealtimeHandler)
	g.GET("/analytics/historical", da.HistoricalHandler)
	g.POST("/analytics/invalidate", da.InvalidateHandler)

	g.GET("/settings", da.GetSettingsHandler)
	g.PUT("/settings", da.SaveSettingsHandler)

	e.GET("/healthz", da.HealthHandler)
}

// RealtimeHandler answers 200 even when the report is unavailable; the
// presentation layer renders a fallback for a null value.
func (da *DashboardAPI) RealtimeHandler(c echo.Context) error {
	resp := api.RealtimeResponse{}
	if n, ok := da.dashboard.RealtimeActiveUsers(c.Request().Context()); ok {
		resp.ActiveUsers = &n
	}
	return c.JSON(http.StatusOK, resp)
}

// HistoricalHandler answers 200 even when the report is unavailable.
func (da *DashboardAPI) HistoricalHandler(c echo.Context) error {
	resp := api.HistoricalResponse{}
	if s, ok := da.dashboard.HistoricalSummary(c.Request().Context()); ok {
		resp.Summary = s
	}
	return c.JSON(http.StatusOK, resp)
}

// InvalidateHandler drops the cached reports.
func (da *DashboardAPI) InvalidateHandler(c echo.Context) error {
	if err := da.dashboard.Invalidate(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:   "cache_error",
			Message: err.Error(),
		})
	}
	return c.NoContent(http.StatusNoContent)
}

func (da *DashboardAPI) GetSettingsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, api.NewSettingsResponse(da.dashboard.Settings(), da.dashboard.Err()))
}

// SaveSettingsHandler replaces the settings. A service account payload that
// is not JSON is rejected with 400 and the previous settings stay in effect.
func (da *DashboardAPI) SaveSettingsHandler(c echo.Context) error {
	var req api.SettingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:   "invalid_request",
			Message: "request body must be a JSON object",
		})
	}

	saved, err := da.dashboard.Save(c.Request().Context(), domain.Settings{
		PropertyID:         req.PropertyID,
		ServiceAccountJSON: req.ServiceAccountJSON,
		ClarityEmbedURL:    req.ClarityEmbedURL,
	})
	if err != nil {
		if errors.Is(err, serrors.ErrConfig) {
			return c.JSON(http.StatusBadRequest, api.ErrorResponse{
				Error:   "invalid_settings",
				Message: err.Error(),
			})
		}
		return c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:   "server_error",
			Message: "failed to save settings",
		})
	}

	return c.JSON(http.StatusOK, api.NewSettingsResponse(saved, da.dashboard.Err()))
}

func (da *DashboardAPI) HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
