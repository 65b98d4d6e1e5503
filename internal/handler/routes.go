package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"api-hub-proxy/internal/config"
	"api-hub-proxy/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Operational
// routes are registered explicitly; everything else goes through the gateway.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, gw *Gateway, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/", gw.Handle)
	e.Any("/*", gw.Handle)
}
