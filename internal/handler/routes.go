package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gemini-proxy-go/internal/config"
	"gemini-proxy-go/internal/metrics"
	"gemini-proxy-go/internal/middleware"
)

// RegisterRoutes wires all route handlers onto the Echo instance. The admin
// endpoints are static routes and take precedence over the catch-all proxy
// route; every other path and method is forwarded upstream.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, health *HealthHandler) {
	admin := middleware.AdminHeaders()

	e.GET("/healthz", health.Healthz, admin)
	e.GET("/proxy/status", health.Status, admin)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})), admin)
	}

	e.Any("/*", proxy.Handle)
}
