package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"gemini-proxy-go/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	rewriter *service.Rewriter
	version  Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(rw *service.Rewriter, v Version) *HealthHandler {
	return &HealthHandler{rewriter: rw, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":       "ok",
		"version":      string(h.version),
		"upstream_url": h.rewriter.BaseURL(),
	})
}
