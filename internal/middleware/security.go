package middleware

import (
	"github.com/labstack/echo/v4"
)

// AdminHeaders returns an Echo middleware that adds hardening headers to
// the proxy's own endpoints. It is not applied to proxied responses,
// which are relayed as the upstream sent them.
func AdminHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderXContentTypeOptions, "nosniff")
			h.Set(echo.HeaderXFrameOptions, "DENY")
			return next(c)
		}
	}
}
