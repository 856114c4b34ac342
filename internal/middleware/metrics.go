package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"gemini-proxy-go/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records inbound request
// metrics. Requests for which skip returns true are not counted; pass nil
// to count everything.
//
// Duration covers the whole exchange, so for relayed streams it includes
// the time spent streaming the upstream body.
func MetricsMiddleware(m *metrics.Metrics, skip echomw.Skipper) echo.MiddlewareFunc {
	if skip == nil {
		skip = echomw.DefaultSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip(c) {
				return next(c)
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)

			labels := []string{
				metrics.NormalizeMethod(c.Request().Method),
				strconv.Itoa(responseStatus(c, err)),
				metrics.NormalizePath(c.Request().URL.Path),
			}
			m.RequestsTotal.WithLabelValues(labels...).Inc()
			m.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// SkipPath returns a Skipper matching exactly path.
func SkipPath(path string) echomw.Skipper {
	return func(c echo.Context) bool {
		return c.Request().URL.Path == path
	}
}

// responseStatus resolves the status the client will see. An uncommitted
// *echo.HTTPError is written later by Echo's error handler.
func responseStatus(c echo.Context, err error) int {
	res := c.Response()
	if res.Committed || err == nil {
		return res.Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
