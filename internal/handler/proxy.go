package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"gemini-proxy-go/internal/metrics"
	"gemini-proxy-go/internal/model"
	"gemini-proxy-go/internal/service"
)

// apiKeyPattern matches key and api_key query values in URLs embedded in error messages.
var apiKeyPattern = regexp.MustCompile(`(?i)([?&](?:api_)?key=)[^&\s"]+`)

// allowHeader lists the forwarded methods for 405 responses.
var allowHeader = func() string {
	methods := model.Methods()
	tokens := make([]string, len(methods))
	for i, m := range methods {
		tokens[i] = m.String()
	}
	return strings.Join(tokens, ", ")
}()

// ProxyHandler is the boundary between echo and the forwarding pipeline.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler.
// The metrics parameter is optional; pass nil to disable stream metrics.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
	}
}

// Handle forwards the request upstream and relays the response as it arrives.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	method, err := model.ParseMethod(req.Method)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RejectedRequests.WithLabelValues(metrics.StageMethod).Inc()
		}
		return h.mapError(c, err)
	}

	resp, err := h.service.Forward(&model.InboundRequest{
		Ctx:    req.Context(),
		Method: method,
		URL:    req.URL,
		Header: req.Header,
		Body:   req.Body,
	})
	if err != nil {
		return h.mapError(c, err)
	}

	w := c.Response()
	for key, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	// Status and headers are committed from here on. Failures only end the
	// body early; the client sees a truncated response.
	rc := http.NewResponseController(w)
	var written int64
	for chunk, err := range resp.Body {
		if err != nil {
			h.streamFailed(req, written, err)
			break
		}
		n, werr := w.Write(chunk)
		written += int64(n)
		if werr == nil {
			werr = rc.Flush()
		}
		if werr != nil {
			h.logger.Debug("client write failed, abandoning upstream stream",
				"err", werr,
				"path", req.URL.Path,
				"relayed", humanize.Bytes(uint64(written)),
			)
			break
		}
	}

	if h.metrics != nil {
		h.metrics.StreamedBytes.Add(float64(written))
	}
	h.logger.Debug("response relayed",
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"bytes", written,
		"size", humanize.Bytes(uint64(written)),
	)
	return nil
}

func (h *ProxyHandler) streamFailed(req *http.Request, written int64, err error) {
	// A canceled request context means the downstream client went away and
	// the upstream read was aborted on its behalf.
	if req.Context().Err() != nil {
		h.logger.Debug("client aborted stream",
			"err", sanitizeError(err),
			"path", req.URL.Path,
			"relayed", humanize.Bytes(uint64(written)),
		)
		return
	}
	if h.metrics != nil {
		h.metrics.StreamErrors.Inc()
	}
	h.logger.Error("upstream stream interrupted",
		"err", sanitizeError(err),
		"path", req.URL.Path,
		"relayed", humanize.Bytes(uint64(written)),
	)
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", sanitizeError(err),
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, model.ErrUnsupportedMethod) {
		c.Response().Header().Set(echo.HeaderAllow, allowHeader)
		return c.JSON(http.StatusMethodNotAllowed, map[string]string{
			"error": "method not allowed",
		})
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code == http.StatusRequestEntityTooLarge {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
			"error": "request body too large",
		})
	}

	var dispatchErr *model.DispatchError
	if errors.As(err, &dispatchErr) {
		if isTimeout(err) {
			return c.JSON(http.StatusGatewayTimeout, map[string]string{
				"error": "upstream request timed out",
			})
		}
		if errors.Is(err, context.Canceled) {
			return c.JSON(http.StatusBadGateway, map[string]string{
				"error": "client disconnected",
			})
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return c.JSON(http.StatusBadGateway, map[string]string{
				"error": "upstream host unreachable",
			})
		}
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream request failed",
		})
	}

	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": "request could not be forwarded",
	})
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// sanitizeError redacts API keys from error messages that may contain upstream URLs.
func sanitizeError(err error) string {
	return apiKeyPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
