package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"api-hub-proxy/internal/classify"
	"api-hub-proxy/internal/model"
	"api-hub-proxy/internal/origin"
	"api-hub-proxy/internal/redact"
	"api-hub-proxy/internal/service"
)

// ProxyHandler forwards requests for known services to their upstream.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
	now     func() time.Time
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
		now:     time.Now,
	}
}

// Handle proxies a KindProxy route and streams the upstream response back.
// GET on the bare service root redirects to the homepage instead.
func (h *ProxyHandler) Handle(c echo.Context, route classify.Route, o origin.Origin) error {
	req := c.Request()

	if req.Method == http.MethodGet && route.IsServiceRoot() {
		return c.Redirect(http.StatusFound, "/")
	}

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Path:          route.Rest,
		RawQuery:      route.Query,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
		Origin:        o.String(),
	}

	resp, err := h.service.Forward(route.Service, pr)
	if err != nil {
		return h.mapError(c, route, o, err)
	}
	defer func() { _ = resp.Body.Close() }()

	dst := c.Response().Header()
	for key, vals := range resp.Header {
		dst[key] = vals
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the upstream body directly to the client. If io.Copy fails
	// mid-stream (e.g. client disconnect, network error), the HTTP status
	// code has already been sent, so the client receives a truncated
	// response with the original status. We log the error for observability.
	if _, err := copyFlushing(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", redact.Error(err),
			"service", route.Service.Name,
			"path", redact.String(route.Path),
		)
	}

	return nil
}

// proxyErrorBody is the JSON returned when a forward fails.
type proxyErrorBody struct {
	Error         string    `json:"error"`
	Reason        string    `json:"reason"`
	Message       string    `json:"message"`
	Service       string    `json:"service"`
	CurrentOrigin string    `json:"current_origin"`
	Pathname      string    `json:"pathname"`
	DebugInfo     debugInfo `json:"debug_info"`
}

type debugInfo struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	Timestamp string `json:"timestamp"`
}

// mapError converts any forward failure into a 500 JSON response. Nothing is retried.
func (h *ProxyHandler) mapError(c echo.Context, route classify.Route, o origin.Origin, err error) error {
	req := c.Request()
	msg := redact.Error(err)

	h.logger.Error("proxy error",
		"err", msg,
		"service", route.Service.Name,
		"path", redact.String(route.Path),
		"origin", o.String(),
	)

	hdr := c.Response().Header()
	hdr.Set("X-Error-Source", "proxy")
	hdr.Set("X-Error-Origin", o.String())

	return c.JSON(http.StatusInternalServerError, proxyErrorBody{
		Error:         "Proxy request failed",
		Reason:        errorReason(err),
		Message:       msg,
		Service:       route.Service.Name,
		CurrentOrigin: o.String(),
		Pathname:      redact.String(route.Path),
		DebugInfo: debugInfo{
			URL:       redact.String(req.RequestURI),
			Method:    req.Method,
			Timestamp: h.now().UTC().Format(time.RFC3339),
		},
	})
}

// errorReason gives a short, stable description of a forward failure.
func errorReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "upstream request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "client disconnected"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "upstream host unreachable"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "upstream connection failed"
	}

	return "upstream request failed"
}

// copyFlushing copies src to the response, flushing after every read so
// server-sent event streams reach the client as they arrive.
func copyFlushing(w *echo.Response, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w.Writer)
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			_ = rc.Flush()
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
