package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"api-hub-proxy/internal/classify"
	"api-hub-proxy/internal/headers"
	"api-hub-proxy/internal/origin"
	"api-hub-proxy/internal/redact"
)

// originKey stores the resolved origin on the echo context.
const originKey = "api_hub_origin"

// Gateway is the single entry point for every path not claimed by an
// operational route. It classifies the request and dispatches it.
type Gateway struct {
	classifier *classify.Classifier
	extract    headers.Extractor
	resolver   *origin.Resolver
	pages      *PageHandler
	proxy      *ProxyHandler
	logger     *slog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(
	classifier *classify.Classifier,
	extract headers.Extractor,
	resolver *origin.Resolver,
	pages *PageHandler,
	proxy *ProxyHandler,
	logger *slog.Logger,
) *Gateway {
	return &Gateway{
		classifier: classifier,
		extract:    extract,
		resolver:   resolver,
		pages:      pages,
		proxy:      proxy,
		logger:     logger.With("component", "gateway"),
	}
}

// Handle classifies the request and hands it to the matching responder.
func (g *Gateway) Handle(c echo.Context) error {
	req := c.Request()

	target := req.RequestURI
	if target == "" {
		target = req.URL.RequestURI()
	}
	route := g.classifier.Classify(req.Method, target)

	if route.Kind == classify.KindPreflight {
		return Preflight(c)
	}

	o := g.resolver.Resolve(g.extract(req))
	c.Set(originKey, o)

	g.logger.Debug("classified request",
		"kind", route.Kind.String(),
		"path", route.Path,
		"service", route.Service.Name,
		"origin", o.String(),
	)

	switch route.Kind {
	case classify.KindStatic:
		return g.pages.Static(c, route.Path, o)
	case classify.KindHomepage:
		return g.pages.Homepage(c, o)
	case classify.KindProxy:
		return g.proxy.Handle(c, route, o)
	default:
		return g.pages.NotFound(c, route, o)
	}
}

// errorBody is the JSON rendered by the central error handler.
type errorBody struct {
	Error        string       `json:"error"`
	Message      string       `json:"message"`
	Timestamp    string       `json:"timestamp"`
	RequestInfo  requestInfo  `json:"request_info"`
	DebugContext debugContext `json:"debug_context"`
}

type requestInfo struct {
	Method    string `json:"method"`
	URL       string `json:"url"`
	RequestID string `json:"request_id,omitempty"`
}

type debugContext struct {
	UserAgent    string `json:"user_agent"`
	Host         string `json:"host"`
	OriginHeader string `json:"origin_header"`
}

// NewErrorHandler returns an echo.HTTPErrorHandler that renders every
// unhandled failure as JSON. Errors carrying an HTTP code keep it; anything
// else, including recovered panics, becomes a 500.
func NewErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		req := c.Request()
		code := http.StatusInternalServerError
		title := "Internal Server Error"
		msg := redact.Error(err)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			title = http.StatusText(code)
			msg = redact.String(fmt.Sprint(he.Message))
		}

		if code >= http.StatusInternalServerError {
			logger.Error("unhandled error", "err", redact.Error(err), "method", req.Method, "path", redact.String(req.URL.Path))
		}

		host := req.Host
		if o, ok := c.Get(originKey).(origin.Origin); ok {
			host = o.Host
		}

		body := errorBody{
			Error:     title,
			Message:   msg,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			RequestInfo: requestInfo{
				Method:    req.Method,
				URL:       redact.String(req.RequestURI),
				RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
			},
			DebugContext: debugContext{
				UserAgent:    req.UserAgent(),
				Host:         host,
				OriginHeader: req.Header.Get(echo.HeaderOrigin),
			},
		}

		var werr error
		if req.Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, body)
		}
		if werr != nil {
			logger.Error("writing error response", "err", werr)
		}
	}
}
