// Package client provides the outbound HTTP client for upstream APIs.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"api-hub-proxy/internal/config"
	"api-hub-proxy/internal/metrics"
	"api-hub-proxy/internal/model"
	"api-hub-proxy/internal/redact"
)

// UpstreamClient sends proxied requests to upstream APIs.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling, a
// bounded redirect chain and transparent compression disabled, so upstream
// bodies and Content-Encoding are relayed untouched.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
		ForceAttemptHTTP2:   true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	hc := &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
	}
	return NewUpstreamClientFrom(hc, cfg.Upstream.MaxRedirects, logger, m)
}

// NewUpstreamClientFrom wraps an existing http.Client. Redirects are followed
// up to maxRedirects hops; the last redirect response is returned after that.
func NewUpstreamClientFrom(hc *http.Client, maxRedirects int, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	hc.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}
	return &UpstreamClient{
		httpClient: hc,
		logger:     logger.With("component", "upstream_client"),
		metrics:    m,
	}
}

// Do executes an HTTP request against the upstream and returns the raw response.
// The caller is responsible for closing the response body.
func (c *UpstreamClient) Do(service string, req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("upstream request",
		"service", service,
		"method", req.Method,
		"host", req.URL.Host,
		"path", redact.String(req.URL.Path),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamErrors.WithLabelValues(service, method).Inc()
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(service, method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(service, method, status).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// DoStream sends target upstream, streaming its body without buffering.
// The caller is responsible for closing the returned body.
// The provided context controls the lifetime of the upstream request:
// when the context is canceled (e.g. client disconnects), the upstream
// request is also canceled.
func (c *UpstreamClient) DoStream(ctx context.Context, target *model.ProxyTarget) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, target.Method, target.URL, target.Body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if target.Body != nil {
		// Known lengths are sent as Content-Length, -1 falls back to chunked encoding.
		req.ContentLength = target.ContentLength
	}
	if target.Header != nil {
		req.Header = target.Header
	}

	return c.Do(target.Service, req)
}
