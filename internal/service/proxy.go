// Package service implements the core proxy forwarding logic.
package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"api-hub-proxy/internal/client"
	"api-hub-proxy/internal/model"
	"api-hub-proxy/internal/redact"
	"api-hub-proxy/internal/registry"
)

// CORS values injected into every proxied response and preflight answer.
const (
	AllowOrigin  = "*"
	AllowMethods = "GET, HEAD, POST, OPTIONS, PUT, DELETE, PATCH"
	AllowHeaders = "*"
)

// Diagnostic response headers naming the service and resolved origin.
const (
	HeaderProxyService = "X-Proxy-Service"
	HeaderProxyOrigin  = "X-Proxy-Origin"
)

// excludedRequestHeaders are connection-specific or would misinform the
// upstream about the real client. Keys are canonical.
var excludedRequestHeaders = map[string]bool{
	"Host":             true,
	"Connection":       true,
	"Content-Length":   true,
	"Cf-Ray":           true,
	"Cf-Connecting-Ip": true,
}

// ProxyService rewrites matched requests onto their upstream and relays the answer.
type ProxyService struct {
	client *client.UpstreamClient
	logger *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client: c,
		logger: logger.With("component", "proxy_service"),
	}
}

// Forward sends pr to svc's upstream over https and returns the response with
// CORS and diagnostic headers injected. Upstream statuses, including 5xx, are
// not errors. Nothing is retried. The caller is responsible for closing the
// response body.
func (s *ProxyService) Forward(svc registry.Service, pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target, err := s.buildTarget(svc, pr)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("forwarding request",
		"service", svc.Name,
		"method", pr.Method,
		"target", redact.String(target.URL),
		"origin", pr.Origin,
	)

	resp, err := s.client.DoStream(pr.Ctx, target)
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", svc.Name, err)
	}

	decorateResponseHeaders(resp.Header, svc.Name, pr.Origin)
	return resp, nil
}

func (s *ProxyService) buildTarget(svc registry.Service, pr *model.ProxyRequest) (*model.ProxyTarget, error) {
	targetURL, err := buildUpstreamURL(svc.Host, pr.Path, pr.RawQuery)
	if err != nil {
		return nil, err
	}

	target := &model.ProxyTarget{
		Service: svc.Name,
		URL:     targetURL,
		Method:  pr.Method,
		Header:  filterRequestHeaders(pr.Header),
	}
	if hasBody(pr) {
		target.Body = pr.Body
		target.ContentLength = pr.ContentLength
	}
	return target, nil
}

// buildUpstreamURL joins host, the already-escaped path and the raw query
// without re-encoding either.
func buildUpstreamURL(host, path, rawQuery string) (string, error) {
	target := "https://" + host + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	if _, err := url.Parse(target); err != nil {
		return "", fmt.Errorf("build upstream url: %w", err)
	}
	return target, nil
}

// hasBody reports whether the inbound body is passed through. GET and HEAD
// never carry one upstream.
func hasBody(pr *model.ProxyRequest) bool {
	if pr.Method == http.MethodGet || pr.Method == http.MethodHead {
		return false
	}
	return pr.Body != nil && pr.Body != http.NoBody && pr.ContentLength != 0
}

// filterRequestHeaders copies every inbound header except excludedRequestHeaders.
func filterRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if excludedRequestHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		dst[key] = append([]string(nil), vals...)
	}
	return dst
}

// decorateResponseHeaders overwrites CORS headers and adds diagnostics on top
// of the upstream's own headers.
func decorateResponseHeaders(h http.Header, service, origin string) {
	h.Set("Access-Control-Allow-Origin", AllowOrigin)
	h.Set("Access-Control-Allow-Methods", AllowMethods)
	h.Set("Access-Control-Allow-Headers", AllowHeaders)
	h.Set(HeaderProxyService, service)
	h.Set(HeaderProxyOrigin, origin)
}
