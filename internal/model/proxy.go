// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest is an inbound request already matched to a service.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	// Path is the escaped upstream path with the /{service} prefix removed.
	Path string
	// RawQuery is the inbound query string without the leading '?'.
	RawQuery      string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
	// Origin is the resolved public origin, echoed in diagnostics.
	Origin string
}

// ProxyTarget is the outbound request built from a ProxyRequest.
type ProxyTarget struct {
	Service       string
	URL           string
	Method        string
	Header        http.Header
	Body          io.Reader
	ContentLength int64
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       io.ReadCloser
}
