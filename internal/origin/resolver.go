// Package origin derives the externally visible scheme and host of a request.
package origin

import (
	"log/slog"
	"strings"

	"api-hub-proxy/internal/config"
	"api-hub-proxy/internal/headers"
)

// hostHeaders are consulted in order; earlier headers are more specific.
var hostHeaders = []string{
	"x-forwarded-host",
	"x-original-host",
	"x-real-host",
	"x-forwarded-server",
	"host",
}

// Origin is the scheme+host clients should believe they are talking to.
type Origin struct {
	Scheme string
	Host   string
}

// String renders the origin as scheme://host.
func (o Origin) String() string {
	return o.Scheme + "://" + o.Host
}

// Resolver picks the public origin for each request. It holds no per-request state.
type Resolver struct {
	defaultHost string
	markers     []string
	logger      *slog.Logger
}

// NewResolver creates a Resolver from the [origin] config section.
func NewResolver(cfg *config.Config, logger *slog.Logger) *Resolver {
	return &Resolver{
		defaultHost: cfg.Origin.DefaultHost,
		markers:     append([]string(nil), cfg.Origin.InternalMarkers...),
		logger:      logger.With("component", "origin_resolver"),
	}
}

// Resolve returns the first forwarded host that is not an internal platform
// hostname, or the configured default host. The scheme comes from
// x-forwarded-proto and defaults to https.
func (r *Resolver) Resolve(src headers.Source) Origin {
	scheme := "https"
	if proto, ok := headers.Get(src, "x-forwarded-proto"); ok {
		if v := firstValue(proto); v != "" {
			scheme = v
		}
	}

	for _, name := range hostHeaders {
		host, ok := headers.Get(src, name)
		if !ok {
			continue
		}
		if r.isInternal(host) {
			r.logger.Debug("skipping internal host", "header", name, "host", host)
			continue
		}
		if host = firstValue(host); host == "" {
			continue
		}
		return Origin{Scheme: scheme, Host: host}
	}

	return r.Default()
}

// Default returns the origin used when no trusted header is present. Its scheme
// is always https.
func (r *Resolver) Default() Origin {
	return Origin{Scheme: "https", Host: r.defaultHost}
}

func (r *Resolver) isInternal(host string) bool {
	for _, m := range r.markers {
		if strings.Contains(host, m) {
			return true
		}
	}
	return false
}

// firstValue takes the client-most entry of a comma-separated proxy chain.
func firstValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
