// Package headers provides a uniform, case-insensitive view over request headers
// regardless of how the host runtime represents them.
package headers

import (
	"fmt"
	"net/http"
	"strings"

	"api-hub-proxy/internal/config"
)

// Source is a read-only header lookup. Implementations must treat name
// case-insensitively.
type Source interface {
	Lookup(name string) (string, bool)
}

// HTTP adapts a standard http.Header, which exposes its own canonicalizing getter.
type HTTP http.Header

// Lookup implements Source.
func (h HTTP) Lookup(name string) (string, bool) {
	vals := http.Header(h).Values(name)
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// Flat adapts a plain name→value mapping with arbitrary key casing.
type Flat map[string]string

// Lookup implements Source. Exact and lower-case keys are tried before a full scan.
func (f Flat) Lookup(name string) (string, bool) {
	if v, ok := f[name]; ok {
		return v, true
	}
	lower := strings.ToLower(name)
	if v, ok := f[lower]; ok {
		return v, true
	}
	for k, v := range f {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Get returns the value of header name from src. Missing, empty and
// unreadable headers are all reported as absent; Get never panics.
func Get(src Source, name string) (value string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			value, ok = "", false
		}
	}()
	if src == nil {
		return "", false
	}
	value, ok = src.Lookup(name)
	if value == "" {
		return "", false
	}
	return value, ok
}

// Extractor turns an inbound request into a header Source. One Extractor is
// chosen at startup for the runtime the gateway is deployed on.
type Extractor func(r *http.Request) Source

// FromRequest reads headers through the standard http.Header getter.
func FromRequest(r *http.Request) Source {
	if r == nil {
		return nil
	}
	return HTTP(r.Header)
}

// FlattenRequest copies headers into a lower-cased single-value map, joining
// repeated values with ", " the way plain-object runtimes present them.
func FlattenRequest(r *http.Request) Source {
	if r == nil {
		return nil
	}
	flat := make(Flat, len(r.Header)+1)
	for k, vals := range r.Header {
		flat[strings.ToLower(k)] = strings.Join(vals, ", ")
	}
	if r.Host != "" {
		if _, ok := flat["host"]; !ok {
			flat["host"] = r.Host
		}
	}
	return flat
}

// ForRuntime selects the Extractor for a [runtime] header_source value.
func ForRuntime(name string) (Extractor, error) {
	switch strings.ToLower(name) {
	case config.HeaderSourceStandard, "":
		return withHost(FromRequest), nil
	case config.HeaderSourceFlat:
		return FlattenRequest, nil
	default:
		return nil, fmt.Errorf("headers: unknown header source %q", name)
	}
}

// NewExtractor provides the configured Extractor.
func NewExtractor(cfg *config.Config) (Extractor, error) {
	return ForRuntime(cfg.Runtime.HeaderSource)
}

// withHost exposes r.Host as the "host" header; net/http removes it from r.Header.
func withHost(next Extractor) Extractor {
	return func(r *http.Request) Source {
		src := next(r)
		if r == nil || r.Host == "" {
			return src
		}
		return hostFallback{Source: src, host: r.Host}
	}
}

type hostFallback struct {
	Source
	host string
}

func (h hostFallback) Lookup(name string) (string, bool) {
	if v, ok := h.Source.Lookup(name); ok && v != "" {
		return v, true
	}
	if strings.EqualFold(name, "host") {
		return h.host, true
	}
	return "", false
}
