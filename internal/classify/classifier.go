// Package classify decides how an inbound request is served.
package classify

import (
	"net/http"
	"net/url"
	"strings"

	"api-hub-proxy/internal/registry"
)

// Kind is the outcome of classifying a request.
type Kind int

const (
	KindPreflight Kind = iota
	KindStatic
	KindHomepage
	KindProxy
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindPreflight:
		return "preflight"
	case KindStatic:
		return "static"
	case KindHomepage:
		return "homepage"
	case KindProxy:
		return "proxy"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// staticPaths are answered by the static responder.
var staticPaths = map[string]bool{
	"/favicon.ico": true,
	"/robots.txt":  true,
	"/sitemap.xml": true,
}

// homepagePaths always render the homepage.
var homepagePaths = map[string]bool{
	"":            true,
	"/":           true,
	"/index":      true,
	"/index.html": true,
}

// Route is a classified request.
type Route struct {
	Kind Kind
	// Path is the escaped request path, Query the raw query without '?'.
	Path  string
	Query string
	// Segment is the first non-empty path segment.
	Segment string
	// Service and Rest are set for KindProxy: Rest is Path with the leading
	// /{service} segment removed.
	Service registry.Service
	Rest    string
}

// IsServiceRoot reports whether the route addresses /{service} or /{service}/.
func (r Route) IsServiceRoot() bool {
	return r.Kind == KindProxy && (r.Rest == "" || r.Rest == "/")
}

// Classifier maps requests onto Routes. It is stateless and safe for concurrent use.
type Classifier struct {
	services *registry.Registry
}

// New creates a Classifier over the given service registry.
func New(services *registry.Registry) *Classifier {
	return &Classifier{services: services}
}

// Classify evaluates, in order: CORS preflight, static asset, homepage path,
// known service, trailing-slash homepage heuristic, unknown service.
// rawURL is the request target as received; an empty rawURL is the homepage.
func (c *Classifier) Classify(method, rawURL string) Route {
	path, query, ok := SplitURL(rawURL)
	route := Route{Path: path, Query: query, Segment: firstSegment(path)}

	switch {
	case method == http.MethodOptions:
		route.Kind = KindPreflight
		return route
	case !ok:
		route.Kind = KindHomepage
		return route
	case staticPaths[path]:
		route.Kind = KindStatic
		return route
	case homepagePaths[path]:
		route.Kind = KindHomepage
		return route
	}

	if svc, found := c.services.Lookup(route.Segment); found {
		route.Kind = KindProxy
		route.Service = svc
		route.Rest = stripSegment(path)
		return route
	}

	// Service prefixes are checked first so /openai/v1/ is never taken for the homepage.
	if strings.HasSuffix(rawURL, "/") || route.Segment == "" {
		route.Kind = KindHomepage
		return route
	}

	route.Kind = KindNotFound
	return route
}

// SplitURL extracts the escaped path and raw query from a request target.
// Targets that fail strict parsing are split manually at the first '?'.
// ok is false only when rawURL is empty.
func SplitURL(rawURL string) (path, query string, ok bool) {
	if rawURL == "" {
		return "/", "", false
	}
	if u, err := url.ParseRequestURI(rawURL); err == nil {
		path = u.EscapedPath()
		if path == "" {
			path = "/"
		}
		return path, u.RawQuery, true
	}

	path, query, _ = strings.Cut(rawURL, "?")
	if i := strings.IndexByte(query, '#'); i >= 0 {
		query = query[:i]
	}
	if path == "" {
		path = "/"
	}
	return path, query, true
}

func firstSegment(path string) string {
	seg, _, _ := strings.Cut(strings.TrimLeft(path, "/"), "/")
	return seg
}

// stripSegment removes the leading slashes and first segment, keeping the
// remainder's leading '/'.
func stripSegment(path string) string {
	trimmed := strings.TrimLeft(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[i:]
	}
	return ""
}
