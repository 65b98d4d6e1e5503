package handler

import (
	"bytes"
	_ "embed"
	"encoding/xml"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"api-hub-proxy/internal/classify"
	"api-hub-proxy/internal/config"
	"api-hub-proxy/internal/origin"
	"api-hub-proxy/internal/registry"
	"api-hub-proxy/internal/service"
)

//go:embed templates/homepage.html
var homepageHTML string

var homepageTmpl = template.Must(template.New("homepage").Parse(homepageHTML))

// fallbackFavicon is served when the favicon file cannot be read.
const fallbackFavicon = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100"><text y=".9em" font-size="90">🚀</text></svg>`

// PageHandler serves the homepage, static assets and the unknown-service 404.
type PageHandler struct {
	registry    *registry.Registry
	faviconPath string
	logger      *slog.Logger
	now         func() time.Time
}

// NewPageHandler creates a PageHandler.
func NewPageHandler(cfg *config.Config, reg *registry.Registry, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		registry:    reg,
		faviconPath: cfg.Static.FaviconPath,
		logger:      logger.With("component", "page_handler"),
		now:         time.Now,
	}
}

type homepageService struct {
	Icon        string
	Title       string
	Description string
	Endpoint    string
	Examples    []string
}

type homepageData struct {
	Origin    string
	Services  []homepageService
	Generated string
}

// Homepage renders the service directory for GET and HEAD.
func (h *PageHandler) Homepage(c echo.Context, o origin.Origin) error {
	method := c.Request().Method
	if method != http.MethodGet && method != http.MethodHead {
		c.Response().Header().Set(echo.HeaderAllow, "GET, HEAD")
		return c.JSON(http.StatusMethodNotAllowed, map[string]string{
			"error": "Method Not Allowed",
		})
	}

	data := homepageData{
		Origin:    o.String(),
		Generated: h.now().UTC().Format(time.RFC3339),
	}
	for _, s := range h.registry.All() {
		endpoint := o.String() + "/" + s.Name + "/"
		hs := homepageService{
			Icon:        s.Icon,
			Title:       strings.ToUpper(s.Name),
			Description: s.Description,
			Endpoint:    endpoint,
		}
		for _, p := range s.Paths {
			if p = strings.TrimPrefix(p, "/"); p != "" {
				hs.Examples = append(hs.Examples, endpoint+p)
			}
		}
		data.Services = append(data.Services, hs)
	}

	var buf bytes.Buffer
	if err := homepageTmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render homepage: %w", err)
	}

	hdr := c.Response().Header()
	hdr.Set(echo.HeaderCacheControl, "public, max-age=300")
	hdr.Set("X-Page-Type", "homepage")
	hdr.Set("X-Current-Origin", o.String())
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

// Static serves /favicon.ico, /robots.txt and /sitemap.xml.
func (h *PageHandler) Static(c echo.Context, path string, o origin.Origin) error {
	switch path {
	case "/favicon.ico":
		return h.favicon(c)
	case "/robots.txt":
		return h.robots(c, o)
	case "/sitemap.xml":
		return h.sitemap(c, o)
	default:
		return echo.ErrNotFound
	}
}

func (h *PageHandler) favicon(c echo.Context) error {
	hdr := c.Response().Header()

	data, err := os.ReadFile(h.faviconPath)
	if err != nil {
		h.logger.Debug("favicon unavailable, serving fallback", "path", h.faviconPath, "err", err)
		hdr.Set(echo.HeaderCacheControl, "public, max-age=3600")
		hdr.Set("X-Fallback", "true")
		return c.Blob(http.StatusOK, "image/svg+xml", []byte(fallbackFavicon))
	}

	hdr.Set(echo.HeaderCacheControl, "public, max-age=86400")
	hdr.Set("X-Static-File", "favicon.ico")
	return c.Blob(http.StatusOK, "image/x-icon", data)
}

func (h *PageHandler) robots(c echo.Context, o origin.Origin) error {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Allow: /\n")
	fmt.Fprintf(&b, "Sitemap: %s/sitemap.xml\n", o)
	fmt.Fprintf(&b, "# Current Origin: %s\n", o)
	fmt.Fprintf(&b, "# Generated: %s\n", h.now().UTC().Format(time.RFC3339))

	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=3600")
	return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, []byte(b.String()))
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

func (h *PageHandler) sitemap(c echo.Context, o origin.Origin) error {
	lastMod := h.now().UTC().Format(time.RFC3339)
	set := sitemapURLSet{
		Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs: []sitemapURL{
			{Loc: o.String() + "/", LastMod: lastMod, ChangeFreq: "daily", Priority: "1.0"},
		},
	}
	for _, name := range h.registry.Names() {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        o.String() + "/" + name + "/",
			LastMod:    lastMod,
			ChangeFreq: "weekly",
			Priority:   "0.8",
		})
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("render sitemap: %w", err)
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=3600")
	return c.Blob(http.StatusOK, echo.MIMEApplicationXML, append([]byte(xml.Header), out...))
}

// notFoundBody is the JSON returned for an unknown first path segment.
type notFoundBody struct {
	Error             string   `json:"error"`
	Message           string   `json:"message"`
	AvailableServices []string `json:"available_services"`
	CurrentOrigin     string   `json:"current_origin"`
	Pathname          string   `json:"pathname"`
	Suggestion        string   `json:"suggestion"`
}

// NotFound answers a request whose first path segment names no service.
func (h *PageHandler) NotFound(c echo.Context, route classify.Route, o origin.Origin) error {
	c.Response().Header().Set("X-Error-Type", "Service Not Found")
	return c.JSON(http.StatusNotFound, notFoundBody{
		Error:             "Not Found",
		Message:           fmt.Sprintf("Service %q not found", route.Segment),
		AvailableServices: h.registry.Names(),
		CurrentOrigin:     o.String(),
		Pathname:          route.Path,
		Suggestion:        fmt.Sprintf("Try %s/ for homepage or use one of the available services", o),
	})
}

// Preflight answers any OPTIONS request with permissive CORS headers.
func Preflight(c echo.Context) error {
	hdr := c.Response().Header()
	hdr.Set(echo.HeaderAccessControlAllowOrigin, service.AllowOrigin)
	hdr.Set(echo.HeaderAccessControlAllowMethods, service.AllowMethods)
	hdr.Set(echo.HeaderAccessControlAllowHeaders, service.AllowHeaders)
	hdr.Set(echo.HeaderAccessControlMaxAge, "86400")
	hdr.Set("X-CORS-Handler", "api-hub-proxy")
	return c.NoContent(http.StatusNoContent)
}
