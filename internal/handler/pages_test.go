package handler

import (
	"encoding/json"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"api-hub-proxy/internal/config"
	"api-hub-proxy/internal/origin"
	"api-hub-proxy/internal/registry"
)

var testOrigin = origin.Origin{Scheme: "https", Host: "public.example"}

func newTestPages(t *testing.T, faviconPath string) *PageHandler {
	t.Helper()
	reg, err := registry.New(registry.Defaults)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Static: config.StaticConfig{FaviconPath: faviconPath}}
	h := NewPageHandler(cfg, reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func newPageContext(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHomepage(t *testing.T) {
	h := newTestPages(t, "")
	c, rec := newPageContext(http.MethodGet, "/")

	if err := h.Homepage(c, testOrigin); err != nil {
		t.Fatalf("Homepage() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != echo.MIMETextHTMLCharsetUTF8 {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get(echo.HeaderCacheControl); cc != "public, max-age=300" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if got := rec.Header().Get("X-Current-Origin"); got != "https://public.example" {
		t.Errorf("X-Current-Origin = %q", got)
	}

	body := rec.Body.String()
	for _, svc := range registry.Defaults {
		want := "https://public.example/" + svc.Name + "/"
		if !strings.Contains(body, want) {
			t.Errorf("homepage missing endpoint %q", want)
		}
	}
	if !strings.Contains(body, "https://public.example/gemini/v1beta/models/") {
		t.Error("homepage missing gemini example path")
	}
}

func TestHomepage_EscapesOrigin(t *testing.T) {
	h := newTestPages(t, "")
	c, rec := newPageContext(http.MethodGet, "/")

	evil := origin.Origin{Scheme: "https", Host: `x"><script>alert(1)</script>`}
	if err := h.Homepage(c, evil); err != nil {
		t.Fatalf("Homepage() error = %v", err)
	}
	if strings.Contains(rec.Body.String(), "<script>alert(1)</script>") {
		t.Error("origin rendered without escaping")
	}
}

func TestHomepage_Methods(t *testing.T) {
	h := newTestPages(t, "")

	tests := []struct {
		method     string
		wantStatus int
	}{
		{http.MethodGet, http.StatusOK},
		{http.MethodHead, http.StatusOK},
		{http.MethodPost, http.StatusMethodNotAllowed},
		{http.MethodDelete, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			c, rec := newPageContext(tt.method, "/")
			if err := h.Homepage(c, testOrigin); err != nil {
				t.Fatalf("Homepage() error = %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusMethodNotAllowed && rec.Header().Get(echo.HeaderAllow) != "GET, HEAD" {
				t.Errorf("Allow = %q", rec.Header().Get(echo.HeaderAllow))
			}
		})
	}
}

func TestStatic_Favicon(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "favicon.ico")
		if err := os.WriteFile(path, []byte("ICO"), 0o644); err != nil {
			t.Fatal(err)
		}
		h := newTestPages(t, path)
		c, rec := newPageContext(http.MethodGet, "/favicon.ico")

		if err := h.Static(c, "/favicon.ico", testOrigin); err != nil {
			t.Fatalf("Static() error = %v", err)
		}
		if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/x-icon" {
			t.Errorf("Content-Type = %q", ct)
		}
		if cc := rec.Header().Get(echo.HeaderCacheControl); cc != "public, max-age=86400" {
			t.Errorf("Cache-Control = %q", cc)
		}
		if rec.Body.String() != "ICO" {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	t.Run("fallback", func(t *testing.T) {
		h := newTestPages(t, filepath.Join(t.TempDir(), "missing.ico"))
		c, rec := newPageContext(http.MethodGet, "/favicon.ico")

		if err := h.Static(c, "/favicon.ico", testOrigin); err != nil {
			t.Fatalf("Static() error = %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/svg+xml" {
			t.Errorf("Content-Type = %q", ct)
		}
		if rec.Header().Get("X-Fallback") != "true" {
			t.Error("X-Fallback header missing")
		}
		if !strings.HasPrefix(rec.Body.String(), "<svg") {
			t.Errorf("body = %q", rec.Body.String())
		}
	})
}

func TestStatic_Robots(t *testing.T) {
	h := newTestPages(t, "")
	c, rec := newPageContext(http.MethodGet, "/robots.txt")

	if err := h.Static(c, "/robots.txt", testOrigin); err != nil {
		t.Fatalf("Static() error = %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"User-agent: *", "Allow: /", "Sitemap: https://public.example/sitemap.xml"} {
		if !strings.Contains(body, want) {
			t.Errorf("robots.txt missing %q:\n%s", want, body)
		}
	}
}

func TestStatic_Sitemap(t *testing.T) {
	h := newTestPages(t, "")
	c, rec := newPageContext(http.MethodGet, "/sitemap.xml")

	if err := h.Static(c, "/sitemap.xml", testOrigin); err != nil {
		t.Fatalf("Static() error = %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, echo.MIMEApplicationXML) {
		t.Errorf("Content-Type = %q", ct)
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(rec.Body.Bytes(), &set); err != nil {
		t.Fatalf("unmarshal sitemap: %v", err)
	}
	if len(set.URLs) != len(registry.Defaults)+1 {
		t.Fatalf("got %d urls, want %d", len(set.URLs), len(registry.Defaults)+1)
	}
	if set.URLs[0].Loc != "https://public.example/" || set.URLs[0].Priority != "1.0" {
		t.Errorf("root entry = %+v", set.URLs[0])
	}
	if set.URLs[1].Loc != "https://public.example/openai/" || set.URLs[1].ChangeFreq != "weekly" {
		t.Errorf("first service entry = %+v", set.URLs[1])
	}
	if set.URLs[0].LastMod != "2024-05-01T12:00:00Z" {
		t.Errorf("lastmod = %q", set.URLs[0].LastMod)
	}
}

func TestStatic_UnknownPath(t *testing.T) {
	h := newTestPages(t, "")
	c, _ := newPageContext(http.MethodGet, "/other.txt")
	if err := h.Static(c, "/other.txt", testOrigin); err != echo.ErrNotFound {
		t.Errorf("Static() error = %v, want echo.ErrNotFound", err)
	}
}

func TestPreflight(t *testing.T) {
	c, rec := newPageContext(http.MethodOptions, "/anything")
	if err := Preflight(c); err != nil {
		t.Fatalf("Preflight() error = %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Headers") != "*" {
		t.Errorf("Allow-Headers = %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestNotFound_Body(t *testing.T) {
	h := newTestPages(t, "")
	c, rec := newPageContext(http.MethodGet, "/nope")
	route := newTestRoute(t, "/nope")

	if err := h.NotFound(c, route, testOrigin); err != nil {
		t.Fatalf("NotFound() error = %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"error", "message", "available_services", "current_origin", "pathname", "suggestion"} {
		if _, ok := body[key]; !ok {
			t.Errorf("404 body missing %q", key)
		}
	}
}
