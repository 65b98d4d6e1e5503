// Package registry holds the static table of proxied upstream services.
package registry

import (
	"fmt"
	"strings"

	"api-hub-proxy/internal/config"
)

// Service is one proxy target, keyed by the first path segment of inbound requests.
type Service struct {
	Name        string
	Host        string
	Paths       []string
	Description string
	Icon        string
}

// Defaults is the built-in service table used when the config declares no services.
var Defaults = []Service{
	{Name: "openai", Host: "api.openai.com", Paths: []string{"/v1/"}, Description: "OpenAI API proxy", Icon: "🤖"},
	{Name: "gemini", Host: "generativelanguage.googleapis.com", Paths: []string{"/v1beta/models/"}, Description: "Google Gemini API proxy", Icon: "🌟"},
	{Name: "claude", Host: "api.anthropic.com", Paths: []string{"/v1/"}, Description: "Claude API proxy", Icon: "🧠"},
	{Name: "grok", Host: "api.x.ai", Paths: []string{"/v1/"}, Description: "Grok API proxy", Icon: "⚡"},
	{Name: "github", Host: "github.com", Paths: []string{"/"}, Description: "GitHub proxy", Icon: "📦"},
	{Name: "telegram", Host: "api.telegram.org", Paths: []string{"/bot"}, Description: "Telegram Bot API proxy", Icon: "📱"},
}

// Registry is an immutable, ordered set of services. Safe for concurrent reads.
type Registry struct {
	ordered []Service
	byName  map[string]Service
}

// New builds a Registry from services, preserving their order.
// Names must be non-empty and unique.
func New(services []Service) (*Registry, error) {
	r := &Registry{
		ordered: make([]Service, 0, len(services)),
		byName:  make(map[string]Service, len(services)),
	}
	for _, s := range services {
		if s.Name == "" {
			return nil, fmt.Errorf("registry: service with host %q has no name", s.Host)
		}
		if s.Host == "" {
			return nil, fmt.Errorf("registry: service %q has no host", s.Name)
		}
		if _, dup := r.byName[s.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate service name %q", s.Name)
		}
		s.Paths = append([]string(nil), s.Paths...)
		r.ordered = append(r.ordered, s)
		r.byName[s.Name] = s
	}
	return r, nil
}

// FromConfig builds the Registry from the [[services]] table, falling back to Defaults.
func FromConfig(cfg *config.Config) (*Registry, error) {
	if len(cfg.Services) == 0 {
		return New(Defaults)
	}
	services := make([]Service, 0, len(cfg.Services))
	for _, sc := range cfg.Services {
		services = append(services, Service{
			Name:        sc.Name,
			Host:        strings.TrimSuffix(sc.Host, "/"),
			Paths:       sc.Paths,
			Description: sc.Description,
			Icon:        sc.Icon,
		})
	}
	return New(services)
}

// Lookup returns the service registered under name.
func (r *Registry) Lookup(name string) (Service, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Names returns service names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	for i, s := range r.ordered {
		names[i] = s.Name
	}
	return names
}

// All returns a copy of the services in registration order.
func (r *Registry) All() []Service {
	return append([]Service(nil), r.ordered...)
}
