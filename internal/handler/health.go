package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"api-hub-proxy/internal/origin"
	"api-hub-proxy/internal/registry"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	registry *registry.Registry
	resolver *origin.Resolver
	version  Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(reg *registry.Registry, resolver *origin.Resolver, v Version) *HealthHandler {
	return &HealthHandler{registry: reg, resolver: resolver, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statusBody struct {
	Status        string   `json:"status"`
	Version       string   `json:"version"`
	DefaultOrigin string   `json:"default_origin"`
	Services      []string `json:"services"`
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusBody{
		Status:        "ok",
		Version:       string(h.version),
		DefaultOrigin: h.resolver.Default().String(),
		Services:      h.registry.Names(),
	})
}
