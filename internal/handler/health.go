package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"shapes-debugger/internal/model"
	"shapes-debugger/internal/resolver"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves the debugger's own control endpoints.
type HealthHandler struct {
	upstream *resolver.Upstream
	version  Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(up *resolver.Upstream, v Version) *HealthHandler {
	return &HealthHandler{upstream: up, version: v}
}

type statusResponse struct {
	Status      string              `json:"status"`
	Version     string              `json:"version"`
	UpstreamURL string              `json:"upstream_url"`
	Label       model.Label         `json:"label"`
	Fallback    bool                `json:"fallback"`
	Probes      []model.ProbeResult `json:"probes"`
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports which upstream was selected at startup and why.
func (h *HealthHandler) Status(c echo.Context) error {
	resp := statusResponse{
		Status:  "ok",
		Version: string(h.version),
		Probes:  []model.ProbeResult{},
	}
	if h.upstream != nil {
		resp.UpstreamURL = h.upstream.Candidate.URL
		resp.Label = h.upstream.Candidate.Label
		resp.Fallback = h.upstream.Fallback
		if h.upstream.Results != nil {
			resp.Probes = h.upstream.Results
		}
	}
	return c.JSON(http.StatusOK, resp)
}
