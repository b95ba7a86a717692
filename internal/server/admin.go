// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/atrium-host/atrium/pkg/health"
)

func (s *Server) registerAdminRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Host health",
		Tags:        []string{"system"},
	}, s.handleHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-plugins",
		Method:      http.MethodGet,
		Path:        "/api/v1/plugins",
		Summary:     "List plugins",
		Tags:        []string{"plugins"},
	}, s.handleListPlugins)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-plugin",
		Method:      http.MethodGet,
		Path:        "/api/v1/plugins/{id}",
		Summary:     "Get plugin details",
		Tags:        []string{"plugins"},
	}, s.handleGetPlugin)

	huma.Register(s.api, huma.Operation{
		OperationID: "boot-report",
		Method:      http.MethodGet,
		Path:        "/api/v1/boot",
		Summary:     "Boot reconciliation report",
		Tags:        []string{"system"},
	}, s.handleBootReport)
}

// --- Request/Response types for huma ---

type healthOutput struct {
	Body health.Snapshot
}

// PluginSummary is one row of the plugin listing.
type PluginSummary struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Tier    string `json:"tier"`
	Status  string `json:"status"`
	Core    bool   `json:"core,omitempty"`
}

type listPluginsOutput struct {
	Body struct {
		Plugins []PluginSummary `json:"plugins"`
	}
}

type getPluginInput struct {
	ID string `path:"id"`
}

// PluginDetail is the full registry view of one plugin.
type PluginDetail struct {
	ID               string          `json:"id"`
	Package          string          `json:"package"`
	Version          string          `json:"version"`
	Tier             string          `json:"tier"`
	Status           string          `json:"status"`
	Core             bool            `json:"core,omitempty"`
	QuarantineReason string          `json:"quarantine_reason,omitempty"`
	Capabilities     []string        `json:"capabilities,omitempty"`
	Granted          []string        `json:"granted,omitempty"`
	CoreGrants       []string        `json:"core_grants,omitempty"`
	Features         map[string]bool `json:"features,omitempty"`
	AuthzNamespace   string          `json:"authz_namespace,omitempty"`
}

type getPluginOutput struct {
	Body PluginDetail
}

// QuarantineReport pairs a quarantined plugin with its reason.
type QuarantineReport struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BootReport is the serialized outcome of the boot reconciliation this
// process is serving from.
type BootReport struct {
	Success     bool               `json:"success"`
	Total       int                `json:"total"`
	Active      []string           `json:"active"`
	Quarantined []QuarantineReport `json:"quarantined"`
	Disabled    []string           `json:"disabled,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
}

type bootReportOutput struct {
	Body BootReport
}

// --- Handlers ---

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*healthOutput, error) {
	stats := s.rt.Registry.Stats()
	status := "ok"
	if s.rt.SafeMode {
		status = "degraded"
	}
	return &healthOutput{Body: health.Snapshot{
		Status:      status,
		SafeMode:    s.rt.SafeMode,
		Environment: string(s.rt.Environment),
		BootedAt:    s.rt.BootedAt,
		Plugins: health.Plugins{
			Total:       s.rt.BootResult.Total,
			Active:      stats.Active,
			Quarantined: stats.Quarantined,
			Disabled:    len(s.rt.BootResult.Disabled),
		},
	}}, nil
}

func (s *Server) handleListPlugins(_ context.Context, _ *struct{}) (*listPluginsOutput, error) {
	out := &listPluginsOutput{}
	out.Body.Plugins = []PluginSummary{}
	for _, id := range s.rt.Registry.IDs() {
		rec, ok := s.rt.Registry.Get(id)
		if !ok {
			continue
		}
		out.Body.Plugins = append(out.Body.Plugins, PluginSummary{
			ID:      rec.Manifest.ID,
			Version: rec.Manifest.Version,
			Tier:    string(rec.Manifest.Tier),
			Status:  string(rec.Status),
			Core:    rec.Manifest.Core,
		})
	}
	return out, nil
}

func (s *Server) handleGetPlugin(_ context.Context, input *getPluginInput) (*getPluginOutput, error) {
	rec, ok := s.rt.Registry.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("plugin %q not found", input.ID))
	}
	m := rec.Manifest
	return &getPluginOutput{Body: PluginDetail{
		ID:               m.ID,
		Package:          m.Package,
		Version:          m.Version,
		Tier:             string(m.Tier),
		Status:           string(rec.Status),
		Core:             m.Core,
		QuarantineReason: rec.QuarantineReason,
		Capabilities:     m.Capabilities,
		Granted:          rec.Granted,
		CoreGrants:       rec.CoreGrants,
		Features:         m.Features,
		AuthzNamespace:   m.AuthzNamespace,
	}}, nil
}

func (s *Server) handleBootReport(_ context.Context, _ *struct{}) (*bootReportOutput, error) {
	res := s.rt.BootResult
	report := BootReport{
		Success:     res.Success,
		Total:       res.Total,
		Active:      res.Active,
		Quarantined: []QuarantineReport{},
		Disabled:    res.Disabled,
		Warnings:    res.Warnings,
	}
	if report.Active == nil {
		report.Active = []string{}
	}
	for _, q := range res.Quarantined {
		report.Quarantined = append(report.Quarantined, QuarantineReport{ID: q.ID, Reason: q.Reason})
	}
	return &bootReportOutput{Body: report}, nil
}
