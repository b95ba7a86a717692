// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrium-host/atrium/internal/boot"
	"github.com/atrium-host/atrium/internal/plugin"
	"github.com/atrium-host/atrium/internal/server"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
)

func TestAdmin_ListPlugins(t *testing.T) {
	h := newTestHost(t)
	h.activate(t, crmManifest(), crmGrants()...)

	quarantined := &plugin.Manifest{
		ID:      "links",
		Package: "github.com/example/atrium-links",
		Version: "0.1.0",
		Tier:    pkgplugin.TierC,
	}
	require.NoError(t, h.registry.Register(quarantined))
	require.NoError(t, h.registry.Quarantine("links", "hook declarations invalid"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins", nil)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Plugins []server.PluginSummary `json:"plugins"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Plugins, 2)
	assert.Equal(t, "crm", body.Plugins[0].ID)
	assert.Equal(t, "active", body.Plugins[0].Status)
	assert.Equal(t, "b", body.Plugins[0].Tier)
	assert.Equal(t, "links", body.Plugins[1].ID)
	assert.Equal(t, "quarantined", body.Plugins[1].Status)
}

func TestAdmin_GetPlugin(t *testing.T) {
	h := newTestHost(t)
	h.activate(t, crmManifest(), crmGrants()...)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins/crm", nil)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var detail server.PluginDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "crm", detail.ID)
	assert.Equal(t, "github.com/example/atrium-crm", detail.Package)
	assert.Equal(t, "active", detail.Status)
	assert.ElementsMatch(t, crmGrants(), detail.Granted)
	assert.True(t, detail.Features["export"])
	assert.False(t, detail.Features["beta-search"])
}

func TestAdmin_GetPlugin_NotFound(t *testing.T) {
	h := newTestHost(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins/ghost", nil)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not found")
}

func TestAdmin_BootReport(t *testing.T) {
	h := newTestHost(t, func(rt *server.Runtime) {
		rt.BootResult = &boot.Result{
			Success: true,
			Total:   4,
			Active:  []string{"shell", "crm"},
			Quarantined: []boot.QuarantinedPlugin{
				{ID: "links", Reason: "hook declarations invalid"},
			},
			Disabled: []string{"analytics"},
			Warnings: []string{"safe mode active: 1 plugin(s) disabled"},
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/boot", nil)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var report server.BootReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.Success)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, []string{"shell", "crm"}, report.Active)
	require.Len(t, report.Quarantined, 1)
	assert.Equal(t, "links", report.Quarantined[0].ID)
	assert.Equal(t, []string{"analytics"}, report.Disabled)
	assert.Len(t, report.Warnings, 1)
}
