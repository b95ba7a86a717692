// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/atrium-host/atrium/internal/boot"
	"github.com/atrium-host/atrium/internal/facade"
	"github.com/atrium-host/atrium/internal/hook"
	"github.com/atrium-host/atrium/internal/plugin"
	"github.com/atrium-host/atrium/internal/resource"
	"github.com/atrium-host/atrium/internal/security"
	"github.com/atrium-host/atrium/internal/server"
	"github.com/atrium-host/atrium/internal/store"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
	"github.com/atrium-host/atrium/pkg/types"
)

// testHost bundles a server with the runtime registries its tests seed.
type testHost struct {
	srv      *server.Server
	registry *plugin.Registry
	enforcer *security.Enforcer
	gateway  *store.MemoryGateway
	arena    *facade.Arena
}

func newTestHost(t *testing.T, opts ...func(*server.Runtime)) *testHost {
	t.Helper()

	gw := store.NewMemoryGateway()
	registry := plugin.NewRegistry()
	enforcer := security.NewEnforcer(gw.AuditLog())
	arena := facade.NewArena()
	factory := facade.NewFactory(arena, hook.NewRegistry(), resource.NewRegistry(), gw.AuditLog())

	rt := server.Runtime{
		Registry:      registry,
		Gateway:       gw,
		Enforcer:      enforcer,
		Facades:       factory,
		Arena:         arena,
		Authenticator: server.HeaderAuthenticator{},
		BootResult:    &boot.Result{Success: true},
		Environment:   types.EnvTest,
		BootedAt:      time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&rt)
	}

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, rt)
	require.NoError(t, err)

	return &testHost{
		srv:      srv,
		registry: registry,
		enforcer: enforcer,
		gateway:  gw,
		arena:    arena,
	}
}

// activate registers, grants, and activates a plugin the way boot would.
func (h *testHost) activate(t *testing.T, m *plugin.Manifest, granted ...string) {
	t.Helper()
	require.NoError(t, h.registry.Register(m))
	require.NoError(t, h.registry.SetGrants(m.ID, granted, security.CoreGrants(granted)))
	require.NoError(t, h.registry.Activate(m.ID))
	h.enforcer.RegisterPlugin(m.ID, security.NewCapabilitySet(granted...), security.NewCapabilitySet())
}

func crmManifest() *plugin.Manifest {
	return &plugin.Manifest{
		ID:      "crm",
		Package: "github.com/example/atrium-crm",
		Version: "1.0.0",
		Tier:    pkgplugin.TierB,
		Capabilities: []string{
			security.CapRoutesRegister,
			security.CapUsersRead,
			security.CapPermissionsManage,
		},
		Features: map[string]bool{
			"export":      true,
			"beta-search": false,
		},
	}
}

func crmGrants() []string {
	return []string{security.CapRoutesRegister, security.CapUsersRead, security.CapPermissionsManage}
}

// asMember sets the identity headers for a regular user of tenant-1.
func asMember(req *http.Request) {
	req.Header.Set("X-Atrium-User", "user-1")
	req.Header.Set("X-Atrium-Tenant", "tenant-1")
}

func asAdmin(req *http.Request) {
	req.Header.Set("X-Atrium-User", "admin-1")
	req.Header.Set("X-Atrium-Tenant", "tenant-1")
	req.Header.Set("X-Atrium-Role", "admin")
}

func TestServer_New_EmptyListenAddr(t *testing.T) {
	_, err := server.New(server.Config{}, server.Runtime{})
	require.Error(t, err)
	assert.True(t, atriumerr.HasCode(err, atriumerr.CodeServerConfigInvalid),
		"expected CodeServerConfigInvalid, got %s", atriumerr.CodeOf(err))
	assert.Contains(t, err.Error(), "listen address is required")
}

func TestServer_New_MissingRuntimeDeps(t *testing.T) {
	_, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, server.Runtime{})
	require.Error(t, err)
	assert.True(t, atriumerr.HasCode(err, atriumerr.CodeServerConfigInvalid))
	assert.Contains(t, err.Error(), "plugin registry is required")
}

func TestServer_HealthEndpoint(t *testing.T) {
	h := newTestHost(t, func(rt *server.Runtime) {
		rt.BootResult = &boot.Result{Success: true, Total: 2, Active: []string{"shell", "crm"}}
	})
	h.activate(t, crmManifest(), crmGrants()...)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"status":"ok"`)
	assert.Contains(t, body, `"safe_mode":false`)
	assert.Contains(t, body, `"total":2`)
	assert.Contains(t, body, `"active":1`)
}

func TestServer_HealthEndpoint_SafeMode(t *testing.T) {
	h := newTestHost(t, func(rt *server.Runtime) {
		rt.SafeMode = true
		rt.BootResult = &boot.Result{Success: true, Total: 3, Disabled: []string{"links", "crm"}}
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"status":"degraded"`)
	assert.Contains(t, body, `"safe_mode":true`)
	assert.Contains(t, body, `"disabled":2`)
}

func TestServer_OpenAPISpec(t *testing.T) {
	h := newTestHost(t)

	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi")
}

func TestServer_CORSHeaders(t *testing.T) {
	h := newTestHost(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/plugins", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_GracefulShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestHost(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.srv.Start(ctx)
	}()

	// Wait for context cancellation to trigger shutdown.
	<-ctx.Done()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down within timeout")
	}
}
