// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package facade_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atrium-host/atrium/internal/facade"
	"github.com/atrium-host/atrium/internal/hook"
	"github.com/atrium-host/atrium/internal/plugin"
	"github.com/atrium-host/atrium/internal/resource"
	"github.com/atrium-host/atrium/internal/security"
	"github.com/atrium-host/atrium/internal/store"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
)

// fixture wires a facade factory against in-memory registries and storage.
// Tenant-a holds u1 (admin) and u2 (user); u3 lives in tenant-b only.
type fixture struct {
	arena     *facade.Arena
	hooks     *hook.Registry
	resources *resource.Registry
	gateway   *store.MemoryGateway
	factory   *facade.Factory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gw := store.NewMemoryGateway()
	gw.SeedUser("tenant-a", &store.User{ID: "u1", Name: "Ada Lovelace", Email: "ada@example.com", Role: "admin"})
	gw.SeedUser("tenant-a", &store.User{ID: "u2", Name: "Grace Hopper", Email: "grace@example.com", Role: "user"})
	gw.SeedUser("tenant-b", &store.User{ID: "u3", Name: "Ada Byron", Email: "byron@example.com", Role: "admin"})

	fx := &fixture{
		arena:     facade.NewArena(),
		hooks:     hook.NewRegistry(),
		resources: resource.NewRegistry(),
		gateway:   gw,
	}
	fx.factory = facade.NewFactory(fx.arena, fx.hooks, fx.resources, gw.AuditLog())
	return fx
}

func crmManifest() *plugin.Manifest {
	return &plugin.Manifest{
		ID:      "crm",
		Package: "github.com/example/atrium-crm",
		Version: "1.2.0",
		Tier:    pkgplugin.TierB,
		Capabilities: []string{
			security.CapUsersRead,
			security.CapResourcesRead,
			security.CapPermissionsManage,
			security.CapNotificationsSend,
			security.CapHooksDefine,
		},
		Features:       map[string]bool{"exports": true},
		DefinedHooks:   []string{"crm:contact.created"},
		DefinedFilters: []string{"crm:contact.display"},
	}
}

func allGrants() security.CapabilitySet {
	return security.NewCapabilitySet(
		security.CapUsersRead,
		security.CapResourcesRead,
		security.CapPermissionsManage,
		security.CapNotificationsSend,
		security.CapHooksDefine,
	)
}

func fullRouteInfo() *facade.RouteInfo {
	return &facade.RouteInfo{
		PluginID:      "crm",
		Manifest:      crmManifest(),
		Deployment:    allGrants(),
		RequestGrants: allGrants(),
	}
}

// request opens a tenant session, acquires an arena slot, and returns a ctx
// carrying the scope and route info, the way the route middleware does.
func (fx *fixture) request(t *testing.T, tenantID, userID string, role pkgplugin.Role, info *facade.RouteInfo) (context.Context, *facade.Scope) {
	t.Helper()

	session, err := fx.gateway.TenantSession(context.Background(), tenantID)
	require.NoError(t, err)

	scope := fx.arena.Acquire(tenantID, userID, role, session)
	t.Cleanup(func() {
		fx.arena.Release(scope)
		_ = session.Close()
	})

	ctx := facade.ContextWithScope(context.Background(), scope)
	return facade.ContextWithRouteInfo(ctx, info), scope
}

// facades builds the full facade set for a fresh tenant-a admin request.
func (fx *fixture) facades(t *testing.T) (context.Context, *facade.Scope, *facade.Set) {
	t.Helper()

	ctx, scope := fx.request(t, "tenant-a", "u1", pkgplugin.RoleAdmin, fullRouteInfo())
	set, err := fx.factory.ForRequest(ctx)
	require.NoError(t, err)
	return ctx, scope, set
}
