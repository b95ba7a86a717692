// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

// Package shell is the first-party main-app plugin. It is compiled into
// the host rather than discovered: start-up installs its manifest and
// module into the loader before boot reconciliation runs. The shell
// supplies the application design every other plugin extends and the
// built-in resource providers.
package shell

import (
	"context"

	"github.com/atrium-host/atrium/internal/plugin"
	"github.com/atrium-host/atrium/internal/resource"
	"github.com/atrium-host/atrium/internal/security"
	"github.com/atrium-host/atrium/internal/store"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
)

// ID is the shell's plugin id.
const ID = "shell"

// HandlerCollectResources names the module handler bound to the resource
// collection hook.
const HandlerCollectResources = "collect-resources"

// ResourceTypeUser is the built-in resource type resolving tenant members.
const ResourceTypeUser = "user"

// Manifest returns the shell's plugin manifest. Exactly one main-app
// manifest must be present per deployment; this is it.
func Manifest() *plugin.Manifest {
	return &plugin.Manifest{
		ID:      ID,
		Package: "github.com/atrium-host/atrium/internal/shell",
		Version: "1.0.0",
		Tier:    pkgplugin.TierMainApp,
		Core:    true,
		Capabilities: []string{
			security.CapUsersRead,
			security.CapResourcesRead,
			security.CapDesignOverride,
		},
		Hooks: []plugin.HookBinding{
			{Hook: resource.HookCollectProviders, Handler: HandlerCollectResources},
		},
	}
}

// Module returns the shell's module export: the application design and
// the collection handler contributing built-in providers.
func Module() *pkgplugin.Module {
	return &pkgplugin.Module{
		Design: Design(),
		Handlers: map[string]pkgplugin.Handler{
			HandlerCollectResources: pkgplugin.ActionFunc(collectResources),
		},
	}
}

// Design returns the shell's application design: identity, theme tokens,
// and the baseline navigation tree.
func Design() *pkgplugin.AppDesign {
	return &pkgplugin.AppDesign{
		ShellName: "atrium-shell",
		Version:   "1.0.0",
		Theme: map[string]string{
			"color.primary": "#2563eb",
			"color.surface": "#ffffff",
			"color.text":    "#111827",
			"font.family":   "Inter, system-ui, sans-serif",
		},
		Nav: []pkgplugin.NavSection{
			{
				ID:    "dashboard",
				Label: "Dashboard",
				Items: []pkgplugin.NavItem{
					{ID: "shell.home", Label: "Home", Path: "/", Icon: "home"},
					{ID: "shell.notifications", Label: "Notifications", Path: "/notifications", Icon: "bell"},
				},
			},
			{
				ID:    "settings",
				Label: "Settings",
				Items: []pkgplugin.NavItem{
					{ID: "shell.settings.profile", Label: "Profile", Path: "/settings/profile", Icon: "user"},
					{
						ID: "shell.settings.tenant", Label: "Organization", Path: "/settings/tenant", Icon: "building",
						Roles: []pkgplugin.Role{pkgplugin.RoleAdmin},
					},
				},
			},
			{
				ID:    "admin",
				Label: "Administration",
				Items: []pkgplugin.NavItem{
					{
						ID: "shell.admin.plugins", Label: "Plugins", Path: "/admin/plugins", Icon: "puzzle",
						Roles: []pkgplugin.Role{pkgplugin.RoleAdmin},
					},
					{
						ID: "shell.admin.audit", Label: "Audit Log", Path: "/admin/audit", Icon: "scroll",
						Roles:       []pkgplugin.Role{pkgplugin.RoleAdmin},
						Entitlement: "audit-export",
					},
				},
			},
		},
		MandatoryItemIDs: []string{"shell.home", "shell.settings.profile"},
	}
}

// collectResources contributes the built-in providers during the boot
// collection phase. The dispatching hook passes the host's resource
// registry as the first argument.
func collectResources(_ context.Context, args ...any) error {
	if len(args) == 0 {
		return atriumerr.New(atriumerr.CodeResourceProviderInvalid,
			"collect-resources dispatched without a registry argument")
	}
	reg, ok := args[0].(*resource.Registry)
	if !ok {
		return atriumerr.Errorf(atriumerr.CodeResourceProviderInvalid,
			"collect-resources dispatched with %T, want *resource.Registry", args[0])
	}
	return reg.RegisterProvider(ResourceTypeUser, ID, userProvider)
}

// userProvider resolves a user resource id to the tenant member record
// through the request's session.
func userProvider(ctx context.Context, session store.TenantSession, id string) (any, error) {
	if session == nil {
		return nil, atriumerr.New(atriumerr.CodeResourceResolveFailure,
			"user resource requires a tenant session")
	}
	return session.Users().FindByID(ctx, id)
}
