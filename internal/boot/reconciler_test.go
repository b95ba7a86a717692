// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package boot_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrium-host/atrium/internal/authz"
	"github.com/atrium-host/atrium/internal/boot"
	"github.com/atrium-host/atrium/internal/hook"
	"github.com/atrium-host/atrium/internal/nav"
	"github.com/atrium-host/atrium/internal/plugin"
	"github.com/atrium-host/atrium/internal/resource"
	"github.com/atrium-host/atrium/internal/security"
	"github.com/atrium-host/atrium/internal/store"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
	"github.com/atrium-host/atrium/pkg/types"
)

type fixture struct {
	registry  *plugin.Registry
	loader    *plugin.Loader
	hooks     *hook.Registry
	resources *resource.Registry
	authz     *authz.Registry
	enforcer  *security.Enforcer
	gateway   *store.MemoryGateway

	rec *boot.Reconciler
}

func newFixture() *fixture {
	gw := store.NewMemoryGateway()
	return &fixture{
		registry:  plugin.NewRegistry(),
		loader:    plugin.NewLoader(),
		hooks:     hook.NewRegistry(),
		resources: resource.NewRegistry(),
		authz:     authz.NewRegistry(),
		enforcer:  security.NewEnforcer(gw.AuditLog()),
		gateway:   gw,
	}
}

func (fx *fixture) services() boot.Services {
	return boot.Services{
		Registry:  fx.registry,
		Loader:    fx.loader,
		Hooks:     fx.hooks,
		Resources: fx.resources,
		Authz:     fx.authz,
		Enforcer:  fx.enforcer,
		Gateway:   fx.gateway,
	}
}

func (fx *fixture) reconcile(t *testing.T, opts boot.Options, manifests ...*plugin.Manifest) (*boot.Result, error) {
	t.Helper()
	rec, err := boot.New(fx.services(), opts)
	require.NoError(t, err)
	fx.rec = rec
	return rec.Reconcile(context.Background(), manifests)
}

func (fx *fixture) install(t *testing.T, m *plugin.Manifest, mod *pkgplugin.Module) *plugin.Manifest {
	t.Helper()
	require.NoError(t, fx.loader.Register(m.ID, mod))
	return m
}

func (fx *fixture) installShell(t *testing.T) *plugin.Manifest {
	t.Helper()
	return fx.install(t, shellManifest(), &pkgplugin.Module{Design: shellDesign()})
}

func devOptions() boot.Options {
	return boot.Options{
		Environment: types.EnvDevelopment,
		MatrixLimit: 512,
		Deployment:  fullDeployment(),
	}
}

func fullDeployment() security.Deployment {
	return security.Deployment{
		UserDirectory:         true,
		ResourceProviders:     true,
		PermissionsService:    true,
		NotificationTransport: true,
		HookDispatch:          true,
	}
}

func shellManifest() *plugin.Manifest {
	return &plugin.Manifest{
		ID:           "shell",
		Package:      "github.com/example/atrium-shell",
		Version:      "1.0.0",
		Tier:         pkgplugin.TierMainApp,
		Core:         true,
		Capabilities: []string{security.CapUsersRead, security.CapDesignOverride},
	}
}

func shellDesign() *pkgplugin.AppDesign {
	return &pkgplugin.AppDesign{
		ShellName: "atrium-shell",
		Version:   "1.0.0",
		Theme: map[string]string{
			"color.primary": "#2563eb",
			"color.surface": "#ffffff",
			"color.text":    "#111827",
			"font.family":   "Inter, sans-serif",
		},
		Nav: []pkgplugin.NavSection{
			{
				ID:    "main",
				Label: "Main",
				Items: []pkgplugin.NavItem{
					{ID: "shell.home", Label: "Home", Path: "/"},
					{ID: "shell.settings", Label: "Settings", Path: "/settings",
						Roles: []pkgplugin.Role{pkgplugin.RoleAdmin}},
				},
			},
		},
		MandatoryItemIDs: []string{"shell.home"},
	}
}

func tierBManifest(id string) *plugin.Manifest {
	return &plugin.Manifest{
		ID:           id,
		Package:      "github.com/example/atrium-" + id,
		Version:      "1.0.0",
		Tier:         pkgplugin.TierB,
		Capabilities: []string{security.CapUsersRead},
	}
}

func tierCManifest(id string) *plugin.Manifest {
	return &plugin.Manifest{
		ID:           id,
		Package:      "github.com/example/atrium-" + id,
		Version:      "1.0.0",
		Tier:         pkgplugin.TierC,
		Capabilities: []string{security.CapUsersRead},
	}
}

func hasWarning(res *boot.Result, substr string) bool {
	for _, w := range res.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestNew_RequiresServices(t *testing.T) {
	fx := newFixture()
	svc := fx.services()
	svc.Registry = nil

	_, err := boot.New(svc, devOptions())
	require.Error(t, err)
	assert.True(t, atriumerr.HasCode(err, atriumerr.CodeServerConfigInvalid))
}

func TestReconcile_HappyPath(t *testing.T) {
	fx := newFixture()
	shell := fx.installShell(t)

	var collected bool
	crm := tierBManifest("crm")
	crm.Capabilities = []string{security.CapUsersRead, security.CapHooksDefine}
	crm.DefinedHooks = []string{"crm:contact.created"}
	crm.Hooks = []plugin.HookBinding{{Hook: resource.HookCollectProviders, Handler: "collect", Priority: 10}}
	fx.install(t, crm, &pkgplugin.Module{
		Handlers: map[string]pkgplugin.Handler{
			"collect": pkgplugin.ActionFunc(func(_ context.Context, args ...any) error {
				reg, ok := args[0].(*resource.Registry)
				if !ok {
					return assert.AnError
				}
				collected = true
				return reg.RegisterProvider("contact", "crm",
					func(_ context.Context, _ store.TenantSession, id string) (any, error) {
						return map[string]string{"id": id}, nil
					})
			}),
		},
	})

	res, err := fx.reconcile(t, devOptions(), shell, crm)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []string{"shell", "crm"}, res.Active)
	assert.Empty(t, res.Quarantined)
	assert.Empty(t, res.Disabled)
	assert.True(t, collected)

	require.NotNil(t, fx.rec.Design())
	assert.Equal(t, "atrium-shell", fx.rec.Design().ShellName)

	owner, ok := fx.resources.Owner("contact")
	require.True(t, ok)
	assert.Equal(t, "crm", owner)

	shellRec, ok := fx.registry.Get("shell")
	require.True(t, ok)
	assert.Equal(t, plugin.StatusActive, shellRec.Status)
}

func TestReconcile_MainAppCardinality(t *testing.T) {
	t.Run("zero in production is fatal", func(t *testing.T) {
		fx := newFixture()
		opts := devOptions()
		opts.Environment = types.EnvProduction

		_, err := fx.reconcile(t, opts, tierBManifest("crm"))
		require.Error(t, err)
		assert.True(t, atriumerr.HasCode(err, atriumerr.CodeBootCardinalityInvalid))
	})

	t.Run("zero outside production falls back", func(t *testing.T) {
		fx := newFixture()

		res, err := fx.reconcile(t, devOptions(), tierBManifest("crm"))
		require.NoError(t, err)

		assert.True(t, res.Success)
		assert.Equal(t, 1, res.Total)
		assert.Equal(t, []string{"crm"}, res.Active)
		assert.True(t, hasWarning(res, "fallback design"))
		assert.Equal(t, "atrium-fallback", fx.rec.Design().ShellName)
	})

	t.Run("two is fatal in every environment", func(t *testing.T) {
		for _, env := range []types.Environment{types.EnvProduction, types.EnvDevelopment} {
			fx := newFixture()
			second := shellManifest()
			second.ID = "shell-two"
			opts := devOptions()
			opts.Environment = env

			_, err := fx.reconcile(t, opts, shellManifest(), second)
			require.Error(t, err, "environment %s", env)
			assert.True(t, atriumerr.HasCode(err, atriumerr.CodeBootCardinalityInvalid))
		}
	})
}

func TestReconcile_DuplicateIDKeepsFirst(t *testing.T) {
	fx := newFixture()
	shell := fx.installShell(t)

	first := tierBManifest("crm")
	second := tierBManifest("crm")
	second.Version = "2.0.0"

	res, err := fx.reconcile(t, devOptions(), shell, first, second)
	require.NoError(t, err)

	assert.Equal(t, []string{"shell", "crm"}, res.Active)
	require.Len(t, res.Quarantined, 1)
	assert.Equal(t, "crm", res.Quarantined[0].ID)
	assert.Contains(t, res.Quarantined[0].Reason, "already registered")

	rec, ok := fx.registry.Get("crm")
	require.True(t, ok)
	assert.Equal(t, plugin.StatusActive, rec.Status)
	assert.Equal(t, "1.0.0", rec.Manifest.Version)
}

func TestReconcile_InvalidManifestQuarantined(t *testing.T) {
	fx := newFixture()
	shell := fx.installShell(t)

	bad := tierBManifest("billing")
	bad.Version = "not-semver"

	res, err := fx.reconcile(t, devOptions(), shell, bad, tierBManifest("crm"))
	require.NoError(t, err)

	assert.Equal(t, []string{"shell", "crm"}, res.Active)
	require.Len(t, res.Quarantined, 1)
	assert.Equal(t, "billing", res.Quarantined[0].ID)
	assert.Contains(t, res.Quarantined[0].Reason, "semver")

	rec, ok := fx.registry.Get("billing")
	require.True(t, ok)
	assert.Equal(t, plugin.StatusQuarantined, rec.Status)
}

func TestReconcile_MainAppManifestInvalid(t *testing.T) {
	t.Run("fatal in production", func(t *testing.T) {
		fx := newFixture()
		bad := shellManifest()
		bad.Version = ""
		opts := devOptions()
		opts.Environment = types.EnvProduction

		_, err := fx.reconcile(t, opts, bad)
		require.Error(t, err)
		assert.True(t, atriumerr.HasCode(err, atriumerr.CodeBootPhaseFailure))
	})

	t.Run("fallback outside production", func(t *testing.T) {
		fx := newFixture()
		bad := shellManifest()
		bad.Version = ""

		res, err := fx.reconcile(t, devOptions(), bad, tierBManifest("crm"))
		require.NoError(t, err)

		assert.True(t, res.Success)
		assert.Equal(t, []string{"crm"}, res.Active)
		require.Len(t, res.Quarantined, 1)
		assert.Equal(t, "shell", res.Quarantined[0].ID)
		assert.Equal(t, "atrium-fallback", fx.rec.Design().ShellName)

		_, ok := fx.registry.Get("shell")
		assert.False(t, ok)
	})
}

func TestReconcile_DesignValidation(t *testing.T) {
	t.Run("module missing", func(t *testing.T) {
		fx := newFixture()

		_, err := fx.reconcile(t, devOptions(), shellManifest())
		require.Error(t, err)
		assert.True(t, atriumerr.HasCode(err, atriumerr.CodePluginModuleNotFound))
	})

	t.Run("no design exported", func(t *testing.T) {
		fx := newFixture()
		shell := fx.install(t, shellManifest(), &pkgplugin.Module{})

		_, err := fx.reconcile(t, devOptions(), shell)
		require.Error(t, err)
		assert.True(t, atriumerr.HasCode(err, atriumerr.CodeBootDesignInvalid))
	})

	t.Run("missing theme token", func(t *testing.T) {
		fx := newFixture()
		design := shellDesign()
		delete(design.Theme, "font.family")
		shell := fx.install(t, shellManifest(), &pkgplugin.Module{Design: design})

		_, err := fx.reconcile(t, devOptions(), shell)
		require.Error(t, err)
		assert.True(t, atriumerr.HasCode(err, atriumerr.CodeBootDesignInvalid))
		assert.Contains(t, err.Error(), "font.family")
	})

	t.Run("baseline collision", func(t *testing.T) {
		fx := newFixture()
		design := shellDesign()
		design.Nav[0].Items = append(design.Nav[0].Items,
			pkgplugin.NavItem{ID: "shell.settings", Label: "Shadow", Path: "/shadow"})
		shell := fx.install(t, shellManifest(), &pkgplugin.Module{Design: design})

		_, err := fx.reconcile(t, devOptions(), shell)
		require.Error(t, err)
		assert.True(t, atriumerr.HasCode(err, atriumerr.CodeNavDuplicateID))
		assert.Contains(t, err.Error(), "shell.settings")
	})
}

func TestReconcile_SchemaCompatibility(t *testing.T) {
	t.Run("missing migration is fatal", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)
		crm := tierBManifest("crm")
		crm.Migrations = []string{"0001_contacts", "0002_deals"}
		fx.gateway.SeedApplied("crm", "0001_contacts")

		_, err := fx.reconcile(t, devOptions(), shell, crm)
		require.Error(t, err)
		assert.True(t, atriumerr.HasCode(err, atriumerr.CodeBootSchemaIncompatible))
		assert.Contains(t, err.Error(), "0002_deals")
	})

	t.Run("fully applied passes", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)
		crm := tierBManifest("crm")
		crm.Migrations = []string{"0001_contacts", "0002_deals"}
		fx.gateway.SeedApplied("crm", "0001_contacts", "0002_deals")

		res, err := fx.reconcile(t, devOptions(), shell, crm)
		require.NoError(t, err)
		assert.Contains(t, res.Active, "crm")
	})

	t.Run("skipped in test environment", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)
		crm := tierBManifest("crm")
		crm.Migrations = []string{"0001_contacts"}
		opts := devOptions()
		opts.Environment = types.EnvTest

		res, err := fx.reconcile(t, opts, shell, crm)
		require.NoError(t, err)
		assert.Contains(t, res.Active, "crm")
	})
}

func TestReconcile_EnterpriseGating(t *testing.T) {
	fx := newFixture()
	shell := fx.installShell(t)

	analytics := tierCManifest("analytics")
	analytics.RequiresEnterprise = true
	analytics.EnterpriseFeatures = []string{"sso", "audit-export"}

	opts := devOptions()
	opts.Deployment.EnterpriseFeatures = []string{"sso"}

	res, err := fx.reconcile(t, opts, shell, analytics, tierBManifest("crm"))
	require.NoError(t, err)

	assert.Equal(t, []string{"shell", "crm"}, res.Active)
	require.Len(t, res.Quarantined, 1)
	assert.Equal(t, "analytics", res.Quarantined[0].ID)
	assert.Contains(t, res.Quarantined[0].Reason, "audit-export")
	assert.NotContains(t, res.Quarantined[0].Reason, "sso")
}

func TestReconcile_CapabilityGrants(t *testing.T) {
	t.Run("denied capability is not quarantine-worthy", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)
		crm := tierCManifest("crm")
		crm.Capabilities = []string{security.CapUsersRead, security.CapPermissionsManage}

		res, err := fx.reconcile(t, devOptions(), shell, crm)
		require.NoError(t, err)

		assert.Contains(t, res.Active, "crm")
		assert.Empty(t, res.Quarantined)

		rec, ok := fx.registry.Get("crm")
		require.True(t, ok)
		assert.Equal(t, []string{security.CapUsersRead}, rec.Granted)
		assert.True(t, fx.enforcer.Allowed("crm", security.CapUsersRead))
		assert.False(t, fx.enforcer.Allowed("crm", security.CapPermissionsManage))
	})

	t.Run("unavailable core service demotes tier-c grant", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)
		notifier := tierCManifest("notifier")
		notifier.Capabilities = []string{security.CapNotificationsSend}

		opts := devOptions()
		opts.Deployment.NotificationTransport = false

		res, err := fx.reconcile(t, opts, shell, notifier)
		require.NoError(t, err)
		assert.Contains(t, res.Active, "notifier")

		rec, ok := fx.registry.Get("notifier")
		require.True(t, ok)
		assert.Empty(t, rec.Granted)
		assert.False(t, fx.enforcer.Allowed("notifier", security.CapNotificationsSend))
	})
}

func TestReconcile_HookRegistration(t *testing.T) {
	t.Run("missing handler quarantines", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)
		ghost := tierBManifest("ghost")
		ghost.Hooks = []plugin.HookBinding{{Hook: resource.HookCollectProviders, Handler: "collect"}}
		fx.install(t, ghost, &pkgplugin.Module{})

		res, err := fx.reconcile(t, devOptions(), shell, ghost)
		require.NoError(t, err)

		require.Len(t, res.Quarantined, 1)
		assert.Equal(t, "ghost", res.Quarantined[0].ID)
		assert.Contains(t, res.Quarantined[0].Reason, "unknown handler")
	})

	t.Run("kind mismatch quarantines", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)
		navplug := tierBManifest("navplug")
		navplug.Hooks = []plugin.HookBinding{{Hook: nav.HookItems, Handler: "transform"}}
		fx.install(t, navplug, &pkgplugin.Module{
			Handlers: map[string]pkgplugin.Handler{
				"transform": pkgplugin.ActionFunc(func(context.Context, ...any) error { return nil }),
			},
		})

		res, err := fx.reconcile(t, devOptions(), shell, navplug)
		require.NoError(t, err)

		require.Len(t, res.Quarantined, 1)
		assert.Equal(t, "navplug", res.Quarantined[0].ID)
		assert.Contains(t, res.Quarantined[0].Reason, "not a filter func")
	})

	t.Run("tier-c foreign namespace quarantines", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)
		ext := tierCManifest("ext")
		ext.Hooks = []plugin.HookBinding{{Hook: "shell:theme", Handler: "steal"}}
		fx.install(t, ext, &pkgplugin.Module{
			Handlers: map[string]pkgplugin.Handler{
				"steal": pkgplugin.FilterFunc(func(_ context.Context, value any, _ ...any) (any, error) {
					return value, nil
				}),
			},
		})

		res, err := fx.reconcile(t, devOptions(), shell, ext)
		require.NoError(t, err)

		require.Len(t, res.Quarantined, 1)
		assert.Equal(t, "ext", res.Quarantined[0].ID)
		assert.Contains(t, res.Quarantined[0].Reason, "own namespace")
	})

	t.Run("tier-c own namespace binds", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)

		var fired bool
		ext := tierCManifest("ext")
		ext.Capabilities = []string{security.CapHooksDefine}
		ext.DefinedHooks = []string{"ext:ping"}
		ext.Hooks = []plugin.HookBinding{{Hook: "ext:ping", Handler: "on-ping"}}
		fx.install(t, ext, &pkgplugin.Module{
			Handlers: map[string]pkgplugin.Handler{
				"on-ping": pkgplugin.ActionFunc(func(context.Context, ...any) error {
					fired = true
					return nil
				}),
			},
		})

		res, err := fx.reconcile(t, devOptions(), shell, ext)
		require.NoError(t, err)
		assert.Contains(t, res.Active, "ext")

		require.NoError(t, fx.hooks.DispatchAction(context.Background(), "ext:ping"))
		assert.True(t, fired)
	})

	t.Run("name declared as both kinds quarantines", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)
		confused := tierBManifest("confused")
		confused.DefinedHooks = []string{"confused:event"}
		confused.DefinedFilters = []string{"confused:event"}

		res, err := fx.reconcile(t, devOptions(), shell, confused)
		require.NoError(t, err)

		require.Len(t, res.Quarantined, 1)
		assert.Equal(t, "confused", res.Quarantined[0].ID)
		assert.Contains(t, res.Quarantined[0].Reason, "already declared as an action")
	})
}

func TestReconcile_ResourceCollectionStrictAbort(t *testing.T) {
	fx := newFixture()
	shell := fx.installShell(t)

	var ranAlpha, ranGamma bool

	alpha := tierBManifest("alpha")
	alpha.Hooks = []plugin.HookBinding{{Hook: resource.HookCollectProviders, Handler: "collect", Priority: 1}}
	fx.install(t, alpha, &pkgplugin.Module{
		Handlers: map[string]pkgplugin.Handler{
			"collect": pkgplugin.ActionFunc(func(_ context.Context, args ...any) error {
				ranAlpha = true
				reg := args[0].(*resource.Registry)
				return reg.RegisterProvider("widget", "alpha",
					func(_ context.Context, _ store.TenantSession, id string) (any, error) {
						return id, nil
					})
			}),
		},
	})

	beta := tierBManifest("beta")
	beta.Hooks = []plugin.HookBinding{{Hook: resource.HookCollectProviders, Handler: "collect", Priority: 2}}
	fx.install(t, beta, &pkgplugin.Module{
		Handlers: map[string]pkgplugin.Handler{
			"collect": pkgplugin.ActionFunc(func(context.Context, ...any) error {
				return assert.AnError
			}),
		},
	})

	gamma := tierBManifest("gamma")
	gamma.Hooks = []plugin.HookBinding{{Hook: resource.HookCollectProviders, Handler: "collect", Priority: 3}}
	fx.install(t, gamma, &pkgplugin.Module{
		Handlers: map[string]pkgplugin.Handler{
			"collect": pkgplugin.ActionFunc(func(context.Context, ...any) error {
				ranGamma = true
				return nil
			}),
		},
	})

	_, err := fx.reconcile(t, devOptions(), shell, alpha, beta, gamma)
	require.Error(t, err)
	assert.True(t, errors.Is(err, assert.AnError))

	assert.True(t, ranAlpha)
	assert.False(t, ranGamma, "strict dispatch must stop at the first failing handler")
}

func TestReconcile_AuthzNamespaces(t *testing.T) {
	t.Run("resolver registered", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)
		crm := tierBManifest("crm")
		crm.Capabilities = []string{security.CapUsersRead, security.CapPermissionsManage}
		crm.AuthzNamespace = "crm"
		fx.install(t, crm, &pkgplugin.Module{
			AuthzResolver: func(_ context.Context, _ pkgplugin.AuthzRequest) (pkgplugin.AuthzResult, error) {
				return pkgplugin.AuthzResult{Allow: true}, nil
			},
		})

		res, err := fx.reconcile(t, devOptions(), shell, crm)
		require.NoError(t, err)
		assert.Contains(t, res.Active, "crm")

		owner, ok := fx.authz.Owner("crm")
		require.True(t, ok)
		assert.Equal(t, "crm", owner)
	})

	t.Run("missing grant skips with warning", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)
		ext := tierCManifest("ext")
		ext.AuthzNamespace = "ext"
		fx.install(t, ext, &pkgplugin.Module{
			AuthzResolver: func(_ context.Context, _ pkgplugin.AuthzRequest) (pkgplugin.AuthzResult, error) {
				return pkgplugin.AuthzResult{}, nil
			},
		})

		res, err := fx.reconcile(t, devOptions(), shell, ext)
		require.NoError(t, err)

		assert.Contains(t, res.Active, "ext")
		assert.NotContains(t, fx.authz.Namespaces(), "ext")
		assert.True(t, hasWarning(res, "permissions.manage"))
	})

	t.Run("nil resolver quarantines and removes hooks", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)

		var fired bool
		crm := tierBManifest("crm")
		crm.Capabilities = []string{security.CapUsersRead, security.CapPermissionsManage, security.CapHooksDefine}
		crm.AuthzNamespace = "crm"
		crm.DefinedHooks = []string{"crm:ping"}
		crm.Hooks = []plugin.HookBinding{{Hook: "crm:ping", Handler: "on-ping"}}
		fx.install(t, crm, &pkgplugin.Module{
			Handlers: map[string]pkgplugin.Handler{
				"on-ping": pkgplugin.ActionFunc(func(context.Context, ...any) error {
					fired = true
					return nil
				}),
			},
		})

		res, err := fx.reconcile(t, devOptions(), shell, crm)
		require.NoError(t, err)

		require.Len(t, res.Quarantined, 1)
		assert.Equal(t, "crm", res.Quarantined[0].ID)
		assert.Contains(t, res.Quarantined[0].Reason, "no resolver")

		require.NoError(t, fx.hooks.DispatchAction(context.Background(), "crm:ping"))
		assert.False(t, fired, "quarantine must remove the plugin's hook registrations")
		assert.False(t, fx.enforcer.Allowed("crm", security.CapUsersRead))
	})
}

func TestReconcile_NavCollisionAfterHooks(t *testing.T) {
	fx := newFixture()
	shell := fx.installShell(t)
	links := collidingLinksPlugin(t, fx)

	_, err := fx.reconcile(t, devOptions(), shell, links)
	require.Error(t, err)
	assert.True(t, atriumerr.HasCode(err, atriumerr.CodeNavDuplicateID))
	assert.Contains(t, err.Error(), "shell.settings")
}

// collidingLinksPlugin contributes a section whose item id shadows the
// baseline "shell.settings" item once extend-sections hooks run.
func collidingLinksPlugin(t *testing.T, fx *fixture) *plugin.Manifest {
	t.Helper()
	links := tierBManifest("links")
	links.Capabilities = []string{security.CapNavExtend}
	links.Hooks = []plugin.HookBinding{{Hook: nav.HookExtendSections, Handler: "extend"}}
	return fx.install(t, links, &pkgplugin.Module{
		Handlers: map[string]pkgplugin.Handler{
			"extend": pkgplugin.FilterFunc(func(_ context.Context, value any, _ ...any) (any, error) {
				sections := value.([]pkgplugin.NavSection)
				return append(sections, pkgplugin.NavSection{
					ID:    "links",
					Label: "Links",
					Items: []pkgplugin.NavItem{{ID: "shell.settings", Label: "Shadow", Path: "/links"}},
				}), nil
			}),
		},
	})
}

func TestReconcile_SafeMode(t *testing.T) {
	fx := newFixture()
	shell := fx.installShell(t)

	audit := &plugin.Manifest{
		ID:           "audit",
		Package:      "github.com/example/atrium-audit",
		Version:      "1.0.0",
		Tier:         pkgplugin.TierA,
		Core:         true,
		Capabilities: []string{security.CapUsersRead},
	}

	// Would be a fatal nav collision in a normal boot; safe mode never
	// registers the plugin, so the collision cannot occur.
	links := collidingLinksPlugin(t, fx)

	opts := devOptions()
	opts.SafeMode = true

	res, err := fx.reconcile(t, opts, shell, audit, links)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, []string{"shell", "audit"}, res.Active)
	assert.Equal(t, []string{"links"}, res.Disabled)
	assert.True(t, hasWarning(res, "safe mode"))

	_, ok := fx.registry.Get("links")
	assert.False(t, ok)
}

func TestReconcile_AuditEmission(t *testing.T) {
	t.Run("boot completion is audited", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)

		_, err := fx.reconcile(t, devOptions(), shell, tierBManifest("crm"))
		require.NoError(t, err)

		entries, err := fx.gateway.AuditLog().Query(context.Background(),
			store.AuditFilter{Type: "boot.completed"})
		require.NoError(t, err)
		require.Len(t, entries, 1)

		e := entries[0]
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, "system", e.Actor)
		assert.Equal(t, 2, e.Meta["total"])
		assert.Equal(t, 2, e.Meta["active"])
		assert.Equal(t, string(types.EnvDevelopment), e.Meta["environment"])
	})

	t.Run("audit failure is swallowed", func(t *testing.T) {
		fx := newFixture()
		shell := fx.installShell(t)
		svc := fx.services()
		svc.Gateway = failingAuditGateway{Gateway: fx.gateway}

		rec, err := boot.New(svc, devOptions())
		require.NoError(t, err)

		res, err := rec.Reconcile(context.Background(), []*plugin.Manifest{shell})
		require.NoError(t, err)
		assert.True(t, res.Success)
	})
}

type failingAuditGateway struct {
	store.Gateway
}

func (failingAuditGateway) AuditLog() store.AuditStore { return failingAuditStore{} }

type failingAuditStore struct{}

func (failingAuditStore) Append(context.Context, *store.AuditEntry) error {
	return assert.AnError
}

func (failingAuditStore) Query(context.Context, store.AuditFilter) ([]*store.AuditEntry, error) {
	return nil, assert.AnError
}
