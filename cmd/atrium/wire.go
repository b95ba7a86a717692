// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package main

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/atrium-host/atrium/internal/authz"
	"github.com/atrium-host/atrium/internal/boot"
	"github.com/atrium-host/atrium/internal/config"
	"github.com/atrium-host/atrium/internal/facade"
	"github.com/atrium-host/atrium/internal/hook"
	"github.com/atrium-host/atrium/internal/plugin"
	"github.com/atrium-host/atrium/internal/resource"
	"github.com/atrium-host/atrium/internal/security"
	"github.com/atrium-host/atrium/internal/server"
	"github.com/atrium-host/atrium/internal/shell"
	"github.com/atrium-host/atrium/internal/store"
	_ "github.com/atrium-host/atrium/internal/store/sqlite" // register sqlite backend
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
)

// Host holds all wired subsystems and manages their lifecycle.
type Host struct {
	Server   *server.Server
	Gateway  store.Gateway
	Registry *plugin.Registry
	Loader   *plugin.Loader
	Enforcer *security.Enforcer
	Boot     *boot.Result
}

// builtinModules maps compiled-in plugin ids to their manifest and module.
// Declared as a variable so deployment builds can link additional
// first-party modules and tests can inject fixtures.
var builtinModules = map[string]func() (*plugin.Manifest, *pkgplugin.Module){
	shell.ID: func() (*plugin.Manifest, *pkgplugin.Module) {
		return shell.Manifest(), shell.Module()
	},
}

// WireHost creates all subsystems, reconciles the plugin set, and returns
// a Host ready to Start. A returned error is boot-fatal: the process must
// exit without ever listening.
func WireHost(ctx context.Context, cfg *config.Config) (*Host, error) {
	// 1. Storage gateway (tenant data, audit log, migrations).
	gw, err := store.NewGateway(&store.StorageConfig{
		Backend: cfg.Storage.Backend,
		Path:    cfg.Storage.Path,
	})
	if err != nil {
		return nil, atriumerr.Wrapf(err, atriumerr.CodeCLISetupFailure, "creating store gateway")
	}

	// 2. Runtime registries and the capability enforcer.
	registry := plugin.NewRegistry()
	loader := plugin.NewLoader()
	hooks := hook.NewRegistry()
	resources := resource.NewRegistry()
	authzReg := authz.NewRegistry()
	enforcer := security.NewEnforcer(gw.AuditLog())

	// 3. Compiled-in modules, then discovered manifests. Built-ins
	// reconcile first so the shell always precedes third-party plugins.
	manifests, err := registerBuiltinModules(loader)
	if err != nil {
		_ = gw.Close()
		return nil, atriumerr.Wrapf(err, atriumerr.CodeCLISetupFailure, "registering built-in modules")
	}

	discovered, err := plugin.DiscoverManifests(cfg.Plugins.Dir)
	if err != nil {
		_ = gw.Close()
		return nil, atriumerr.Wrapf(err, atriumerr.CodeCLISetupFailure, "discovering plugins")
	}
	if len(discovered) > 0 {
		slog.Info("discovered plugins", "count", len(discovered), "dir", cfg.Plugins.Dir)
	}
	manifests = append(manifests, discovered...)

	// 4. Boot reconciliation. A reconcile error is fatal by contract.
	reconciler, err := boot.New(boot.Services{
		Registry:  registry,
		Loader:    loader,
		Hooks:     hooks,
		Resources: resources,
		Authz:     authzReg,
		Enforcer:  enforcer,
		Gateway:   gw,
	}, boot.Options{
		Environment: cfg.Env(),
		SafeMode:    cfg.SafeMode,
		MatrixLimit: cfg.Navigation.MatrixLimit,
		Deployment:  deploymentFacts(cfg),
	})
	if err != nil {
		_ = gw.Close()
		return nil, err
	}

	result, err := reconciler.Reconcile(ctx, manifests)
	if err != nil {
		_ = gw.Close()
		return nil, atriumerr.Wrapf(err, atriumerr.CodeCLISetupFailure, "boot reconciliation")
	}

	// 5. Per-request facade machinery.
	arena := facade.NewArena()
	facades := facade.NewFactory(arena, hooks, resources, gw.AuditLog())

	// 6. HTTP server.
	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, server.Runtime{
		Registry:      registry,
		Gateway:       gw,
		Enforcer:      enforcer,
		Facades:       facades,
		Arena:         arena,
		Authenticator: server.HeaderAuthenticator{},
		BootResult:    result,
		Environment:   cfg.Env(),
		SafeMode:      cfg.SafeMode,
		BootedAt:      time.Now().UTC(),
	})
	if err != nil {
		_ = gw.Close()
		return nil, atriumerr.Wrapf(err, atriumerr.CodeCLISetupFailure, "creating server")
	}

	// 7. Mount routes for every plugin that survived reconciliation.
	mountActiveRoutes(registry, loader, srv.Registrar())

	return &Host{
		Server:   srv,
		Gateway:  gw,
		Registry: registry,
		Loader:   loader,
		Enforcer: enforcer,
		Boot:     result,
	}, nil
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (h *Host) Start(ctx context.Context) error {
	return h.Server.Start(ctx)
}

// Close releases all resources held by the host.
func (h *Host) Close() error {
	if h.Gateway != nil {
		return h.Gateway.Close()
	}
	return nil
}

// registerBuiltinModules installs every compiled-in module into the
// loader and returns their manifests in deterministic id order.
func registerBuiltinModules(loader *plugin.Loader) ([]*plugin.Manifest, error) {
	ids := make([]string, 0, len(builtinModules))
	for id := range builtinModules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	manifests := make([]*plugin.Manifest, 0, len(ids))
	for _, id := range ids {
		manifest, mod := builtinModules[id]()
		if err := loader.Register(id, mod); err != nil {
			return nil, err
		}
		manifests = append(manifests, manifest)
	}
	return manifests, nil
}

// mountActiveRoutes binds each active plugin's routes. A mount failure is
// operator-visible but not fatal: the plugin stays active without routes.
// Manifest-only plugins without a compiled-in module simply serve none.
func mountActiveRoutes(registry *plugin.Registry, loader *plugin.Loader, registrar *server.Registrar) {
	for _, id := range registry.Active() {
		mod, err := loader.Load(id)
		if err != nil {
			slog.Debug("active plugin has no loaded module, no routes to mount", "plugin", id)
			continue
		}
		if len(mod.Routes) == 0 {
			continue
		}
		if err := registrar.Mount(id, mod.Routes); err != nil {
			slog.Warn("mounting plugin routes failed", "plugin", id, "error", err)
			continue
		}
		slog.Info("mounted plugin routes", "plugin", id, "routes", len(mod.Routes))
	}
}

// deploymentFacts derives capability availability from config. The
// built-in store backs the user directory, permission service, and
// resource providers, and hooks dispatch in-process, so those are live
// whenever the gateway came up. Notification delivery needs a configured
// transport.
func deploymentFacts(cfg *config.Config) security.Deployment {
	return security.Deployment{
		UserDirectory:         true,
		ResourceProviders:     true,
		PermissionsService:    true,
		NotificationTransport: cfg.Deployment.NotificationTransport != "",
		HookDispatch:          true,
		EnterpriseFeatures:    cfg.Deployment.EnterpriseFeatures,
	}
}
