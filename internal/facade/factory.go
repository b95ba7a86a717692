// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

// Package facade builds the capability-gated, tenant-scoped API surfaces
// plugin code works against. A facade set is constructed fresh for each
// request from the intersection of deployment-time grants and the grants
// the middleware derived for that request; a facade for an absent
// capability is simply not constructed, so callers must branch on the
// comma-ok accessors instead of relying on permissive no-ops. Every method
// re-checks that its owning request is still the active one before touching
// tenant data.
package facade

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/atrium-host/atrium/internal/hook"
	"github.com/atrium-host/atrium/internal/plugin"
	"github.com/atrium-host/atrium/internal/resource"
	"github.com/atrium-host/atrium/internal/security"
	"github.com/atrium-host/atrium/internal/store"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

// RouteInfo is what the enforcement middleware resolved for the matched
// plugin route. The server stashes it in the request context before the
// plugin handler runs.
type RouteInfo struct {
	PluginID      string
	Manifest      *plugin.Manifest
	Deployment    security.CapabilitySet
	RequestGrants security.CapabilitySet
}

type routeInfoKey struct{}

// ContextWithRouteInfo threads the matched route's enforcement outcome
// through ctx.
func ContextWithRouteInfo(ctx context.Context, info *RouteInfo) context.Context {
	return context.WithValue(ctx, routeInfoKey{}, info)
}

// RouteInfoFromContext returns the route info carried by ctx, if any.
func RouteInfoFromContext(ctx context.Context) (*RouteInfo, bool) {
	info, ok := ctx.Value(routeInfoKey{}).(*RouteInfo)
	return info, ok
}

// Factory constructs per-request facade sets against the shared runtime
// registries. One factory serves the whole process.
type Factory struct {
	arena     *Arena
	hooks     *hook.Registry
	resources *resource.Registry
	audit     store.AuditStore
	validate  *validator.Validate
}

// NewFactory creates a Factory bound to the runtime registries.
func NewFactory(arena *Arena, hooks *hook.Registry, resources *resource.Registry, audit store.AuditStore) *Factory {
	return &Factory{
		arena:     arena,
		hooks:     hooks,
		resources: resources,
		audit:     audit,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Set is the facade collection built for one request. A nil member means
// the capability was not in the effective set.
type Set struct {
	users         *Users
	resources     *Resources
	permissions   *Permissions
	notifications *Notifications
	hooks         *Hooks
}

// Users returns the user-lookup facade, if users.read is in effect.
func (s *Set) Users() (*Users, bool) { return s.users, s.users != nil }

// Resources returns the resource-resolution facade, if resources.read is in
// effect.
func (s *Set) Resources() (*Resources, bool) { return s.resources, s.resources != nil }

// Permissions returns the permission facade, if permissions.manage is in
// effect.
func (s *Set) Permissions() (*Permissions, bool) { return s.permissions, s.permissions != nil }

// Notifications returns the notification facade, if notifications.send is
// in effect.
func (s *Set) Notifications() (*Notifications, bool) { return s.notifications, s.notifications != nil }

// Hooks returns the hook-dispatch facade, if hooks.define is in effect.
func (s *Set) Hooks() (*Hooks, bool) { return s.hooks, s.hooks != nil }

type setKey struct{}

// ContextWithSet stashes the request's facade set for the plugin handler.
func ContextWithSet(ctx context.Context, s *Set) context.Context {
	return context.WithValue(ctx, setKey{}, s)
}

// SetFromContext returns the facade set built for this request, if any.
// Plugin handlers reach their facades exclusively through this accessor.
func SetFromContext(ctx context.Context) (*Set, bool) {
	s, ok := ctx.Value(setKey{}).(*Set)
	return s, ok
}

// ForRequest builds the facade set for the request carried by ctx. The
// effective capability set is the intersection of the route's deployment
// grants and the middleware-derived request grants; each facade is
// constructed only when its capability is in the effective set.
func (f *Factory) ForRequest(ctx context.Context) (*Set, error) {
	info, ok := RouteInfoFromContext(ctx)
	if !ok {
		return nil, atriumerr.New(atriumerr.CodeServerRequestInvalid, "no route info in request context")
	}
	scope, ok := ScopeFromContext(ctx)
	if !ok {
		return nil, atriumerr.New(atriumerr.CodeServerRequestInvalid, "no scope in request context")
	}

	b := base{arena: f.arena, handle: scope.Handle()}
	effective := func(capability string) bool {
		return info.Deployment.AllowedBy(info.RequestGrants, capability)
	}

	s := &Set{}
	if effective(security.CapUsersRead) {
		s.users = &Users{base: b}
	}
	if effective(security.CapResourcesRead) {
		s.resources = &Resources{base: b, registry: f.resources}
	}
	if effective(security.CapPermissionsManage) {
		s.permissions = &Permissions{base: b, pluginID: info.PluginID, audit: f.audit}
	}
	if effective(security.CapNotificationsSend) {
		s.notifications = &Notifications{base: b, pluginID: info.PluginID, validate: f.validate}
	}
	if effective(security.CapHooksDefine) {
		s.hooks = &Hooks{base: b, pluginID: info.PluginID, manifest: info.Manifest, registry: f.hooks}
	}
	return s, nil
}

// base carries the identity captured at construction time. guard re-reads
// the ambient scope and compares: the ctx handle must equal the captured
// one and the arena slot must still be live. A released or superseded
// request fails here before any tenant data is touched.
type base struct {
	arena  *Arena
	handle Handle
}

func (b base) guard(ctx context.Context) (*Scope, error) {
	s, ok := ScopeFromContext(ctx)
	if !ok || s.Handle() != b.handle || !b.arena.Live(b.handle) {
		return nil, atriumerr.New(atriumerr.CodeFacadeScopeStale,
			"facade invoked outside its owning request")
	}
	return s, nil
}
