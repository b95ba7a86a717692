// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

// Package plugin provides the public types plugin authors compile against.
// A plugin ships a yaml manifest consumed by the host and a Module value
// carrying its design contribution, hook handlers, authorization resolver,
// and HTTP routes.
package plugin

import (
	"context"
	"net/http"
)

// Tier is the trust tier a plugin runs under. Higher-trust tiers are
// granted wider capability ceilings by the host.
type Tier string

const (
	// TierMainApp is the single application shell. Exactly one main-app
	// plugin must be present per deployment.
	TierMainApp Tier = "main-app"
	// TierA is for first-party plugins maintained with the host.
	TierA Tier = "a"
	// TierB is for vetted partner plugins.
	TierB Tier = "b"
	// TierC is for third-party plugins and carries the narrowest ceiling
	// plus extra scrutiny at boot.
	TierC Tier = "c"
)

// Valid reports whether t is a recognized tier.
func (t Tier) Valid() bool {
	switch t {
	case TierMainApp, TierA, TierB, TierC:
		return true
	}
	return false
}

// Role is the actor role a request runs under.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// CanonicalRoles returns the role set the host validates navigation against.
func CanonicalRoles() []Role {
	return []Role{RoleAdmin, RoleUser, RoleGuest}
}

// ActionFunc is a hook handler with side effects and no return value.
// Dispatch never feeds one handler's outcome into the next.
type ActionFunc func(ctx context.Context, args ...any) error

// FilterFunc is a value-transforming hook handler. It receives the current
// value, returns the (possibly replaced) value, and may fail the pipeline.
type FilterFunc func(ctx context.Context, value any, args ...any) (any, error)

// Handler is implemented only by ActionFunc and FilterFunc. Modules export
// handlers by name; the host binds them according to the manifest's hook
// declarations.
type Handler interface {
	handler()
}

func (ActionFunc) handler() {}
func (FilterFunc) handler() {}

// AuthzRequest asks a plugin's resolver whether an actor may perform a
// namespaced ability, optionally against a specific resource.
type AuthzRequest struct {
	TenantID     string
	UserID       string
	Ability      string
	ResourceType string
	ResourceID   string
}

// AuthzResult is a resolver's verdict. Reason is for audit trails, not for
// end users.
type AuthzResult struct {
	Allow  bool
	Reason string
}

// AuthzResolver decides authorization questions for one manifest-declared
// namespace.
type AuthzResolver func(ctx context.Context, req AuthzRequest) (AuthzResult, error)

// Route is one HTTP endpoint a plugin asks the host to bind. The host
// prefixes every route with the plugin's fixed path segment; Pattern is
// relative to that prefix. Public routes must place Pattern under "public/"
// and are served without authentication.
type Route struct {
	Method           string
	Pattern          string
	Public           bool
	RequiredFeatures []string
	Handler          http.HandlerFunc
}

// Module is everything a plugin exports to the host beyond its manifest.
// The host populates a typed table of modules at start-up; there is no
// runtime discovery of exported symbols.
type Module struct {
	// Design is the application design contract. Required for main-app
	// plugins, ignored for every other tier.
	Design *AppDesign
	// AuthzResolver backs the manifest's authz_namespace, if any.
	AuthzResolver AuthzResolver
	// Handlers maps handler names referenced by the manifest's hook
	// bindings to their implementations.
	Handlers map[string]Handler
	// Routes are bound by the host's route registrar after a successful
	// boot. Quarantined plugins never reach route binding.
	Routes []Route
}
