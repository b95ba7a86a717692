// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package server

import (
	"net/http"
	"strings"

	slogctx "github.com/veqryn/slog-context"

	"github.com/atrium-host/atrium/internal/facade"
	"github.com/atrium-host/atrium/internal/plugin"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
)

const (
	extPrefix     = "/ext"
	publicSubpath = "public/"
)

var validMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// Registrar is the only supported way to bind plugin HTTP routes. Each
// plugin's routes mount under a fixed /ext/{pluginID} prefix; routes
// marked public must live under the reserved public/ sub-path and run a
// reduced middleware stack without the identity layer.
type Registrar struct {
	srv *Server
}

// Mount binds one plugin's declared routes. The plugin must already be
// active, so mounting always happens after boot reconciliation. The
// whole route set is validated before anything binds: a plugin's routes
// mount completely or not at all.
func (reg *Registrar) Mount(pluginID string, routes []pkgplugin.Route) error {
	rec, ok := reg.srv.rt.Registry.Get(pluginID)
	if !ok {
		return atriumerr.Errorf(atriumerr.CodeRoutePluginForbidden,
			"registrar: plugin %s is not registered", pluginID)
	}
	if rec.Status != plugin.StatusActive {
		return atriumerr.Errorf(atriumerr.CodeRoutePluginForbidden,
			"registrar: plugin %s is not active (status %s)", pluginID, rec.Status)
	}

	for _, route := range routes {
		if err := validateRoute(rec, route); err != nil {
			return err
		}
	}

	for _, route := range routes {
		pattern := extPrefix + "/" + pluginID + "/" + route.Pattern
		var h http.Handler = reg.wrap(route.Handler)
		if route.Public {
			h = reg.srv.enforcePublic(pluginID, route.RequiredFeatures)(h)
		} else {
			h = reg.srv.enforcePlugin(pluginID, route.RequiredFeatures)(h)
			h = reg.srv.resolveTenant(h)
			h = reg.srv.authenticate(h)
		}
		reg.srv.router.Method(route.Method, pattern, h)
	}

	return nil
}

func validateRoute(rec plugin.Record, route pkgplugin.Route) error {
	if route.Handler == nil {
		return atriumerr.Errorf(atriumerr.CodeRouteRegisterInvalid,
			"registrar: route %s %s has no handler", route.Method, route.Pattern)
	}
	if !validMethods[route.Method] {
		return atriumerr.Errorf(atriumerr.CodeRouteRegisterInvalid,
			"registrar: route method %q is not a valid HTTP method", route.Method)
	}
	if route.Pattern == "" || strings.HasPrefix(route.Pattern, "/") {
		return atriumerr.Errorf(atriumerr.CodeRouteRegisterInvalid,
			"registrar: route pattern %q must be relative to the plugin prefix", route.Pattern)
	}

	isPublicPath := strings.HasPrefix(route.Pattern, publicSubpath)
	if route.Public && !isPublicPath {
		return atriumerr.Errorf(atriumerr.CodeRouteRegisterInvalid,
			"registrar: public route %s must live under %s", route.Pattern, publicSubpath)
	}
	if !route.Public && isPublicPath {
		return atriumerr.Errorf(atriumerr.CodeRouteRegisterInvalid,
			"registrar: route %s reserves %s for public routes", route.Pattern, publicSubpath)
	}

	for _, f := range route.RequiredFeatures {
		if !rec.Manifest.DeclaresFeature(f) {
			return atriumerr.Errorf(atriumerr.CodeRouteFeatureDenied,
				"registrar: route %s requires feature %s not declared in the manifest", route.Pattern, f)
		}
	}
	return nil
}

// wrap runs the plugin handler inside a fresh facade scope. The scope is
// acquired after enforcement resolved the route info and released when
// the handler returns, which is the moment any facade the handler
// captured goes stale.
func (reg *Registrar) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// Public routes carry no identity and no session; the scope then
		// holds guest role and nil session.
		id, _ := IdentityFromContext(ctx)
		session, _ := SessionFromContext(ctx)
		role := id.Role
		if role == "" {
			role = pkgplugin.RoleGuest
		}

		scope := reg.srv.rt.Arena.Acquire(id.TenantID, id.UserID, role, session)
		scope.RequestIP = r.RemoteAddr
		scope.UserAgent = r.UserAgent()
		defer reg.srv.rt.Arena.Release(scope)
		ctx = facade.ContextWithScope(ctx, scope)

		set, err := reg.srv.rt.Facades.ForRequest(ctx)
		if err != nil {
			slogctx.FromCtx(ctx).Error("building facade set failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		ctx = facade.ContextWithSet(ctx, set)

		h(w, r.WithContext(ctx))
	}
}
