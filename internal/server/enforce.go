// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package server

import (
	"fmt"
	"net/http"

	slogctx "github.com/veqryn/slog-context"

	"github.com/atrium-host/atrium/internal/facade"
	"github.com/atrium-host/atrium/internal/plugin"
	"github.com/atrium-host/atrium/internal/security"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
)

// requestGrants derives the per-request capability grants from the
// actor's role. The route-serving grant is always present so the
// enforcement check itself can pass; data grants narrow by role.
// Admins carry the plugin's full deployment grants, regular users lose
// permission management, guests keep read-only lookups.
func requestGrants(role pkgplugin.Role, rec plugin.Record) security.CapabilitySet {
	switch role {
	case pkgplugin.RoleAdmin:
		return security.NewCapabilitySet(append([]string{security.CapRoutesRegister}, rec.Granted...)...)
	case pkgplugin.RoleGuest:
		return security.NewCapabilitySet(security.CapRoutesRegister,
			security.CapUsersRead, security.CapResourcesRead)
	default:
		grants := []string{security.CapRoutesRegister}
		for _, g := range rec.Granted {
			if g != security.CapPermissionsManage {
				grants = append(grants, g)
			}
		}
		return security.NewCapabilitySet(grants...)
	}
}

// publicGrants is the request grant set for unauthenticated public
// routes: the route-serving grant alone, so no data facade is built.
func publicGrants() security.CapabilitySet {
	return security.NewCapabilitySet(security.CapRoutesRegister)
}

// activeRecord resolves the plugin record for a matched route. A missing
// or non-active plugin reads as 404: quarantined plugins must be
// indistinguishable from absent ones.
func (s *Server) activeRecord(w http.ResponseWriter, pluginID string) (plugin.Record, bool) {
	rec, ok := s.rt.Registry.Get(pluginID)
	if !ok || rec.Status != plugin.StatusActive {
		writeJSONError(w, http.StatusNotFound, "not found")
		return plugin.Record{}, false
	}
	return rec, true
}

// featuresEnabled checks the route's required features against the
// manifest's current feature map.
func featuresEnabled(w http.ResponseWriter, rec plugin.Record, features []string) bool {
	for _, f := range features {
		if !rec.Manifest.HasFeature(f) {
			writeJSONError(w, http.StatusForbidden, fmt.Sprintf("feature %s is disabled", f))
			return false
		}
	}
	return true
}

// enforcePlugin is the private-route enforcement middleware: the plugin
// must be active with the route-serving capability granted for this
// actor, and every declared required feature must be enabled. On success
// the resolved route info is stashed for the facade factory.
func (s *Server) enforcePlugin(pluginID string, features []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec, ok := s.activeRecord(w, pluginID)
			if !ok {
				return
			}

			id, ok := IdentityFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusInternalServerError, "enforcement before authentication")
				return
			}

			grants := requestGrants(id.Role, rec)
			err := s.rt.Enforcer.Check(r.Context(), security.CheckRequest{
				Plugin:       pluginID,
				Capability:   security.CapRoutesRegister,
				TenantID:     id.TenantID,
				UserID:       id.UserID,
				RequestAllow: grants,
			})
			if err != nil {
				slogctx.FromCtx(r.Context()).Warn("plugin route denied",
					"plugin", pluginID, "user", id.UserID, "tenant", id.TenantID, "error", err)
				writeJSONError(w, atriumerr.HTTPStatus(err), "capability denied")
				return
			}

			if !featuresEnabled(w, rec, features) {
				return
			}

			info := &facade.RouteInfo{
				PluginID:      pluginID,
				Manifest:      rec.Manifest,
				Deployment:    security.NewCapabilitySet(rec.Granted...),
				RequestGrants: grants,
			}
			ctx := facade.ContextWithRouteInfo(r.Context(), info)
			ctx = slogctx.With(ctx, "plugin", pluginID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// enforcePublic is the reduced stack for public routes: plugin activity,
// the route-serving capability, and required features, with no actor
// identity involved. The stashed grants build no data facades.
func (s *Server) enforcePublic(pluginID string, features []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec, ok := s.activeRecord(w, pluginID)
			if !ok {
				return
			}

			grants := publicGrants()
			err := s.rt.Enforcer.Check(r.Context(), security.CheckRequest{
				Plugin:       pluginID,
				Capability:   security.CapRoutesRegister,
				RequestAllow: grants,
			})
			if err != nil {
				slogctx.FromCtx(r.Context()).Warn("public plugin route denied",
					"plugin", pluginID, "error", err)
				writeJSONError(w, atriumerr.HTTPStatus(err), "capability denied")
				return
			}

			if !featuresEnabled(w, rec, features) {
				return
			}

			info := &facade.RouteInfo{
				PluginID:      pluginID,
				Manifest:      rec.Manifest,
				Deployment:    security.NewCapabilitySet(rec.Granted...),
				RequestGrants: grants,
			}
			ctx := facade.ContextWithRouteInfo(r.Context(), info)
			ctx = slogctx.With(ctx, "plugin", pluginID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
