// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	slogctx "github.com/veqryn/slog-context"

	"github.com/atrium-host/atrium/internal/store"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
)

// Identity is the authenticated actor resolved for one request.
type Identity struct {
	UserID   string
	TenantID string
	Role     pkgplugin.Role
}

// Authenticator resolves the actor identity for an inbound request. The
// host does not own credential verification; deployments plug in their
// own implementation.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

// HeaderAuthenticator trusts identity headers set by a fronting proxy.
// Development and test deployments only.
type HeaderAuthenticator struct{}

// Authenticate reads X-Atrium-User, X-Atrium-Tenant, and X-Atrium-Role.
// An absent role header means a regular user.
func (HeaderAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	id := Identity{
		UserID:   r.Header.Get("X-Atrium-User"),
		TenantID: r.Header.Get("X-Atrium-Tenant"),
	}
	if id.UserID == "" || id.TenantID == "" {
		return Identity{}, atriumerr.New(atriumerr.CodeServerAuthUnauthorized, "missing identity headers")
	}
	switch role := r.Header.Get("X-Atrium-Role"); role {
	case "", string(pkgplugin.RoleUser):
		id.Role = pkgplugin.RoleUser
	case string(pkgplugin.RoleAdmin):
		id.Role = pkgplugin.RoleAdmin
	case string(pkgplugin.RoleGuest):
		id.Role = pkgplugin.RoleGuest
	default:
		return Identity{}, atriumerr.Errorf(atriumerr.CodeServerAuthUnauthorized, "unknown role %q", role)
	}
	return id, nil
}

type identityContextKey struct{}

type sessionContextKey struct{}

// IdentityFromContext returns the authenticated identity, if the request
// passed the authenticate middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// SessionFromContext returns the tenant-scoped session opened for this
// request, if any.
func SessionFromContext(ctx context.Context) (store.TenantSession, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(store.TenantSession)
	return s, ok
}

// authenticate resolves the actor identity or rejects with 401.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.rt.Authenticator.Authenticate(r)
		if err != nil {
			slogctx.FromCtx(r.Context()).Debug("authentication rejected",
				"path", r.URL.Path, "error", err)
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey{}, id)
		ctx = slogctx.With(ctx, "tenant", id.TenantID, "user", id.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveTenant opens the tenant-scoped session for the authenticated
// identity and commits it when the handler finishes without a server
// error. Close after Commit is a no-op, so the deferred Close only
// discards work when the handler failed.
func (s *Server) resolveTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := slogctx.FromCtx(r.Context())

		id, ok := IdentityFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusInternalServerError, "tenant resolution before authentication")
			return
		}

		session, err := s.rt.Gateway.TenantSession(r.Context(), id.TenantID)
		if err != nil {
			log.Error("opening tenant session failed", "tenant", id.TenantID, "error", err)
			writeJSONError(w, http.StatusServiceUnavailable, "tenant store unavailable")
			return
		}
		defer func() {
			if err := session.Close(); err != nil {
				log.Warn("closing tenant session failed", "tenant", id.TenantID, "error", err)
			}
		}()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := context.WithValue(r.Context(), sessionContextKey{}, session)
		next.ServeHTTP(ww, r.WithContext(ctx))

		if ww.Status() >= http.StatusInternalServerError {
			return
		}
		if err := session.Commit(); err != nil {
			log.Error("committing tenant session failed", "tenant", id.TenantID, "error", err)
		}
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body, _ := json.Marshal(map[string]string{"error": msg})
	if _, err := w.Write(body); err != nil {
		slog.Warn("failed to write error response", "error", err)
	}
}
