// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package facade

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	slogctx "github.com/veqryn/slog-context"

	"github.com/atrium-host/atrium/internal/store"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

// Permissions checks and mutates per-user abilities inside the requesting
// tenant. Abilities must carry the owning plugin's namespace; grant and
// revoke are audited.
type Permissions struct {
	base
	pluginID string
	audit    store.AuditStore
}

func (p *Permissions) ownAbility(ability string) error {
	if !strings.HasPrefix(ability, p.pluginID+":") {
		return atriumerr.Errorf(atriumerr.CodeFacadeNamespaceForbidden,
			"ability %q must use the %s: namespace", ability, p.pluginID)
	}
	return nil
}

// Check reports whether a user holds an ability.
func (p *Permissions) Check(ctx context.Context, userID, ability string) (bool, error) {
	scope, err := p.guard(ctx)
	if err != nil {
		return false, err
	}
	if err := p.ownAbility(ability); err != nil {
		return false, err
	}
	return scope.Session.Permissions().Check(ctx, userID, ability)
}

// Require is Check that fails on denial.
func (p *Permissions) Require(ctx context.Context, userID, ability string) error {
	ok, err := p.Check(ctx, userID, ability)
	if err != nil {
		return err
	}
	if !ok {
		return atriumerr.New(atriumerr.CodeFacadePermissionDenied,
			"user "+userID+" lacks "+ability,
			atriumerr.FieldUserID(userID),
			atriumerr.FieldPlugin(p.pluginID))
	}
	return nil
}

// Grant gives a user an ability. Idempotent; every call is audited.
func (p *Permissions) Grant(ctx context.Context, userID, ability string) error {
	scope, err := p.guard(ctx)
	if err != nil {
		return err
	}
	if err := p.ownAbility(ability); err != nil {
		return err
	}
	if err := scope.Session.Permissions().Grant(ctx, userID, ability); err != nil {
		return err
	}
	p.auditEvent(ctx, scope, "permission.granted", userID, ability)
	return nil
}

// Revoke removes an ability from a user. Idempotent; every call is audited.
func (p *Permissions) Revoke(ctx context.Context, userID, ability string) error {
	scope, err := p.guard(ctx)
	if err != nil {
		return err
	}
	if err := p.ownAbility(ability); err != nil {
		return err
	}
	if err := scope.Session.Permissions().Revoke(ctx, userID, ability); err != nil {
		return err
	}
	p.auditEvent(ctx, scope, "permission.revoked", userID, ability)
	return nil
}

// auditEvent appends a best-effort audit record; failures are logged, not
// returned, since the permission mutation itself already succeeded.
func (p *Permissions) auditEvent(ctx context.Context, scope *Scope, typ, userID, ability string) {
	if p.audit == nil {
		return
	}
	meta := map[string]any{"ability": ability}
	if scope.RequestIP != "" {
		meta["request_ip"] = scope.RequestIP
	}
	if scope.UserAgent != "" {
		meta["user_agent"] = scope.UserAgent
	}
	entry := &store.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		TenantID:  scope.TenantID,
		Type:      typ,
		Actor:     scope.UserID,
		Resource:  "user:" + userID,
		Plugin:    p.pluginID,
		Meta:      meta,
	}
	if err := p.audit.Append(ctx, entry); err != nil {
		slogctx.FromCtx(ctx).Warn("permission audit append failed",
			"type", typ,
			"plugin", p.pluginID,
			"error", err,
		)
	}
}
