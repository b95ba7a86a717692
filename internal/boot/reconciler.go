// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

// Package boot reconciles the discovered plugin manifests into a serving
// runtime. Phases run in a strict order over the full manifest set, the
// main-app plugin always first. Each phase applies one of two failure
// policies: isolable failures quarantine the offending plugin and boot
// continues; fatal failures abort the whole boot before the server ever
// listens.
package boot

import (
	"context"
	"time"

	"github.com/google/uuid"
	slogctx "github.com/veqryn/slog-context"

	"github.com/atrium-host/atrium/internal/authz"
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

// Services collects the runtime registries the reconciler drives. All
// fields are required.
type Services struct {
	Registry  *plugin.Registry
	Loader    *plugin.Loader
	Hooks     *hook.Registry
	Resources *resource.Registry
	Authz     *authz.Registry
	Enforcer  *security.Enforcer
	Gateway   store.Gateway
}

func (s Services) validate() error {
	if s.Registry == nil {
		return atriumerr.New(atriumerr.CodeServerConfigInvalid, "plugin registry is required")
	}
	if s.Loader == nil {
		return atriumerr.New(atriumerr.CodeServerConfigInvalid, "module loader is required")
	}
	if s.Hooks == nil {
		return atriumerr.New(atriumerr.CodeServerConfigInvalid, "hook registry is required")
	}
	if s.Resources == nil {
		return atriumerr.New(atriumerr.CodeServerConfigInvalid, "resource registry is required")
	}
	if s.Authz == nil {
		return atriumerr.New(atriumerr.CodeServerConfigInvalid, "authz registry is required")
	}
	if s.Enforcer == nil {
		return atriumerr.New(atriumerr.CodeServerConfigInvalid, "capability enforcer is required")
	}
	if s.Gateway == nil {
		return atriumerr.New(atriumerr.CodeServerConfigInvalid, "store gateway is required")
	}
	return nil
}

// Options carries the configuration facts boot consults.
type Options struct {
	Environment types.Environment
	SafeMode    bool
	// MatrixLimit caps the navigation validation context matrix. Zero or
	// negative means unbounded.
	MatrixLimit int
	Deployment  security.Deployment
}

// Reconciler drives one boot cycle. It is single-use: construct, call
// Reconcile once, then read the result.
type Reconciler struct {
	svc  Services
	opts Options

	res       *Result
	manifests []*plugin.Manifest
	mainApp   string
	design    *pkgplugin.AppDesign
	composer  *nav.Composer
}

// New validates the service set and returns a Reconciler.
func New(svc Services, opts Options) (*Reconciler, error) {
	if err := svc.validate(); err != nil {
		return nil, err
	}
	return &Reconciler{svc: svc, opts: opts}, nil
}

// Design returns the installed main-app design after a successful boot.
func (r *Reconciler) Design() *pkgplugin.AppDesign {
	return r.design
}

// Reconcile runs every boot phase over the manifest set. A returned error
// is boot-fatal: the process must not begin serving. Isolable failures are
// reported through the Result instead.
func (r *Reconciler) Reconcile(ctx context.Context, manifests []*plugin.Manifest) (*Result, error) {
	log := slogctx.FromCtx(ctx)
	r.res = &Result{Total: len(manifests)}

	kept := r.partitionSafeMode(ctx, manifests)

	if err := r.checkCardinality(ctx, kept); err != nil {
		return nil, err
	}
	if err := r.registerAll(ctx, kept); err != nil {
		return nil, err
	}
	if err := r.validateDesign(ctx); err != nil {
		return nil, err
	}
	if err := r.checkSchema(ctx); err != nil {
		return nil, err
	}
	r.gateEnterprise(ctx)
	r.grantCapabilities(ctx)
	r.registerHooks(ctx)
	if err := r.collectResourceProviders(ctx); err != nil {
		return nil, err
	}
	r.registerAuthzNamespaces(ctx)
	if err := r.validateNavigation(ctx); err != nil {
		return nil, err
	}
	r.activate(ctx)
	r.emitAudit(ctx)

	r.res.Success = true
	log.Info("boot completed",
		"total", r.res.Total,
		"active", len(r.res.Active),
		"quarantined", len(r.res.Quarantined),
		"disabled", len(r.res.Disabled),
		"warnings", len(r.res.Warnings),
		"safe_mode", r.opts.SafeMode,
	)
	return r.res, nil
}

// quarantine isolates a registered plugin: registry state, hook
// registrations, and enforcer policy are all withdrawn so nothing of the
// plugin survives into serving.
func (r *Reconciler) quarantine(ctx context.Context, id, reason string) {
	slogctx.FromCtx(ctx).Warn("plugin quarantined", "plugin", id, "reason", reason)

	if err := r.svc.Registry.Quarantine(id, reason); err != nil {
		slogctx.FromCtx(ctx).Error("quarantine bookkeeping failed", "plugin", id, "error", err)
	}
	r.svc.Hooks.RemoveOwner(id)
	r.svc.Enforcer.UnregisterPlugin(id)
	r.res.Quarantined = append(r.res.Quarantined, QuarantinedPlugin{ID: id, Reason: reason})
}

// live returns the manifests still in play: registered and not quarantined,
// in registration order (main-app first).
func (r *Reconciler) live() []*plugin.Manifest {
	var out []*plugin.Manifest
	for _, m := range r.manifests {
		rec, ok := r.svc.Registry.Get(m.ID)
		if ok && rec.Status == plugin.StatusRegistered {
			out = append(out, m)
		}
	}
	return out
}

func (r *Reconciler) emitAudit(ctx context.Context) {
	entry := &store.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      "boot.completed",
		Actor:     "system",
		Meta: map[string]any{
			"total":       r.res.Total,
			"active":      len(r.res.Active),
			"quarantined": len(r.res.Quarantined),
			"disabled":    len(r.res.Disabled),
			"warnings":    len(r.res.Warnings),
			"safe_mode":   r.opts.SafeMode,
			"environment": string(r.opts.Environment),
		},
	}
	if err := r.svc.Gateway.AuditLog().Append(ctx, entry); err != nil {
		slogctx.FromCtx(ctx).Warn("boot audit append failed", "error", err)
	}
}
