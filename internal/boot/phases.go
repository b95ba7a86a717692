// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package boot

import (
	"context"
	"fmt"
	"strings"

	slogctx "github.com/veqryn/slog-context"

	"github.com/atrium-host/atrium/internal/hook"
	"github.com/atrium-host/atrium/internal/nav"
	"github.com/atrium-host/atrium/internal/plugin"
	"github.com/atrium-host/atrium/internal/resource"
	"github.com/atrium-host/atrium/internal/security"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
	"github.com/atrium-host/atrium/pkg/types"
)

// partitionSafeMode splits the manifest set when safe mode is on. Main-app
// and core manifests stay in play; everything else lands in Disabled and is
// never registered.
func (r *Reconciler) partitionSafeMode(ctx context.Context, manifests []*plugin.Manifest) []*plugin.Manifest {
	if !r.opts.SafeMode {
		return manifests
	}

	log := slogctx.FromCtx(ctx)
	kept := make([]*plugin.Manifest, 0, len(manifests))
	for _, m := range manifests {
		if m.Tier == pkgplugin.TierMainApp || m.Core {
			kept = append(kept, m)
			continue
		}
		r.res.Disabled = append(r.res.Disabled, m.ID)
		log.Warn("safe mode disabled plugin", "plugin", m.ID, "tier", string(m.Tier))
	}
	r.res.warnf("safe mode active: %d plugin(s) disabled", len(r.res.Disabled))
	return kept
}

// checkCardinality requires exactly one main-app manifest. Zero is fatal in
// production and a fallback-design warning elsewhere; two or more is fatal
// in every environment because there is no principled way to pick a shell.
func (r *Reconciler) checkCardinality(ctx context.Context, kept []*plugin.Manifest) error {
	var mains []string
	for _, m := range kept {
		if m.Tier == pkgplugin.TierMainApp {
			mains = append(mains, m.ID)
		}
	}

	switch len(mains) {
	case 1:
		r.mainApp = mains[0]
		return nil
	case 0:
		if r.opts.Environment.Production() {
			return atriumerr.New(atriumerr.CodeBootCardinalityInvalid,
				"no main-app manifest present")
		}
		r.design = pkgplugin.DefaultDesign()
		r.res.warnf("no main-app manifest present, serving fallback design")
		slogctx.FromCtx(ctx).Warn("no main-app manifest, using fallback design")
		return nil
	default:
		return atriumerr.Errorf(atriumerr.CodeBootCardinalityInvalid,
			"%d main-app manifests present (%s), exactly one allowed",
			len(mains), strings.Join(mains, ", "))
	}
}

// registerAll inserts every kept manifest into the plugin registry,
// main-app first so later phases can rely on its record existing.
func (r *Reconciler) registerAll(ctx context.Context, kept []*plugin.Manifest) error {
	ordered := make([]*plugin.Manifest, 0, len(kept))
	for _, m := range kept {
		if m.Tier == pkgplugin.TierMainApp {
			ordered = append(ordered, m)
		}
	}
	for _, m := range kept {
		if m.Tier != pkgplugin.TierMainApp {
			ordered = append(ordered, m)
		}
	}

	for _, m := range ordered {
		if err := r.registerOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) registerOne(ctx context.Context, m *plugin.Manifest) error {
	errs := m.Validate()

	if len(errs) > 0 && m.Tier == pkgplugin.TierMainApp {
		reason := joinErrors(errs)
		if r.opts.Environment.Production() {
			return atriumerr.Errorf(atriumerr.CodeBootPhaseFailure,
				"main-app manifest %s invalid: %s", m.ID, reason)
		}
		r.mainApp = ""
		r.design = pkgplugin.DefaultDesign()
		r.res.Quarantined = append(r.res.Quarantined, QuarantinedPlugin{ID: m.ID, Reason: "manifest invalid: " + reason})
		r.res.warnf("main-app manifest %s invalid, serving fallback design", m.ID)
		return nil
	}

	if err := r.svc.Registry.Register(m); err != nil {
		// Covers duplicate ids and manifests with no usable id. The record
		// that won registration keeps its state; the loser is reported
		// without touching the registry.
		r.res.Quarantined = append(r.res.Quarantined, QuarantinedPlugin{ID: m.ID, Reason: err.Error()})
		slogctx.FromCtx(ctx).Warn("plugin rejected at registration", "plugin", m.ID, "error", err)

		if m.Tier == pkgplugin.TierMainApp {
			if r.opts.Environment.Production() {
				return atriumerr.Wrapf(err, atriumerr.CodeBootPhaseFailure,
					"registering main-app %s", m.ID)
			}
			r.mainApp = ""
			r.design = pkgplugin.DefaultDesign()
			r.res.warnf("main-app %s failed registration, serving fallback design", m.ID)
		}
		return nil
	}

	r.manifests = append(r.manifests, m)

	if len(errs) > 0 {
		r.quarantine(ctx, m.ID, "manifest invalid: "+joinErrors(errs))
	}
	return nil
}

// validateDesign loads the main-app module, checks its exported design, and
// collision-checks the baseline navigation for each canonical role. Fatal in
// every environment: the whole shell depends on this tree.
func (r *Reconciler) validateDesign(ctx context.Context) error {
	if r.mainApp == "" {
		r.composer = nav.NewComposer(r.design, r.svc.Hooks)
		return r.validateBaseline(ctx)
	}

	mod, err := r.svc.Loader.Load(r.mainApp)
	if err != nil {
		return atriumerr.Wrapf(err, atriumerr.CodeBootDesignInvalid,
			"loading main-app module %s", r.mainApp)
	}
	if mod.Design == nil {
		return atriumerr.Errorf(atriumerr.CodeBootDesignInvalid,
			"main-app %s exports no design", r.mainApp)
	}
	if errs := mod.Design.Validate(); len(errs) > 0 {
		return atriumerr.Errorf(atriumerr.CodeBootDesignInvalid,
			"main-app %s design invalid: %s", r.mainApp, joinErrors(errs))
	}

	r.design = mod.Design
	r.composer = nav.NewComposer(r.design, r.svc.Hooks)
	return r.validateBaseline(ctx)
}

func (r *Reconciler) validateBaseline(ctx context.Context) error {
	for _, role := range pkgplugin.CanonicalRoles() {
		_, err := r.composer.Compose(ctx, nav.Options{Context: nav.Context{Role: role}})
		if err != nil {
			return atriumerr.Wrapf(err, atriumerr.CodeBootDesignInvalid,
				"baseline navigation invalid for role %s", role)
		}
	}
	return nil
}

// checkSchema compares each live plugin's declared migrations against the
// store's applied set. A declared-but-unapplied migration means the plugin's
// tables do not exist yet, so serving it would fail on first touch.
func (r *Reconciler) checkSchema(ctx context.Context) error {
	if r.opts.Environment == types.EnvTest {
		slogctx.FromCtx(ctx).Debug("schema compatibility check skipped in test environment")
		return nil
	}

	for _, m := range r.live() {
		if len(m.Migrations) == 0 {
			continue
		}
		applied, err := r.svc.Gateway.Migrations().Applied(ctx, m.ID)
		if err != nil {
			return atriumerr.Wrapf(err, atriumerr.CodeBootSchemaIncompatible,
				"reading applied migrations for %s", m.ID)
		}
		missing := missingMigrations(m.Migrations, applied)
		if len(missing) > 0 {
			return atriumerr.Errorf(atriumerr.CodeBootSchemaIncompatible,
				"plugin %s declares unapplied migrations: %s", m.ID, strings.Join(missing, ", "))
		}
	}
	return nil
}

// gateEnterprise quarantines tier-C plugins whose required enterprise
// features are absent from the deployment.
func (r *Reconciler) gateEnterprise(ctx context.Context) {
	for _, m := range r.live() {
		if m.Tier != pkgplugin.TierC || !m.RequiresEnterprise {
			continue
		}
		missing := r.opts.Deployment.MissingEnterpriseFeatures(m.EnterpriseFeatures)
		if len(missing) > 0 {
			r.quarantine(ctx, m.ID,
				fmt.Sprintf("missing enterprise features: %s", strings.Join(missing, ", ")))
		}
	}
}

// grantCapabilities applies the enforcer decision for each live plugin. A
// denied capability alone is logged, not quarantine-worthy; the plugin keeps
// serving with whatever subset it was granted.
func (r *Reconciler) grantCapabilities(ctx context.Context) {
	log := slogctx.FromCtx(ctx)
	for _, m := range r.live() {
		d := security.DecideGrants(m.Tier, m.Capabilities, r.opts.Deployment)
		for _, denial := range d.Denied {
			log.Warn("capability denied",
				"plugin", m.ID, "capability", denial.Capability, "reason", denial.Reason)
		}
		if err := r.svc.Registry.SetGrants(m.ID, d.Granted, security.CoreGrants(d.Granted)); err != nil {
			r.quarantine(ctx, m.ID, fmt.Sprintf("storing capability grants: %s", err))
			continue
		}
		r.svc.Enforcer.RegisterPlugin(m.ID,
			security.NewCapabilitySet(d.Granted...), security.NewCapabilitySet())
	}
}

// hookClassifier decides whether a hook name names an action or a filter.
// It is seeded with the host's own hooks and extended with every live
// plugin's declared names. The two sets stay disjoint.
type hookClassifier struct {
	actions map[string]bool
	filters map[string]bool
}

func newHookClassifier() *hookClassifier {
	return &hookClassifier{
		actions: map[string]bool{resource.HookCollectProviders: true},
		filters: map[string]bool{nav.HookItems: true, nav.HookExtendSections: true},
	}
}

func (c *hookClassifier) declare(m *plugin.Manifest) error {
	for _, name := range m.DefinedHooks {
		if c.filters[name] {
			return fmt.Errorf("hook %s is already declared as a filter", name)
		}
		c.actions[name] = true
	}
	for _, name := range m.DefinedFilters {
		if c.actions[name] {
			return fmt.Errorf("hook %s is already declared as an action", name)
		}
		c.filters[name] = true
	}
	return nil
}

// kind classifies a hook name. Unknown names default to filter, the kind
// that cannot fire side effects on its own.
func (c *hookClassifier) kind(name string) hook.Kind {
	if c.actions[name] {
		return hook.KindAction
	}
	return hook.KindFilter
}

// registerHooks binds every live plugin's declared hook handlers. Two
// passes: declarations first so classification is independent of plugin
// order, then the actual bindings.
func (r *Reconciler) registerHooks(ctx context.Context) {
	classifier := newHookClassifier()

	live := r.live()
	declared := make([]*plugin.Manifest, 0, len(live))
	for _, m := range live {
		if err := classifier.declare(m); err != nil {
			r.quarantine(ctx, m.ID, fmt.Sprintf("hook declarations invalid: %s", err))
			continue
		}
		declared = append(declared, m)
	}

	for _, m := range declared {
		if reason := r.bindHooks(m, classifier); reason != "" {
			r.quarantine(ctx, m.ID, reason)
		}
	}
}

// bindHooks registers one plugin's hook bindings, returning a quarantine
// reason on the first failure. The caller's quarantine removes any bindings
// registered before the failure.
func (r *Reconciler) bindHooks(m *plugin.Manifest, classifier *hookClassifier) string {
	if len(m.Hooks) == 0 {
		return ""
	}

	mod, err := r.svc.Loader.Load(m.ID)
	if err != nil {
		return fmt.Sprintf("loading module: %s", err)
	}

	for _, b := range m.Hooks {
		handler, ok := mod.Handlers[b.Handler]
		if !ok {
			return fmt.Sprintf("hook %s references unknown handler %s", b.Hook, b.Handler)
		}

		opts := []hook.Option{hook.WithPriority(b.Priority)}
		if m.Tier == pkgplugin.TierC {
			opts = append(opts, hook.WithOwnerPrefixOnly())
		}

		var addErr error
		switch classifier.kind(b.Hook) {
		case hook.KindAction:
			fn, ok := handler.(pkgplugin.ActionFunc)
			if !ok {
				return fmt.Sprintf("handler %s bound to action hook %s is not an action func", b.Handler, b.Hook)
			}
			addErr = r.svc.Hooks.AddAction(b.Hook, m.ID, fn, opts...)
		default:
			fn, ok := handler.(pkgplugin.FilterFunc)
			if !ok {
				return fmt.Sprintf("handler %s bound to filter hook %s is not a filter func", b.Handler, b.Hook)
			}
			addErr = r.svc.Hooks.AddFilter(b.Hook, m.ID, fn, opts...)
		}
		if addErr != nil {
			return fmt.Sprintf("registering hook %s: %s", b.Hook, addErr)
		}
	}
	return ""
}

// collectResourceProviders rebuilds the shared resource registry and
// repopulates it through one strict dispatch. Any handler failure leaves
// the registry partially populated, which is unsafe to serve, so the
// failure is boot-fatal.
func (r *Reconciler) collectResourceProviders(ctx context.Context) error {
	r.svc.Resources.Rebuild()
	if err := r.svc.Hooks.DispatchActionStrict(ctx, resource.HookCollectProviders, r.svc.Resources); err != nil {
		return atriumerr.Wrapf(err, atriumerr.CodeBootPhaseFailure,
			"collecting resource providers")
	}
	return nil
}

// registerAuthzNamespaces binds each live plugin's authorization resolver.
// A namespace without the permissions.manage grant is skipped with a
// warning so a deliberately narrow deployment does not quarantine an
// otherwise healthy plugin.
func (r *Reconciler) registerAuthzNamespaces(ctx context.Context) {
	r.svc.Authz.Rebuild()

	for _, m := range r.live() {
		if m.AuthzNamespace == "" {
			continue
		}
		if m.Tier == pkgplugin.TierA {
			r.res.warnf("tier-a plugin %s declares authz namespace %s, tier-a plugins defer authorization to the main-app, skipping",
				m.ID, m.AuthzNamespace)
			continue
		}

		rec, ok := r.svc.Registry.Get(m.ID)
		if !ok || !rec.HasGrant(security.CapPermissionsManage) {
			r.res.warnf("plugin %s declares authz namespace %s without a permissions.manage grant, skipping",
				m.ID, m.AuthzNamespace)
			continue
		}

		mod, err := r.svc.Loader.Load(m.ID)
		if err != nil || mod.AuthzResolver == nil {
			r.quarantine(ctx, m.ID,
				fmt.Sprintf("authz namespace %s declared but no resolver exported", m.AuthzNamespace))
			continue
		}
		if err := r.svc.Authz.Register(m.AuthzNamespace, m.ID, mod.AuthzResolver); err != nil {
			r.quarantine(ctx, m.ID,
				fmt.Sprintf("registering authz namespace %s: %s", m.AuthzNamespace, err))
		}
	}
}

// validateNavigation recomposes the tree with hooks applied across the
// bounded context matrix. A collision introduced by hook composition cannot
// be attributed to one plugin, so any failure here is fatal in every
// environment. Safe mode skips it: plugin UI contributions are disabled and
// the baseline tree was already validated.
func (r *Reconciler) validateNavigation(ctx context.Context) error {
	if r.opts.SafeMode {
		slogctx.FromCtx(ctx).Info("safe mode active, hook-applied navigation validation skipped")
		return nil
	}

	composed, err := r.composer.Compose(ctx, nav.Options{
		ApplyHooks: true,
		Context:    nav.Context{Role: pkgplugin.RoleAdmin},
	})
	if err != nil {
		return atriumerr.Wrapf(err, atriumerr.CodeBootPhaseFailure, "composing navigation")
	}

	tiers, ents := nav.ObservedValues(composed)
	contexts, truncated := nav.Matrix(pkgplugin.CanonicalRoles(), tiers, ents, r.opts.MatrixLimit)
	if truncated {
		r.res.warnf("navigation validation matrix truncated at %d contexts", r.opts.MatrixLimit)
	}

	for _, nc := range contexts {
		if _, err := r.composer.Compose(ctx, nav.Options{ApplyHooks: true, Context: nc}); err != nil {
			return atriumerr.Wrapf(err, atriumerr.CodeBootPhaseFailure,
				"navigation invalid for role %s tier %d", nc.Role, nc.TierLevel)
		}
	}
	return nil
}

// activate promotes every still-registered plugin and snapshots the active
// set into the result.
func (r *Reconciler) activate(ctx context.Context) {
	for _, m := range r.live() {
		if err := r.svc.Registry.Activate(m.ID); err != nil {
			r.quarantine(ctx, m.ID, fmt.Sprintf("activation failed: %s", err))
		}
	}
	r.res.Active = r.svc.Registry.Active()
}

func joinErrors(errs []error) string {
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}

func missingMigrations(declared, applied []string) []string {
	have := make(map[string]bool, len(applied))
	for _, id := range applied {
		have[id] = true
	}
	var missing []string
	for _, id := range declared {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
