// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package security

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	slogctx "github.com/veqryn/slog-context"

	"github.com/atrium-host/atrium/internal/store"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

// auditEscalationThreshold is the run of consecutive failed audit appends
// after which the failure log escalates from Warn to Error.
const auditEscalationThreshold = 3

// grantPolicy is a plugin's deployment-time allow and deny sets.
type grantPolicy struct {
	allow CapabilitySet
	deny  CapabilitySet
}

// decision carries the outcome of the policy gates for one check. reason
// is empty when every gate passed.
type decision struct {
	reason       string
	pluginAllow  bool
	pluginDeny   bool
	requestAllow bool
}

// CheckRequest describes a runtime capability check for a plugin acting
// within one request. RequestAllow carries the grants the middleware derived
// for this request; the deployment-time grants are looked up from the
// enforcer's own registration table.
type CheckRequest struct {
	Plugin       string
	Capability   string
	TenantID     string
	UserID       string
	RequestAllow CapabilitySet
}

// Validate checks that required fields are non-empty and that Capability is
// a well-formed dotted pattern.
func (r CheckRequest) Validate() error {
	if r.Plugin == "" {
		return atriumerr.New(atriumerr.CodeSecurityCapabilityInvalid, "check request missing plugin")
	}
	if r.Capability == "" {
		return atriumerr.New(atriumerr.CodeSecurityCapabilityInvalid, "check request missing capability")
	}
	if _, err := MatchCapability(r.Capability, r.Capability); err != nil {
		return atriumerr.Wrapf(err, atriumerr.CodeSecurityCapabilityInvalid, "check request capability %q", r.Capability)
	}
	return nil
}

// EnforcerOption is a functional option for NewEnforcer.
type EnforcerOption func(*Enforcer)

// WithAuditFailClosed makes an audit write failure on the allow path block
// the call with CodeSecurityAuditFailure instead of proceeding. The default
// is best-effort auditing.
func WithAuditFailClosed(failClosed bool) EnforcerOption {
	return func(e *Enforcer) {
		e.auditFailClosed = failClosed
	}
}

// Enforcer applies deployment-granted and request-granted capability policy.
// Boot registers each active plugin's grant decision; request middleware
// calls Check with the grants it derived for the current actor.
type Enforcer struct {
	mu              sync.RWMutex
	audit           store.AuditStore
	plugins         map[string]grantPolicy
	auditFailClosed bool

	auditAllowFailCount atomic.Int64
	auditDenyFailCount  atomic.Int64
}

// NewEnforcer builds an Enforcer writing decision audits to audit. A nil
// audit store disables auditing; checks still enforce.
func NewEnforcer(audit store.AuditStore, opts ...EnforcerOption) *Enforcer {
	if audit == nil {
		slog.Warn("no audit store configured, capability checks will not be audited")
	}

	e := &Enforcer{
		audit:   audit,
		plugins: make(map[string]grantPolicy),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AuditAllowFailCount returns the current consecutive allow-path audit failure count.
func (e *Enforcer) AuditAllowFailCount() int64 {
	return e.auditAllowFailCount.Load()
}

// AuditDenyFailCount returns the current consecutive deny-path audit failure count.
func (e *Enforcer) AuditDenyFailCount() int64 {
	return e.auditDenyFailCount.Load()
}

// RegisterPlugin records a plugin's deployment-time allow and deny sets.
// Boot calls this after the granting phase; re-registering replaces the
// previous sets.
func (e *Enforcer) RegisterPlugin(name string, allow, deny CapabilitySet) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.plugins[name] = grantPolicy{allow: allow, deny: deny}
}

// UnregisterPlugin removes a plugin's capability policy. Quarantine calls
// this so a quarantined plugin cannot pass any later check.
func (e *Enforcer) UnregisterPlugin(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.plugins, name)
}

// Allowed reports whether the plugin's deployment-time grants cover cap.
// Non-auditing; the facade factory uses it when deciding which facades to
// construct for a request.
func (e *Enforcer) Allowed(plugin, cap string) bool {
	e.mu.RLock()
	policy, ok := e.plugins[plugin]
	e.mu.RUnlock()

	if !ok {
		return false
	}
	return policy.allow.Contains(cap) && !policy.deny.Contains(cap)
}

// Check enforces the deployment and request capability policy for one
// decision and audits the outcome. Denials return
// CodeSecurityCapabilityDenied.
func (e *Enforcer) Check(ctx context.Context, req CheckRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	d := e.evaluate(req)
	if d.reason != "" {
		return e.deny(ctx, req, d)
	}

	if err := e.record(ctx, req, "allowed", "ok", d); err != nil {
		e.reportAuditFailure(ctx, &e.auditAllowFailCount, "allowed", req, err)
		if e.auditFailClosed {
			return atriumerr.New(atriumerr.CodeSecurityAuditFailure, "audit append failed on allowed decision in fail-closed mode")
		}
	} else {
		e.auditAllowFailCount.Store(0)
	}

	return nil
}

// evaluate runs the policy gates in order and stops at the first denial.
func (e *Enforcer) evaluate(req CheckRequest) decision {
	e.mu.RLock()
	policy, registered := e.plugins[req.Plugin]
	e.mu.RUnlock()

	var d decision
	if !registered {
		d.reason = "plugin_not_registered"
		return d
	}
	if d.pluginAllow = policy.allow.Contains(req.Capability); !d.pluginAllow {
		d.reason = "deployment_grant_missing"
		return d
	}
	if d.pluginDeny = policy.deny.Contains(req.Capability); d.pluginDeny {
		d.reason = "deployment_deny_match"
		return d
	}
	if d.requestAllow = req.RequestAllow.Contains(req.Capability); !d.requestAllow {
		d.reason = "request_grant_missing"
	}
	return d
}

func (e *Enforcer) deny(ctx context.Context, req CheckRequest, d decision) error {
	// The caller is blocked either way, so an audit failure here never
	// masks the denial itself.
	if err := e.record(ctx, req, "denied", d.reason, d); err != nil {
		e.reportAuditFailure(ctx, &e.auditDenyFailCount, "denied", req, err)
	} else {
		e.auditDenyFailCount.Store(0)
	}

	return atriumerr.Errorf(
		atriumerr.CodeSecurityCapabilityDenied,
		"capability %q denied for plugin %q: %s",
		req.Capability,
		req.Plugin,
		d.reason,
	)
}

// reportAuditFailure tracks consecutive append failures per decision path
// and escalates the log level once they persist.
func (e *Enforcer) reportAuditFailure(ctx context.Context, counter *atomic.Int64, outcome string, req CheckRequest, err error) {
	consecutive := counter.Add(1)
	log := slogctx.FromCtx(ctx)
	emit := log.Warn
	if consecutive >= auditEscalationThreshold {
		emit = log.Error
	}
	emit("audit append failed on "+outcome+" decision",
		"plugin", req.Plugin,
		"capability", req.Capability,
		"error", err,
		"consecutive_failures", consecutive,
	)
}

func (e *Enforcer) record(ctx context.Context, req CheckRequest, result, reason string, d decision) error {
	if e.audit == nil {
		return nil
	}

	entry := &store.AuditEntry{
		ID:        "aud-" + uuid.NewString(),
		Timestamp: time.Now().UTC(),
		TenantID:  req.TenantID,
		Type:      "capability.check",
		Actor:     req.UserID,
		Resource:  req.Capability,
		Plugin:    req.Plugin,
		Meta: map[string]any{
			"result":        result,
			"reason":        reason,
			"plugin_allow":  d.pluginAllow,
			"plugin_deny":   d.pluginDeny,
			"request_allow": d.requestAllow,
		},
	}

	if err := e.audit.Append(ctx, entry); err != nil {
		return atriumerr.Wrap(err, atriumerr.CodeStoreDatabaseFailure, "append audit entry")
	}

	return nil
}
