// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

// Package hook implements the runtime's extension points: named action and
// filter hooks that plugins bind handlers to. Actions are fire-and-observe
// side effects; filters transform a value as it passes through the chain.
// Handlers run in (priority asc, registration order asc) so dispatch order
// is deterministic across boots.
package hook

import (
	"context"
	"sort"
	"strings"
	"sync"

	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
)

// Kind discriminates the two handler families.
type Kind string

const (
	KindAction Kind = "action"
	KindFilter Kind = "filter"
)

// Registration is one handler bound to a hook. Exactly one of action or
// filter is set, matching Kind.
type Registration struct {
	Hook     string
	Owner    string
	Kind     Kind
	Priority int

	seq         uint64
	ownerScoped bool
	action      pkgplugin.ActionFunc
	filter      pkgplugin.FilterFunc
}

// Option adjusts a registration before it is added.
type Option func(*Registration)

// WithPriority sets the registration's priority. Lower priorities run
// earlier; equal priorities run in registration order. The default is 0.
func WithPriority(p int) Option {
	return func(r *Registration) {
		r.Priority = p
	}
}

// WithOwnerPrefixOnly restricts the registration to hooks inside the owner's
// own namespace ("owner:"). Boot applies this to low-trust plugins so they
// cannot attach handlers to runtime or foreign hooks.
func WithOwnerPrefixOnly() Option {
	return func(r *Registration) {
		r.ownerScoped = true
	}
}

// Registry holds all hook registrations. It is populated during boot
// reconciliation and read at dispatch time; the mutex exists for quarantine
// cleanup and tests.
type Registry struct {
	mu      sync.RWMutex
	actions map[string][]*Registration
	filters map[string][]*Registration
	seq     uint64
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string][]*Registration),
		filters: make(map[string][]*Registration),
	}
}

// AddAction binds an action handler to a hook.
func (r *Registry) AddAction(hook, owner string, fn pkgplugin.ActionFunc, opts ...Option) error {
	if fn == nil {
		return atriumerr.Errorf(atriumerr.CodeHookHandlerInvalid,
			"hook %s: action handler must not be nil", hook)
	}
	reg := &Registration{Hook: hook, Owner: owner, Kind: KindAction, action: fn}
	return r.add(reg, opts)
}

// AddFilter binds a filter handler to a hook.
func (r *Registry) AddFilter(hook, owner string, fn pkgplugin.FilterFunc, opts ...Option) error {
	if fn == nil {
		return atriumerr.Errorf(atriumerr.CodeHookHandlerInvalid,
			"hook %s: filter handler must not be nil", hook)
	}
	reg := &Registration{Hook: hook, Owner: owner, Kind: KindFilter, filter: fn}
	return r.add(reg, opts)
}

func (r *Registry) add(reg *Registration, opts []Option) error {
	if strings.TrimSpace(reg.Hook) == "" {
		return atriumerr.Errorf(atriumerr.CodeHookNameInvalid, "hook name must not be empty")
	}
	if strings.TrimSpace(reg.Owner) == "" {
		return atriumerr.Errorf(atriumerr.CodeHookNameInvalid,
			"hook %s: owner must not be empty", reg.Hook)
	}
	for _, opt := range opts {
		opt(reg)
	}
	if reg.ownerScoped && !strings.HasPrefix(reg.Hook, reg.Owner+":") {
		return atriumerr.Errorf(atriumerr.CodeHookPrefixForbidden,
			"hook %s: owner %q may only register hooks in its own namespace %q",
			reg.Hook, reg.Owner, reg.Owner+":")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	reg.seq = r.seq

	switch reg.Kind {
	case KindAction:
		r.actions[reg.Hook] = insertOrdered(r.actions[reg.Hook], reg)
	case KindFilter:
		r.filters[reg.Hook] = insertOrdered(r.filters[reg.Hook], reg)
	}
	return nil
}

// insertOrdered places reg after every existing entry whose priority is less
// than or equal to reg's. Registration sequence breaks priority ties.
func insertOrdered(list []*Registration, reg *Registration) []*Registration {
	i := sort.Search(len(list), func(j int) bool { return list[j].Priority > reg.Priority })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = reg
	return list
}

// DispatchAction runs every action handler bound to hook in order. Handler
// errors are collected, not fatal: a failing handler never prevents later
// handlers from running. The collected errors are returned joined.
func (r *Registry) DispatchAction(ctx context.Context, hook string, args ...any) error {
	var errs []error
	for _, reg := range r.snapshotActions(hook) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, atriumerr.Wrapf(err, atriumerr.CodeHookDispatchFailure,
				"hook %s: dispatch aborted", hook))
			break
		}
		if err := reg.action(ctx, args...); err != nil {
			errs = append(errs, atriumerr.Wrapf(err, atriumerr.CodeHookDispatchFailure,
				"hook %s: handler owned by %s failed", hook, reg.Owner))
		}
	}
	return atriumerr.Join(errs...)
}

// DispatchActionStrict runs action handlers in order and stops at the first
// error. Boot uses this for phases where a partial result is worse than none.
func (r *Registry) DispatchActionStrict(ctx context.Context, hook string, args ...any) error {
	for _, reg := range r.snapshotActions(hook) {
		if err := ctx.Err(); err != nil {
			return atriumerr.Wrapf(err, atriumerr.CodeHookDispatchFailure,
				"hook %s: dispatch aborted", hook)
		}
		if err := reg.action(ctx, args...); err != nil {
			return atriumerr.Wrapf(err, atriumerr.CodeHookDispatchFailure,
				"hook %s: handler owned by %s failed", hook, reg.Owner)
		}
	}
	return nil
}

// ApplyFilters pipes value through every filter handler bound to hook in
// order and returns the final value. A filter error aborts the pipeline and
// is returned; the partially filtered value is discarded.
func (r *Registry) ApplyFilters(ctx context.Context, hook string, value any, args ...any) (any, error) {
	for _, reg := range r.snapshotFilters(hook) {
		if err := ctx.Err(); err != nil {
			return nil, atriumerr.Wrapf(err, atriumerr.CodeHookFilterFailure,
				"hook %s: filter chain aborted", hook)
		}
		next, err := reg.filter(ctx, value, args...)
		if err != nil {
			return nil, atriumerr.Wrapf(err, atriumerr.CodeHookFilterFailure,
				"hook %s: filter owned by %s failed", hook, reg.Owner)
		}
		value = next
	}
	return value, nil
}

// RemoveOwner unregisters every hook handler owned by pluginID and returns
// how many were removed. Quarantine calls this so an isolated plugin's
// handlers never run again within the boot cycle.
func (r *Registry) RemoveOwner(pluginID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, m := range []map[string][]*Registration{r.actions, r.filters} {
		for hook, regs := range m {
			kept := regs[:0]
			for _, reg := range regs {
				if reg.Owner == pluginID {
					removed++
					continue
				}
				kept = append(kept, reg)
			}
			if len(kept) == 0 {
				delete(m, hook)
			} else {
				m[hook] = kept
			}
		}
	}
	return removed
}

// Reset clears all registrations. Tests use this between boot cycles.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actions = make(map[string][]*Registration)
	r.filters = make(map[string][]*Registration)
	r.seq = 0
}

func (r *Registry) snapshotActions(hook string) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Registration, len(r.actions[hook]))
	copy(out, r.actions[hook])
	return out
}

func (r *Registry) snapshotFilters(hook string) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Registration, len(r.filters[hook]))
	copy(out, r.filters[hook])
	return out
}
