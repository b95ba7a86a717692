// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package facade

import (
	"context"
	"sync"

	"github.com/atrium-host/atrium/internal/store"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
)

// Handle identifies one request scope. Handles increase monotonically and
// are never reused, so a stale handle can always be told apart from the
// current one. Zero is never issued.
type Handle uint64

// Scope is the per-request identity a facade binds to: the resolved tenant
// and actor plus the transaction-bound session every tenant read must go
// through.
type Scope struct {
	handle   Handle
	TenantID string
	UserID   string
	Role     pkgplugin.Role
	Session  store.TenantSession

	// RequestIP and UserAgent describe the originating request. They
	// enrich audit records and carry no authority.
	RequestIP string
	UserAgent string
}

// Handle returns the scope's arena handle.
func (s *Scope) Handle() Handle { return s.handle }

// Arena owns the live request scopes. The server acquires a slot when a
// request enters plugin code and releases it on response completion;
// facades check liveness on every call instead of trusting captured
// references.
type Arena struct {
	mu    sync.Mutex
	next  Handle
	slots map[Handle]*Scope
}

// NewArena creates an empty Arena.
func NewArena() *Arena {
	return &Arena{slots: make(map[Handle]*Scope)}
}

// Acquire issues a fresh handle and stores the scope in its slot.
func (a *Arena) Acquire(tenantID, userID string, role pkgplugin.Role, session store.TenantSession) *Scope {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.next++
	s := &Scope{
		handle:   a.next,
		TenantID: tenantID,
		UserID:   userID,
		Role:     role,
		Session:  session,
	}
	a.slots[s.handle] = s
	return s
}

// Release frees the scope's slot. Facades holding its handle fail their
// staleness check from this point on. Releasing twice is a no-op.
func (a *Arena) Release(s *Scope) {
	if s == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.slots, s.handle)
}

// Live reports whether a handle's slot is still occupied.
func (a *Arena) Live(h Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.slots[h]
	return ok
}

// LiveCount returns the number of occupied slots.
func (a *Arena) LiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots)
}

type scopeKey struct{}

// ContextWithScope threads the active request scope through ctx. The
// staleness guard compares the ctx-carried handle against the one captured
// at facade construction.
func ContextWithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFromContext returns the scope carried by ctx, if any.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok
}
