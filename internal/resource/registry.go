// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

// Package resource maintains the resource-provider registry. A provider maps
// a resource type to a tenant-scoped loader function. The registry is
// rebuilt from scratch on every boot, so providers from a previous attempt
// never survive into the next.
package resource

import (
	"context"
	"slices"
	"sync"

	"github.com/atrium-host/atrium/internal/store"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

// HookCollectProviders is the strict action hook boot dispatches to collect
// providers. Handlers receive the *Registry as the first argument and call
// RegisterProvider on it.
const HookCollectProviders = "core:collect-resources"

// Provider loads one resource of a fixed type, reading through the
// request's tenant session.
type Provider func(ctx context.Context, session store.TenantSession, id string) (any, error)

type entry struct {
	provider Provider
	owner    string
}

// Registry maps resource types to providers. Registration happens during the
// boot collection phase; request-time access is read-only.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]entry)}
}

// Rebuild drops every provider. Boot calls it before dispatching the
// collection hook so each attempt starts from a clean table.
func (r *Registry) Rebuild() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = make(map[string]entry)
}

// RegisterProvider binds a provider for a resource type on behalf of owner.
// Resource types are global across plugins; a second registration for the
// same type fails naming the prior owner.
func (r *Registry) RegisterProvider(resourceType, owner string, p Provider) error {
	if resourceType == "" || owner == "" {
		return atriumerr.New(atriumerr.CodeResourceProviderInvalid,
			"resource type and owner must not be empty")
	}
	if p == nil {
		return atriumerr.New(atriumerr.CodeResourceProviderInvalid,
			"provider for resource type "+resourceType+" is nil",
			atriumerr.FieldPlugin(owner))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.providers[resourceType]; ok {
		return atriumerr.Errorf(atriumerr.CodeResourceProviderConflict,
			"resource type %q already provided by %s", resourceType, prior.owner)
	}
	r.providers[resourceType] = entry{provider: p, owner: owner}
	return nil
}

// Resolve loads a resource by type and id through the given tenant session.
// The provider runs outside the registry lock.
func (r *Registry) Resolve(ctx context.Context, resourceType string, session store.TenantSession, id string) (any, error) {
	r.mu.RLock()
	e, ok := r.providers[resourceType]
	r.mu.RUnlock()

	if !ok {
		return nil, atriumerr.Errorf(atriumerr.CodeResourceProviderNotFound,
			"no provider for resource type %q", resourceType)
	}

	v, err := e.provider(ctx, session, id)
	if err != nil {
		return nil, atriumerr.Wrapf(err, atriumerr.CodeResourceResolveFailure,
			"resolving %s %s", resourceType, id)
	}
	return v, nil
}

// Owner returns the plugin that provides a resource type.
func (r *Registry) Owner(resourceType string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.providers[resourceType]
	return e.owner, ok
}

// Types returns the registered resource types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
