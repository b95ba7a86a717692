// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

// Package authz routes authorization questions to plugin-owned resolvers.
// Each plugin may claim at most one namespace via its manifest; the boot
// reconciler registers the resolver only after the plugin has been granted
// the permission-management capability.
package authz

import (
	"context"
	"slices"
	"strings"
	"sync"

	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
)

type binding struct {
	resolver pkgplugin.AuthzResolver
	owner    string
}

// Registry maps authorization namespaces to resolvers. Registration happens
// during boot; request-time access is read-only.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]binding
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]binding)}
}

// Rebuild drops every binding so a boot attempt starts from a clean table.
func (r *Registry) Rebuild() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = make(map[string]binding)
}

// Register binds a resolver for a namespace on behalf of owner. Namespaces
// are global; a second claim for the same namespace fails naming the prior
// owner.
func (r *Registry) Register(namespace, owner string, resolver pkgplugin.AuthzResolver) error {
	if namespace == "" || owner == "" {
		return atriumerr.New(atriumerr.CodeAuthzResolverInvalid,
			"namespace and owner must not be empty")
	}
	if resolver == nil {
		return atriumerr.New(atriumerr.CodeAuthzResolverInvalid,
			"resolver for namespace "+namespace+" is nil",
			atriumerr.FieldPlugin(owner))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.bindings[namespace]; ok {
		return atriumerr.Errorf(atriumerr.CodeAuthzNamespaceConflict,
			"authz namespace %q already claimed by %s", namespace, prior.owner)
	}
	r.bindings[namespace] = binding{resolver: resolver, owner: owner}
	return nil
}

// Resolve routes req to the resolver owning the namespace prefix of
// req.Ability. The resolver runs outside the registry lock.
func (r *Registry) Resolve(ctx context.Context, req pkgplugin.AuthzRequest) (pkgplugin.AuthzResult, error) {
	ns, _, found := strings.Cut(req.Ability, ":")
	if !found || ns == "" {
		return pkgplugin.AuthzResult{}, atriumerr.Errorf(atriumerr.CodeAuthzNamespaceNotFound,
			"ability %q carries no namespace prefix", req.Ability)
	}

	r.mu.RLock()
	b, ok := r.bindings[ns]
	r.mu.RUnlock()

	if !ok {
		return pkgplugin.AuthzResult{}, atriumerr.Errorf(atriumerr.CodeAuthzNamespaceNotFound,
			"no resolver registered for namespace %q", ns)
	}

	res, err := b.resolver(ctx, req)
	if err != nil {
		return pkgplugin.AuthzResult{}, atriumerr.Wrapf(err, atriumerr.CodeAuthzResolveFailure,
			"resolving %s for user %s", req.Ability, req.UserID)
	}
	return res, nil
}

// Owner returns the plugin that claimed a namespace.
func (r *Registry) Owner(namespace string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[namespace]
	return b.owner, ok
}

// Namespaces returns the claimed namespaces in sorted order.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	namespaces := make([]string, 0, len(r.bindings))
	for ns := range r.bindings {
		namespaces = append(namespaces, ns)
	}
	slices.Sort(namespaces)
	return namespaces
}
