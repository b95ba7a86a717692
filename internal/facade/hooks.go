// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package facade

import (
	"context"
	"slices"
	"strings"

	"github.com/atrium-host/atrium/internal/hook"
	"github.com/atrium-host/atrium/internal/plugin"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

// Hooks lets a plugin dispatch extension points it declared in its manifest.
// Dispatching a hook another plugin owns, or one the manifest never listed,
// is rejected before the registry is touched.
type Hooks struct {
	base
	pluginID string
	manifest *plugin.Manifest
	registry *hook.Registry
}

// DispatchAction runs every handler registered on one of this plugin's
// declared action hooks.
func (h *Hooks) DispatchAction(ctx context.Context, hookName string, args ...any) error {
	if _, err := h.guard(ctx); err != nil {
		return err
	}
	if err := h.ownNamespace(hookName); err != nil {
		return err
	}
	if !slices.Contains(h.manifest.DefinedHooks, hookName) {
		return atriumerr.Errorf(atriumerr.CodeFacadeHookUndeclared,
			"action hook %q is not declared in the %s manifest", hookName, h.pluginID)
	}
	return h.registry.DispatchAction(ctx, hookName, args...)
}

// ApplyFilters threads value through every handler registered on one of this
// plugin's declared filter hooks and returns the final value.
func (h *Hooks) ApplyFilters(ctx context.Context, hookName string, value any, args ...any) (any, error) {
	if _, err := h.guard(ctx); err != nil {
		return nil, err
	}
	if err := h.ownNamespace(hookName); err != nil {
		return nil, err
	}
	if !slices.Contains(h.manifest.DefinedFilters, hookName) {
		return nil, atriumerr.Errorf(atriumerr.CodeFacadeHookUndeclared,
			"filter hook %q is not declared in the %s manifest", hookName, h.pluginID)
	}
	return h.registry.ApplyFilters(ctx, hookName, value, args...)
}

func (h *Hooks) ownNamespace(hookName string) error {
	if !strings.HasPrefix(hookName, h.pluginID+":") {
		return atriumerr.Errorf(atriumerr.CodeFacadeNamespaceForbidden,
			"hook %q must use the %s: namespace", hookName, h.pluginID)
	}
	return nil
}
