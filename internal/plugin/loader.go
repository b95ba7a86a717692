// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package plugin

import (
	"sync"

	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
)

// Loader is the typed table mapping plugin ids to their in-process modules.
// It is populated explicitly at start-up; the host never discovers module
// symbols at runtime.
type Loader struct {
	mu      sync.RWMutex
	modules map[string]*pkgplugin.Module
}

// NewLoader constructs an empty Loader.
func NewLoader() *Loader {
	return &Loader{modules: make(map[string]*pkgplugin.Module)}
}

// Register binds a module to a plugin id. Nil modules and duplicate ids
// are errors.
func (l *Loader) Register(id string, mod *pkgplugin.Module) error {
	if mod == nil {
		return atriumerr.Errorf(atriumerr.CodePluginModuleInvalid, "loader: nil module for %q", id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.modules[id]; exists {
		return atriumerr.Errorf(atriumerr.CodePluginRegisterConflict,
			"loader: module %q already registered", id)
	}

	l.modules[id] = mod
	return nil
}

// Load returns the module for a plugin id.
func (l *Loader) Load(id string) (*pkgplugin.Module, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	mod, ok := l.modules[id]
	if !ok {
		return nil, atriumerr.Errorf(atriumerr.CodePluginModuleNotFound,
			"loader: no module registered for %q", id)
	}
	return mod, nil
}

// Reset clears the table. Tests use this between boot cycles.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.modules = make(map[string]*pkgplugin.Module)
}
