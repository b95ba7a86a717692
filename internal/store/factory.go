// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package store

import (
	"sync"

	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

// GatewayFactory creates a Gateway given the configured data path.
type GatewayFactory func(path string) (Gateway, error)

// Backends self-register from init() in their packages; the blank
// import in the command wiring decides which ones are compiled in.
var (
	backendsMu sync.RWMutex
	backends   = map[string]GatewayFactory{}
)

// RegisterBackend installs a factory for a named storage backend.
// Goroutine-safe; a later registration replaces an earlier one.
func RegisterBackend(name string, gw GatewayFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = gw
}

// NewGateway creates the storage gateway for the configured backend. An
// absent config or empty backend selects sqlite, matching the config
// loader default.
func NewGateway(cfg *StorageConfig) (Gateway, error) {
	name, path := "sqlite", ""
	if cfg != nil {
		if cfg.Backend != "" {
			name = cfg.Backend
		}
		path = cfg.Path
	}

	backendsMu.RLock()
	build, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, atriumerr.Errorf(atriumerr.CodeStoreBackendUnsupported,
			"unsupported storage backend: %q", name)
	}
	return build(path)
}
