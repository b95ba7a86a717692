// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package store

// StorageConfig controls which backend the factory uses.
type StorageConfig struct {
	Backend string // "sqlite" (default) or "memory".
	Path    string // Data directory for file-backed backends.
}
