// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/atrium-host/atrium/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", newGateway)
}

func newGateway(dataPath string) (store.Gateway, error) {
	if dataPath == "" {
		dataPath = "."
	}
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return NewGateway(filepath.Join(dataPath, "atrium.db"))
}
