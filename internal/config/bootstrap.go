// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package config

import (
	_ "embed"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

//go:embed atrium.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/atrium/atrium.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", atriumerr.Errorf(atriumerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "atrium", "atrium.yaml"), nil
}

// BootstrapConfig writes the commented default config on first run and
// reports the path it wrote. It reports "" when the file already exists
// or could not be written; the host must come up on defaults even without
// a usable home directory, so nothing here is fatal.
func BootstrapConfig() string {
	path, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		// Present, or unreadable; either way there is nothing to write.
		return ""
	}
	if err := writeDefaultConfig(path); err != nil {
		slog.Debug("skipping config bootstrap", "path", path, "error", err)
		return ""
	}
	slog.Info("created default config", "path", path)
	return path
}

func writeDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, DefaultConfigYAML, 0o600)
}
