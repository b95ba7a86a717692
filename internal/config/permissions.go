// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// readableByOthers reports whether the group- or world-read bit is set.
func readableByOthers(perm fs.FileMode) bool {
	return perm&0o044 != 0
}

// WarnInsecurePermissions logs a warning when the config file at path can
// be read by accounts other than its owner. The deployment section lists
// licensed enterprise features and backing services, which operators
// usually do not want exposed host-wide. Startup proceeds either way; an
// empty path means the host runs on defaults and there is nothing to
// check.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		// Load already reported missing or unreadable files.
		slog.Debug("skipping config permission check", "path", path, "error", err)
		return
	}
	if !readableByOthers(info.Mode().Perm()) {
		return
	}
	slog.Warn("config file has insecure permissions, other accounts on this host can read it",
		"path", path,
		"mode", info.Mode(),
		"recommended", "0600",
	)
}
