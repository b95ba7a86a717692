// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package plugin

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

// ManifestFileName is the manifest file looked up in each plugin directory.
const ManifestFileName = "plugin.yaml"

// DiscoverManifests scans dir for <plugin>/plugin.yaml files and parses
// them, returning manifests in lexicographic directory order so boot is
// deterministic. Validation is left to boot registration: an invalid
// manifest with a usable id gets quarantined there instead of vanishing.
// A missing directory yields an empty result, not an error.
func DiscoverManifests(dir string) ([]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, atriumerr.Wrap(err, atriumerr.CodePluginDiscoveryFailure, "reading plugins directory")
	}

	var manifests []*Manifest
	for _, name := range sortedSubdirs(entries) {
		if m := readManifest(filepath.Join(dir, name, ManifestFileName)); m != nil {
			manifests = append(manifests, m)
		}
	}
	return manifests, nil
}

func sortedSubdirs(entries []os.DirEntry) []string {
	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		if ent.IsDir() {
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)
	return names
}

// readManifest loads and parses a single manifest. Unreadable or
// unparseable files are logged and dropped; they carry no trustworthy
// identity to quarantine under.
func readManifest(path string) *Manifest {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		slog.Warn("plugin manifest unreadable", "path", path, "error", err)
		return nil
	}

	m, err := ParseManifest(data)
	if err != nil {
		slog.Warn("plugin manifest unparseable", "path", path, "error", err)
		return nil
	}
	return m
}
