// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/atrium-host/atrium/internal/plugin"
	"github.com/atrium-host/atrium/internal/server"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	"github.com/spf13/cobra"
)

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect installed plugins",
		Long:  "List and inspect plugins on a running host, or validate manifests in a local directory.",
	}

	cmd.AddCommand(
		newPluginsListCmd(),
		newPluginsInspectCmd(),
		newPluginsValidateCmd(),
	)

	return cmd
}

func newPluginsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plugins on a running host",
		RunE:  runPluginsList,
	}

	cmd.Flags().String("address", "127.0.0.1:8180", "host address to query")

	return cmd
}

func runPluginsList(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	hc := newHostClient(addr)
	var body struct {
		Plugins []server.PluginSummary `json:"plugins"`
	}
	if err := hc.getJSON("/api/v1/plugins", &body); err != nil {
		if atriumerr.HasCode(err, atriumerr.CodeCLIHostNotRunning) {
			_, _ = fmt.Fprintf(out, "Host at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	if len(body.Plugins) == 0 {
		_, _ = fmt.Fprintln(out, "No plugins registered")
		return nil
	}

	_, _ = fmt.Fprintf(out, "%-20s %-12s %-10s %s\n", "ID", "VERSION", "TIER", "STATUS")
	for _, p := range body.Plugins {
		status := p.Status
		if p.Core {
			status += " (core)"
		}
		_, _ = fmt.Fprintf(out, "%-20s %-12s %-10s %s\n", p.ID, p.Version, p.Tier, status)
	}
	return nil
}

func newPluginsInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [id]",
		Short: "Show one plugin's registry record",
		Args:  cobra.ExactArgs(1),
		RunE:  runPluginsInspect,
	}

	cmd.Flags().String("address", "127.0.0.1:8180", "host address to query")

	return cmd
}

func runPluginsInspect(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	hc := newHostClient(addr)
	var detail server.PluginDetail
	if err := hc.getJSON("/api/v1/plugins/"+args[0], &detail); err != nil {
		if atriumerr.HasCode(err, atriumerr.CodeCLIHostNotRunning) {
			_, _ = fmt.Fprintf(out, "Host at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	_, _ = fmt.Fprintf(out, "%-20s %s\n", "ID:", detail.ID)
	_, _ = fmt.Fprintf(out, "%-20s %s\n", "Package:", detail.Package)
	_, _ = fmt.Fprintf(out, "%-20s %s\n", "Version:", detail.Version)
	_, _ = fmt.Fprintf(out, "%-20s %s\n", "Tier:", detail.Tier)
	_, _ = fmt.Fprintf(out, "%-20s %s\n", "Status:", detail.Status)
	if detail.QuarantineReason != "" {
		_, _ = fmt.Fprintf(out, "%-20s %s\n", "Quarantine reason:", detail.QuarantineReason)
	}
	if len(detail.Capabilities) > 0 {
		_, _ = fmt.Fprintf(out, "%-20s %s\n", "Capabilities:", strings.Join(detail.Capabilities, ", "))
	}
	if len(detail.Granted) > 0 {
		_, _ = fmt.Fprintf(out, "%-20s %s\n", "Granted:", strings.Join(detail.Granted, ", "))
	}
	if detail.AuthzNamespace != "" {
		_, _ = fmt.Fprintf(out, "%-20s %s\n", "Authz namespace:", detail.AuthzNamespace)
	}
	return nil
}

func newPluginsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate plugin manifests in a directory",
		Long:  "Parse and validate every <plugin>/plugin.yaml under the given directory without starting a host.",
		Args:  cobra.ExactArgs(1),
		RunE:  runPluginsValidate,
	}
}

func runPluginsValidate(cmd *cobra.Command, args []string) error {
	dir := args[0]
	out := cmd.OutOrStdout()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return atriumerr.Errorf(atriumerr.CodeCLIInputInvalid, "reading plugins directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	checked, invalid := 0, 0
	for _, name := range names {
		path := filepath.Join(dir, name, plugin.ManifestFileName)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			_, _ = fmt.Fprintf(out, "%-20s unreadable: %s\n", name+":", err)
			invalid++
			continue
		}

		checked++
		m, err := plugin.ParseManifest(data)
		if err != nil {
			_, _ = fmt.Fprintf(out, "%-20s unparseable: %s\n", name+":", err)
			invalid++
			continue
		}
		if errs := m.Validate(); len(errs) > 0 {
			_, _ = fmt.Fprintf(out, "%-20s invalid\n", name+":")
			for _, e := range errs {
				_, _ = fmt.Fprintf(out, "  - %s\n", e)
			}
			invalid++
			continue
		}
		_, _ = fmt.Fprintf(out, "%-20s ok (%s %s, tier %s)\n", name+":", m.ID, m.Version, m.Tier)
	}

	if invalid > 0 {
		return atriumerr.Errorf(atriumerr.CodeCLIInputInvalid,
			"%d manifest(s) failed validation", invalid)
	}

	_, _ = fmt.Fprintf(out, "%d manifest(s) ok\n", checked)
	return nil
}
