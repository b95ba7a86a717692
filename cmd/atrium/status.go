// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package main

import (
	"fmt"

	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	"github.com/atrium-host/atrium/pkg/health"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show host status",
		Long:  "Query a running host's health endpoint and summarize its plugin set.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "127.0.0.1:8180", "host address to check")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	var snap health.Snapshot
	err := newHostClient(addr).getJSON("/health", &snap)
	switch {
	case atriumerr.HasCode(err, atriumerr.CodeCLIHostNotRunning):
		_, _ = fmt.Fprintf(out, "Host at %s is not running (connection refused)\n", addr)
		return nil
	case err != nil:
		_, _ = fmt.Fprintf(out, "Host at %s: %s\n", addr, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Host at %s: %s\n", addr, snap.Status)
	if snap.SafeMode {
		_, _ = fmt.Fprintln(out, "Safe mode is active")
	}
	_, _ = fmt.Fprintf(out, "Plugins: %d active, %d quarantined, %d disabled (%d total)\n",
		snap.Plugins.Active, snap.Plugins.Quarantined, snap.Plugins.Disabled, snap.Plugins.Total)
	return nil
}
