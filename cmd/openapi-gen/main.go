// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

// Command openapi-gen serializes the admin API's OpenAPI document. The
// host serves the same document at /openapi.json; this tool exists so
// CI can commit a snapshot without starting a listener.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atrium-host/atrium/internal/boot"
	"github.com/atrium-host/atrium/internal/facade"
	"github.com/atrium-host/atrium/internal/hook"
	"github.com/atrium-host/atrium/internal/plugin"
	"github.com/atrium-host/atrium/internal/resource"
	"github.com/atrium-host/atrium/internal/security"
	"github.com/atrium-host/atrium/internal/server"
	"github.com/atrium-host/atrium/internal/store"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	"github.com/atrium-host/atrium/pkg/types"
)

func main() {
	out := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		out = os.Args[1]
	}

	if err := run(out); err != nil {
		fmt.Fprintln(os.Stderr, "openapi-gen:", err)
		os.Exit(1)
	}
}

func run(out string) error {
	spec, err := generateSpec()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if err := os.WriteFile(out, spec, 0o644); err != nil {
		return fmt.Errorf("writing spec: %w", err)
	}
	fmt.Printf("wrote OpenAPI spec to %s\n", out)
	return nil
}

// generateSpec creates a server over empty runtime registries and extracts
// the OpenAPI spec huma generates from the Go type annotations. Handlers
// are never invoked during spec generation.
func generateSpec() ([]byte, error) {
	gw := store.NewMemoryGateway()
	arena := facade.NewArena()

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, server.Runtime{
		Registry:      plugin.NewRegistry(),
		Gateway:       gw,
		Enforcer:      security.NewEnforcer(gw.AuditLog()),
		Facades:       facade.NewFactory(arena, hook.NewRegistry(), resource.NewRegistry(), gw.AuditLog()),
		Arena:         arena,
		Authenticator: server.HeaderAuthenticator{},
		BootResult:    &boot.Result{Success: true},
		Environment:   types.EnvTest,
		BootedAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, atriumerr.Errorf(atriumerr.CodeCLISetupFailure, "creating server: %w", err)
	}

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}
