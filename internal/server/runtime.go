// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package server

import (
	"time"

	"github.com/atrium-host/atrium/internal/boot"
	"github.com/atrium-host/atrium/internal/facade"
	"github.com/atrium-host/atrium/internal/plugin"
	"github.com/atrium-host/atrium/internal/security"
	"github.com/atrium-host/atrium/internal/store"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	"github.com/atrium-host/atrium/pkg/types"
)

// Runtime bundles the booted registries and per-request machinery the
// server serves from. Boot reconciliation populates every field before
// the listener starts; the server only reads them.
type Runtime struct {
	Registry      *plugin.Registry
	Gateway       store.Gateway
	Enforcer      *security.Enforcer
	Facades       *facade.Factory
	Arena         *facade.Arena
	Authenticator Authenticator

	BootResult  *boot.Result
	Environment types.Environment
	SafeMode    bool
	BootedAt    time.Time
}

func (rt Runtime) validate() error {
	if rt.Registry == nil {
		return atriumerr.New(atriumerr.CodeServerConfigInvalid, "plugin registry is required")
	}
	if rt.Gateway == nil {
		return atriumerr.New(atriumerr.CodeServerConfigInvalid, "store gateway is required")
	}
	if rt.Enforcer == nil {
		return atriumerr.New(atriumerr.CodeServerConfigInvalid, "capability enforcer is required")
	}
	if rt.Facades == nil {
		return atriumerr.New(atriumerr.CodeServerConfigInvalid, "facade factory is required")
	}
	if rt.Arena == nil {
		return atriumerr.New(atriumerr.CodeServerConfigInvalid, "facade arena is required")
	}
	if rt.Authenticator == nil {
		return atriumerr.New(atriumerr.CodeServerConfigInvalid, "authenticator is required")
	}
	if rt.BootResult == nil {
		return atriumerr.New(atriumerr.CodeServerConfigInvalid, "boot result is required")
	}
	return nil
}
