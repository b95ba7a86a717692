// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package boot

import "fmt"

// QuarantinedPlugin pairs an isolated plugin with the reason boot set it
// aside.
type QuarantinedPlugin struct {
	ID     string
	Reason string
}

// Result is the outcome of one boot reconciliation. A fatal phase failure
// returns an error instead; Result only describes boots that completed.
type Result struct {
	// Success is true once every phase ran. Individual plugins may still
	// have been quarantined or disabled.
	Success bool
	// Total counts every manifest presented to boot, including manifests
	// that were disabled or failed registration.
	Total int
	// Active lists the plugins serving traffic, in registration order.
	Active []string
	// Quarantined lists isolated plugins with reasons, in the order the
	// failures happened.
	Quarantined []QuarantinedPlugin
	// Disabled lists plugins excluded by safe mode before registration.
	Disabled []string
	// Warnings carries non-fatal findings an operator should read.
	Warnings []string
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
