// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package health

import "time"

// Snapshot exposes the runtime state of the host for monitoring and
// operator visibility. All fields are point-in-time values safe to
// serialize to JSON.
type Snapshot struct {
	Status      string    `json:"status"`
	SafeMode    bool      `json:"safe_mode"`
	Environment string    `json:"environment"`
	BootedAt    time.Time `json:"booted_at"`
	Plugins     Plugins   `json:"plugins"`
}

// Plugins summarizes the registry counts after boot reconciliation.
type Plugins struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Quarantined int `json:"quarantined"`
	Disabled    int `json:"disabled"`
}
