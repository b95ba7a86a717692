// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package store

import "time"

// --- User types ---

// User is a tenant member as seen through a TenantSession. Role is the
// user's role within that tenant, not a global attribute.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// --- Notification types ---

// Notification is one message queued for a tenant member. Type carries the
// originating plugin's namespace prefix, enforced by the facade layer.
type Notification struct {
	ID          string
	RecipientID string
	Type        string
	Title       string
	Body        string
	Metadata    map[string]any
	CreatedAt   time.Time
}

// --- Audit types ---

// AuditEntry records one security-relevant event.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	TenantID  string
	Type      string
	Actor     string
	Resource  string
	Plugin    string
	Meta      map[string]any
}

// AuditFilter specifies criteria for querying audit entries.
type AuditFilter struct {
	TenantID string
	Type     string
	Actor    string
	Plugin   string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}
