// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

// Package store defines the persistence interfaces the runtime is written
// against and a process-local memory backend. Tenant-scoped access always
// goes through a TenantSession so row-level isolation is decided once, at
// session creation, instead of per query.
package store

import "context"

// Gateway is the top-level storage handle the host owns for its lifetime.
type Gateway interface {
	// TenantSession opens a transaction-bound handle scoped to one tenant.
	// Every read and write through the session sees only that tenant's rows.
	TenantSession(ctx context.Context, tenantID string) (TenantSession, error)
	AuditLog() AuditStore
	Migrations() MigrationStore
	Close() error
}

// TenantSession is the per-request tenant handle. The middleware opens one
// before the plugin handler runs and closes it afterwards; facades must
// never read tenant data through anything else.
type TenantSession interface {
	TenantID() string
	Users() UserStore
	Permissions() PermissionStore
	Notifications() NotificationStore

	// Commit makes the session's writes durable.
	Commit() error
	// Close releases the session. Writes that were not committed are
	// rolled back. Close after Commit is a no-op.
	Close() error
}

// UserStore reads the membership of the session's tenant.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	// FindByIDs returns the users that exist and are members; ids without a
	// match are omitted, not an error.
	FindByIDs(ctx context.Context, ids []string) ([]*User, error)
	// Search matches name or email case-insensitively. limit <= 0 falls
	// back to a server-side default.
	Search(ctx context.Context, query string, limit int) ([]*User, error)
	IsMember(ctx context.Context, userID string) (bool, error)
}

// PermissionStore manages per-user ability grants within the tenant.
type PermissionStore interface {
	Check(ctx context.Context, userID, ability string) (bool, error)
	Grant(ctx context.Context, userID, ability string) error
	Revoke(ctx context.Context, userID, ability string) error
}

// NotificationStore persists notifications for tenant members.
type NotificationStore interface {
	Insert(ctx context.Context, n *Notification) error
	InsertBatch(ctx context.Context, batch []*Notification) error
}

// AuditStore manages the append-only audit log. Not tenant-bound: boot and
// cross-tenant administration write here too.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// MigrationStore tracks which plugin schema migrations have been applied.
// Boot compares a manifest's declared migrations against Applied to decide
// schema compatibility.
type MigrationStore interface {
	Applied(ctx context.Context, pluginID string) ([]string, error)
	MarkApplied(ctx context.Context, pluginID, migrationID string) error
}
