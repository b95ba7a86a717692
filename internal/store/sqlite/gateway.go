// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

// Package sqlite implements the store interfaces on a single SQLite
// database. Tenant isolation is enforced by binding the session's tenant id
// into every statement of the session transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/atrium-host/atrium/internal/store"
)

// Compile-time interface checks.
var (
	_ store.Gateway        = (*Gateway)(nil)
	_ store.AuditStore     = (*auditStore)(nil)
	_ store.MigrationStore = (*migrationStore)(nil)
)

// Gateway implements store.Gateway backed by one SQLite database.
type Gateway struct {
	db         *sql.DB
	audit      *auditStore
	migrations *migrationStore
}

// NewGateway opens (or creates) the SQLite database at dbPath and
// initialises the users, tenant_members, permissions, notifications,
// audit_log, and plugin_migrations tables.
func NewGateway(dbPath string) (*Gateway, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging db: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating db: %w", err)
	}

	return &Gateway{
		db:         db,
		audit:      &auditStore{db: db},
		migrations: &migrationStore{db: db},
	}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tenant_members (
	tenant_id TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	role      TEXT NOT NULL DEFAULT 'user',
	PRIMARY KEY (tenant_id, user_id),
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_tenant_members_user ON tenant_members(user_id);

CREATE TABLE IF NOT EXISTS permissions (
	tenant_id  TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	ability    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (tenant_id, user_id, ability)
);

CREATE TABLE IF NOT EXISTS notifications (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	recipient_id TEXT NOT NULL,
	type         TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '{}',
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient
	ON notifications(tenant_id, recipient_id);

CREATE TABLE IF NOT EXISTS audit_log (
	id        TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	tenant_id TEXT NOT NULL DEFAULT '',
	type      TEXT NOT NULL DEFAULT '',
	actor     TEXT NOT NULL DEFAULT '',
	resource  TEXT NOT NULL DEFAULT '',
	plugin    TEXT NOT NULL DEFAULT '',
	meta      TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_tenant    ON audit_log(tenant_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_type      ON audit_log(type);

CREATE TABLE IF NOT EXISTS plugin_migrations (
	plugin_id    TEXT NOT NULL,
	migration_id TEXT NOT NULL,
	applied_at   TEXT NOT NULL,
	PRIMARY KEY (plugin_id, migration_id)
);
`
	_, err := db.Exec(ddl)
	return err
}

// AuditLog returns the AuditStore sub-store.
func (g *Gateway) AuditLog() store.AuditStore { return g.audit }

// Migrations returns the MigrationStore sub-store.
func (g *Gateway) Migrations() store.MigrationStore { return g.migrations }

// Close closes the underlying database connection.
func (g *Gateway) Close() error { return g.db.Close() }

// UpsertUser creates or updates a user record. Membership is managed
// separately via AddMember. Administrative helper; request-path code reads
// users through tenant sessions only.
func (g *Gateway) UpsertUser(ctx context.Context, u *store.User) error {
	if u == nil || u.ID == "" {
		return fmt.Errorf("upsert user: %w", store.ErrInvalidInput)
	}
	const q = `INSERT INTO users (id, name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email, updated_at = excluded.updated_at`

	_, err := g.db.ExecContext(ctx, q,
		u.ID, u.Name, u.Email, formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", u.ID, err)
	}
	return nil
}

// AddMember adds a user to a tenant with a role, updating the role if the
// membership already exists.
func (g *Gateway) AddMember(ctx context.Context, tenantID, userID, role string) error {
	if tenantID == "" || userID == "" {
		return fmt.Errorf("add member: %w", store.ErrInvalidInput)
	}
	const q = `INSERT INTO tenant_members (tenant_id, user_id, role) VALUES (?, ?, ?)
ON CONFLICT(tenant_id, user_id) DO UPDATE SET role = excluded.role`

	_, err := g.db.ExecContext(ctx, q, tenantID, userID, role)
	if err != nil {
		return fmt.Errorf("adding member %s to tenant %s: %w", userID, tenantID, err)
	}
	return nil
}

// Notifications lists stored notifications for a tenant in insertion order.
// Administrative helper; delivery surfaces read through their own channels.
func (g *Gateway) Notifications(ctx context.Context, tenantID string) ([]*store.Notification, error) {
	const q = `SELECT id, recipient_id, type, title, body, metadata, created_at
FROM notifications WHERE tenant_id = ? ORDER BY rowid ASC`

	rows, err := g.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var notes []*store.Notification
	for rows.Next() {
		var n store.Notification
		var metaJSON, created string
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Body, &metaJSON, &created); err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parsing notification %s created_at: %w", n.ID, err)
		}
		if metaJSON != "" && metaJSON != "{}" {
			if err := json.Unmarshal([]byte(metaJSON), &n.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshalling notification metadata: %w", err)
			}
		}
		notes = append(notes, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}
	return notes, nil
}

// ---------- auditStore ----------

type auditStore struct {
	db *sql.DB
}

func (s *auditStore) Append(ctx context.Context, entry *store.AuditEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("audit append: %w", store.ErrInvalidInput)
	}

	meta := "{}"
	if entry.Meta != nil {
		b, err := json.Marshal(entry.Meta)
		if err != nil {
			return fmt.Errorf("marshalling audit meta: %w", err)
		}
		meta = string(b)
	}

	const q = `INSERT INTO audit_log (id, timestamp, tenant_id, type, actor, resource, plugin, meta)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		entry.ID, formatTime(entry.Timestamp), entry.TenantID, entry.Type,
		entry.Actor, entry.Resource, entry.Plugin, meta,
	)
	if err != nil {
		return fmt.Errorf("appending audit entry %s: %w", entry.ID, err)
	}
	return nil
}

func (s *auditStore) Query(ctx context.Context, filter store.AuditFilter) ([]*store.AuditEntry, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT id, timestamp, tenant_id, type, actor, resource, plugin, meta FROM audit_log`)

	var conditions []string
	var args []any

	if filter.TenantID != "" {
		conditions = append(conditions, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Actor != "" {
		conditions = append(conditions, "actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.Plugin != "" {
		conditions = append(conditions, "plugin = ?")
		args = append(args, filter.Plugin)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, formatTime(filter.To))
	}

	if len(conditions) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(conditions, " AND "))
	}

	qb.WriteString(" ORDER BY timestamp ASC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	qb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var entries []*store.AuditEntry
	for rows.Next() {
		var e store.AuditEntry
		var ts, metaJSON string
		if err := rows.Scan(
			&e.ID, &ts, &e.TenantID, &e.Type, &e.Actor, &e.Resource, &e.Plugin, &metaJSON,
		); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		var err error
		e.Timestamp, err = parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parsing audit entry %s timestamp: %w", e.ID, err)
		}
		if metaJSON != "" && metaJSON != "{}" {
			if err := json.Unmarshal([]byte(metaJSON), &e.Meta); err != nil {
				return nil, fmt.Errorf("unmarshalling audit meta: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}

// ---------- migrationStore ----------

type migrationStore struct {
	db *sql.DB
}

func (s *migrationStore) Applied(ctx context.Context, pluginID string) ([]string, error) {
	const q = `SELECT migration_id FROM plugin_migrations WHERE plugin_id = ? ORDER BY migration_id ASC`

	rows, err := s.db.QueryContext(ctx, q, pluginID)
	if err != nil {
		return nil, fmt.Errorf("querying migrations for %s: %w", pluginID, err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return ids, nil
}

func (s *migrationStore) MarkApplied(ctx context.Context, pluginID, migrationID string) error {
	if pluginID == "" || migrationID == "" {
		return fmt.Errorf("mark applied: %w", store.ErrInvalidInput)
	}
	const q = `INSERT OR IGNORE INTO plugin_migrations (plugin_id, migration_id, applied_at) VALUES (?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q, pluginID, migrationID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("marking migration %s/%s applied: %w", pluginID, migrationID, err)
	}
	return nil
}

// ---------- time helpers ----------

// formatTime serialises a time.Time to UTC RFC3339 text. Zero times map to
// the empty string.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
