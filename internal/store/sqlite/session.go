// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atrium-host/atrium/internal/store"
)

// Compile-time interface checks.
var (
	_ store.TenantSession     = (*tenantSession)(nil)
	_ store.UserStore         = (*txUserStore)(nil)
	_ store.PermissionStore   = (*txPermissionStore)(nil)
	_ store.NotificationStore = (*txNotificationStore)(nil)
)

// TenantSession opens a transaction with the tenant identity bound into
// every statement executed through it.
func (g *Gateway) TenantSession(ctx context.Context, tenantID string) (store.TenantSession, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant session: tenant id is empty: %w", store.ErrInvalidInput)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning tenant session: %w", err)
	}

	return &tenantSession{tx: tx, tenantID: tenantID}, nil
}

type tenantSession struct {
	tx       *sql.Tx
	tenantID string

	mu   sync.Mutex
	done bool
}

func (s *tenantSession) TenantID() string { return s.tenantID }

func (s *tenantSession) Users() store.UserStore { return &txUserStore{s: s} }

func (s *tenantSession) Permissions() store.PermissionStore { return &txPermissionStore{s: s} }

func (s *tenantSession) Notifications() store.NotificationStore { return &txNotificationStore{s: s} }

// Commit commits the session transaction. The session is unusable
// afterwards.
func (s *tenantSession) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return store.ErrSessionClosed
	}
	s.done = true
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("committing tenant session: %w", err)
	}
	return nil
}

// Close rolls back any uncommitted work. Closing a committed or already
// closed session is a no-op.
func (s *tenantSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back tenant session: %w", err)
	}
	return nil
}

func (s *tenantSession) live() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return store.ErrSessionClosed
	}
	return nil
}

// ---------- txUserStore ----------

type txUserStore struct {
	s *tenantSession
}

const userColumns = `u.id, u.name, u.email, m.role, u.created_at, u.updated_at`

func scanUser(scan func(dest ...any) error) (*store.User, error) {
	var u store.User
	var created, updated string
	if err := scan(&u.ID, &u.Name, &u.Email, &u.Role, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parsing user %s created_at: %w", u.ID, err)
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parsing user %s updated_at: %w", u.ID, err)
	}
	return &u, nil
}

func (st *txUserStore) FindByID(ctx context.Context, id string) (*store.User, error) {
	if err := st.s.live(); err != nil {
		return nil, err
	}
	const q = `SELECT ` + userColumns + ` FROM users u
JOIN tenant_members m ON m.user_id = u.id
WHERE m.tenant_id = ? AND u.id = ?`

	u, err := scanUser(st.s.tx.QueryRowContext(ctx, q, st.s.tenantID, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding user %s: %w", id, err)
	}
	return u, nil
}

func (st *txUserStore) FindByIDs(ctx context.Context, ids []string) ([]*store.User, error) {
	if err := st.s.live(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	q := `SELECT ` + userColumns + ` FROM users u
JOIN tenant_members m ON m.user_id = u.id
WHERE m.tenant_id = ? AND u.id IN (` + placeholders + `)`

	args := make([]any, 0, len(ids)+1)
	args = append(args, st.s.tenantID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := st.s.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("finding users by ids: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	byID := make(map[string]*store.User, len(ids))
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	// Preserve the order of the requested ids; unknown ids are omitted.
	users := make([]*store.User, 0, len(byID))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (st *txUserStore) Search(ctx context.Context, query string, limit int) ([]*store.User, error) {
	if err := st.s.live(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + userColumns + ` FROM users u
JOIN tenant_members m ON m.user_id = u.id
WHERE m.tenant_id = ? AND (LOWER(u.name) LIKE ? OR LOWER(u.email) LIKE ?)
ORDER BY u.name ASC, u.id ASC
LIMIT ?`

	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := st.s.tx.QueryContext(ctx, q, st.s.tenantID, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var users []*store.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

func (st *txUserStore) IsMember(ctx context.Context, userID string) (bool, error) {
	if err := st.s.live(); err != nil {
		return false, err
	}
	const q = `SELECT 1 FROM tenant_members WHERE tenant_id = ? AND user_id = ?`

	var one int
	err := st.s.tx.QueryRowContext(ctx, q, st.s.tenantID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking membership of %s: %w", userID, err)
	}
	return true, nil
}

// ---------- txPermissionStore ----------

type txPermissionStore struct {
	s *tenantSession
}

func (st *txPermissionStore) Check(ctx context.Context, userID, ability string) (bool, error) {
	if err := st.s.live(); err != nil {
		return false, err
	}
	const q = `SELECT 1 FROM permissions WHERE tenant_id = ? AND user_id = ? AND ability = ?`

	var one int
	err := st.s.tx.QueryRowContext(ctx, q, st.s.tenantID, userID, ability).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking permission %s for %s: %w", ability, userID, err)
	}
	return true, nil
}

func (st *txPermissionStore) Grant(ctx context.Context, userID, ability string) error {
	if err := st.s.live(); err != nil {
		return err
	}
	if userID == "" || ability == "" {
		return fmt.Errorf("grant: %w", store.ErrInvalidInput)
	}
	const q = `INSERT OR IGNORE INTO permissions (tenant_id, user_id, ability, created_at) VALUES (?, ?, ?, ?)`

	_, err := st.s.tx.ExecContext(ctx, q, st.s.tenantID, userID, ability, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("granting %s to %s: %w", ability, userID, err)
	}
	return nil
}

func (st *txPermissionStore) Revoke(ctx context.Context, userID, ability string) error {
	if err := st.s.live(); err != nil {
		return err
	}
	if userID == "" || ability == "" {
		return fmt.Errorf("revoke: %w", store.ErrInvalidInput)
	}
	const q = `DELETE FROM permissions WHERE tenant_id = ? AND user_id = ? AND ability = ?`

	_, err := st.s.tx.ExecContext(ctx, q, st.s.tenantID, userID, ability)
	if err != nil {
		return fmt.Errorf("revoking %s from %s: %w", ability, userID, err)
	}
	return nil
}

// ---------- txNotificationStore ----------

type txNotificationStore struct {
	s *tenantSession
}

func validateNotification(n *store.Notification) error {
	if n == nil {
		return fmt.Errorf("notification is nil: %w", store.ErrInvalidInput)
	}
	if n.ID == "" {
		return fmt.Errorf("notification id is empty: %w", store.ErrInvalidInput)
	}
	if n.RecipientID == "" {
		return fmt.Errorf("notification %s recipient is empty: %w", n.ID, store.ErrInvalidInput)
	}
	return nil
}

func (st *txNotificationStore) Insert(ctx context.Context, n *store.Notification) error {
	if err := st.s.live(); err != nil {
		return err
	}
	if err := validateNotification(n); err != nil {
		return err
	}
	return st.insert(ctx, n)
}

// InsertBatch validates the whole batch before inserting any row. The rows
// share the session transaction, so a failed insert leaves nothing behind
// once the session rolls back.
func (st *txNotificationStore) InsertBatch(ctx context.Context, ns []*store.Notification) error {
	if err := st.s.live(); err != nil {
		return err
	}
	for _, n := range ns {
		if err := validateNotification(n); err != nil {
			return err
		}
	}
	for _, n := range ns {
		if err := st.insert(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (st *txNotificationStore) insert(ctx context.Context, n *store.Notification) error {
	meta := "{}"
	if n.Metadata != nil {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling notification metadata: %w", err)
		}
		meta = string(b)
	}

	const q = `INSERT INTO notifications (id, tenant_id, recipient_id, type, title, body, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := st.s.tx.ExecContext(ctx, q,
		n.ID, st.s.tenantID, n.RecipientID, n.Type, n.Title, n.Body, meta, formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting notification %s: %w", n.ID, err)
	}
	return nil
}
