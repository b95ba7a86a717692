// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

func init() {
	RegisterBackend("memory", func(string) (Gateway, error) {
		return NewMemoryGateway(), nil
	})
}

// Compile-time interface checks.
var (
	_ Gateway           = (*MemoryGateway)(nil)
	_ TenantSession     = (*memSession)(nil)
	_ UserStore         = (*memUserStore)(nil)
	_ PermissionStore   = (*memPermissionStore)(nil)
	_ NotificationStore = (*memNotificationStore)(nil)
	_ AuditStore        = (*memAuditStore)(nil)
	_ MigrationStore    = (*memMigrationStore)(nil)
)

// MemoryGateway is the in-process backend used by tests and development.
// Sessions apply writes immediately; Commit is a no-op and Close only fences
// further use. Transactional rollback belongs to the sqlite backend.
type MemoryGateway struct {
	mu      sync.RWMutex
	tenants map[string]*memTenant
	audit   []*AuditEntry
	applied map[string]map[string]bool
}

type memTenant struct {
	users  map[string]*User
	order  []string
	grants map[string]map[string]bool
	notes  []*Notification
}

// NewMemoryGateway constructs an empty memory backend.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		tenants: make(map[string]*memTenant),
		applied: make(map[string]map[string]bool),
	}
}

func (g *MemoryGateway) tenant(tenantID string) *memTenant {
	t, ok := g.tenants[tenantID]
	if !ok {
		t = &memTenant{
			users:  make(map[string]*User),
			grants: make(map[string]map[string]bool),
		}
		g.tenants[tenantID] = t
	}
	return t
}

// SeedUser adds a user to a tenant's membership. Test fixture helper.
func (g *MemoryGateway) SeedUser(tenantID string, u *User) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.tenant(tenantID)
	cp := *u
	if _, exists := t.users[cp.ID]; !exists {
		t.order = append(t.order, cp.ID)
	}
	t.users[cp.ID] = &cp
}

// SeedGrant records a permission grant directly. Test fixture helper.
func (g *MemoryGateway) SeedGrant(tenantID, userID, ability string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.tenant(tenantID)
	if t.grants[userID] == nil {
		t.grants[userID] = make(map[string]bool)
	}
	t.grants[userID][ability] = true
}

// SeedApplied marks plugin migrations as applied. Test fixture helper.
func (g *MemoryGateway) SeedApplied(pluginID string, migrationIDs ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.applied[pluginID] == nil {
		g.applied[pluginID] = make(map[string]bool)
	}
	for _, id := range migrationIDs {
		g.applied[pluginID][id] = true
	}
}

// Notifications returns a copy of a tenant's stored notifications, in
// insertion order. Test inspection helper.
func (g *MemoryGateway) Notifications(tenantID string) []*Notification {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t, ok := g.tenants[tenantID]
	if !ok {
		return nil
	}
	out := make([]*Notification, len(t.notes))
	for i, n := range t.notes {
		cp := *n
		out[i] = &cp
	}
	return out
}

func (g *MemoryGateway) TenantSession(_ context.Context, tenantID string) (TenantSession, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("tenant session: %w", ErrInvalidInput)
	}
	return &memSession{g: g, tenantID: tenantID}, nil
}

func (g *MemoryGateway) AuditLog() AuditStore { return &memAuditStore{g: g} }

func (g *MemoryGateway) Migrations() MigrationStore { return &memMigrationStore{g: g} }

func (g *MemoryGateway) Close() error { return nil }

// ---------- memSession ----------

type memSession struct {
	g        *MemoryGateway
	tenantID string

	mu     sync.Mutex
	closed bool
}

func (s *memSession) TenantID() string { return s.tenantID }

func (s *memSession) Users() UserStore { return &memUserStore{s: s} }

func (s *memSession) Permissions() PermissionStore { return &memPermissionStore{s: s} }

func (s *memSession) Notifications() NotificationStore { return &memNotificationStore{s: s} }

func (s *memSession) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	return nil
}

func (s *memSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSession) live() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// ---------- memUserStore ----------

type memUserStore struct {
	s *memSession
}

func (u *memUserStore) FindByID(_ context.Context, id string) (*User, error) {
	if err := u.s.live(); err != nil {
		return nil, err
	}
	u.s.g.mu.RLock()
	defer u.s.g.mu.RUnlock()

	t, ok := u.s.g.tenants[u.s.tenantID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	usr, ok := t.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	cp := *usr
	return &cp, nil
}

func (u *memUserStore) FindByIDs(_ context.Context, ids []string) ([]*User, error) {
	if err := u.s.live(); err != nil {
		return nil, err
	}
	u.s.g.mu.RLock()
	defer u.s.g.mu.RUnlock()

	t, ok := u.s.g.tenants[u.s.tenantID]
	if !ok {
		return nil, nil
	}
	var out []*User
	for _, id := range ids {
		if usr, ok := t.users[id]; ok {
			cp := *usr
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (u *memUserStore) Search(_ context.Context, query string, limit int) ([]*User, error) {
	if err := u.s.live(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	needle := strings.ToLower(query)

	u.s.g.mu.RLock()
	defer u.s.g.mu.RUnlock()

	t, ok := u.s.g.tenants[u.s.tenantID]
	if !ok {
		return nil, nil
	}
	var out []*User
	for _, id := range t.order {
		usr := t.users[id]
		if !strings.Contains(strings.ToLower(usr.Name), needle) &&
			!strings.Contains(strings.ToLower(usr.Email), needle) {
			continue
		}
		cp := *usr
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (u *memUserStore) IsMember(_ context.Context, userID string) (bool, error) {
	if err := u.s.live(); err != nil {
		return false, err
	}
	u.s.g.mu.RLock()
	defer u.s.g.mu.RUnlock()

	t, ok := u.s.g.tenants[u.s.tenantID]
	if !ok {
		return false, nil
	}
	_, ok = t.users[userID]
	return ok, nil
}

// ---------- memPermissionStore ----------

type memPermissionStore struct {
	s *memSession
}

func (p *memPermissionStore) Check(_ context.Context, userID, ability string) (bool, error) {
	if err := p.s.live(); err != nil {
		return false, err
	}
	p.s.g.mu.RLock()
	defer p.s.g.mu.RUnlock()

	t, ok := p.s.g.tenants[p.s.tenantID]
	if !ok {
		return false, nil
	}
	return t.grants[userID][ability], nil
}

func (p *memPermissionStore) Grant(_ context.Context, userID, ability string) error {
	if err := p.s.live(); err != nil {
		return err
	}
	if userID == "" || ability == "" {
		return fmt.Errorf("permission grant: %w", ErrInvalidInput)
	}
	p.s.g.mu.Lock()
	defer p.s.g.mu.Unlock()

	t := p.s.g.tenant(p.s.tenantID)
	if t.grants[userID] == nil {
		t.grants[userID] = make(map[string]bool)
	}
	t.grants[userID][ability] = true
	return nil
}

func (p *memPermissionStore) Revoke(_ context.Context, userID, ability string) error {
	if err := p.s.live(); err != nil {
		return err
	}
	p.s.g.mu.Lock()
	defer p.s.g.mu.Unlock()

	t, ok := p.s.g.tenants[p.s.tenantID]
	if !ok {
		return nil
	}
	delete(t.grants[userID], ability)
	return nil
}

// ---------- memNotificationStore ----------

type memNotificationStore struct {
	s *memSession
}

func (n *memNotificationStore) Insert(_ context.Context, note *Notification) error {
	if err := n.s.live(); err != nil {
		return err
	}
	if note == nil || note.ID == "" || note.RecipientID == "" {
		return fmt.Errorf("notification insert: %w", ErrInvalidInput)
	}
	n.s.g.mu.Lock()
	defer n.s.g.mu.Unlock()

	t := n.s.g.tenant(n.s.tenantID)
	cp := *note
	t.notes = append(t.notes, &cp)
	return nil
}

func (n *memNotificationStore) InsertBatch(ctx context.Context, batch []*Notification) error {
	if err := n.s.live(); err != nil {
		return err
	}
	// Validate the whole batch before touching state so a bad entry does
	// not leave a partial insert.
	for _, note := range batch {
		if note == nil || note.ID == "" || note.RecipientID == "" {
			return fmt.Errorf("notification batch: %w", ErrInvalidInput)
		}
	}
	for _, note := range batch {
		if err := n.Insert(ctx, note); err != nil {
			return err
		}
	}
	return nil
}

// ---------- memAuditStore ----------

type memAuditStore struct {
	g *MemoryGateway
}

func (a *memAuditStore) Append(_ context.Context, entry *AuditEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("audit append: %w", ErrInvalidInput)
	}
	a.g.mu.Lock()
	defer a.g.mu.Unlock()

	cp := *entry
	a.g.audit = append(a.g.audit, &cp)
	return nil
}

func (a *memAuditStore) Query(_ context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	a.g.mu.RLock()
	defer a.g.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}

	var out []*AuditEntry
	skipped := 0
	for _, e := range a.g.audit {
		if !matchAudit(e, filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		cp := *e
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matchAudit(e *AuditEntry, f AuditFilter) bool {
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Plugin != "" && e.Plugin != f.Plugin {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
		return false
	}
	return true
}

// ---------- memMigrationStore ----------

type memMigrationStore struct {
	g *MemoryGateway
}

func (m *memMigrationStore) Applied(_ context.Context, pluginID string) ([]string, error) {
	m.g.mu.RLock()
	defer m.g.mu.RUnlock()

	ids := make([]string, 0, len(m.g.applied[pluginID]))
	for id := range m.g.applied[pluginID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memMigrationStore) MarkApplied(_ context.Context, pluginID, migrationID string) error {
	if pluginID == "" || migrationID == "" {
		return fmt.Errorf("mark applied: %w", ErrInvalidInput)
	}
	m.g.mu.Lock()
	defer m.g.mu.Unlock()

	if m.g.applied[pluginID] == nil {
		m.g.applied[pluginID] = make(map[string]bool)
	}
	m.g.applied[pluginID][migrationID] = true
	return nil
}
