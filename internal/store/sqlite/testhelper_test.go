// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atrium-host/atrium/internal/store"
	"github.com/atrium-host/atrium/internal/store/sqlite"
)

// testDir creates a temp directory for a test and returns its path.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "atrium-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(testDir(t), name+".db")
}

func openGateway(t *testing.T) *sqlite.Gateway {
	t.Helper()
	gw, err := sqlite.NewGateway(testDBPath(t, "atrium"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, gw.Close()) })
	return gw
}

// seededGateway opens a gateway with two tenants sharing one user pool.
// Only u1 and u2 belong to tenant-a; u3 belongs to tenant-b.
func seededGateway(t *testing.T) *sqlite.Gateway {
	t.Helper()
	gw := openGateway(t)
	ctx := context.Background()

	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	users := []*store.User{
		{ID: "u1", Name: "Ada Lovelace", Email: "ada@example.com", CreatedAt: created, UpdatedAt: created},
		{ID: "u2", Name: "Grace Hopper", Email: "grace@example.com", CreatedAt: created, UpdatedAt: created},
		{ID: "u3", Name: "Ada Byron", Email: "byron@example.com", CreatedAt: created, UpdatedAt: created},
	}
	for _, u := range users {
		require.NoError(t, gw.UpsertUser(ctx, u))
	}

	require.NoError(t, gw.AddMember(ctx, "tenant-a", "u1", "admin"))
	require.NoError(t, gw.AddMember(ctx, "tenant-a", "u2", "user"))
	require.NoError(t, gw.AddMember(ctx, "tenant-b", "u3", "admin"))

	return gw
}

// session opens a tenant session that is rolled back when the test ends.
func session(t *testing.T, gw *sqlite.Gateway, tenantID string) store.TenantSession {
	t.Helper()
	s, err := gw.TenantSession(context.Background(), tenantID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
