// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package facade_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrium-host/atrium/internal/facade"
	"github.com/atrium-host/atrium/internal/store"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
)

func permissionsFacade(t *testing.T, fx *fixture) (context.Context, *facade.Permissions) {
	t.Helper()

	ctx, _, set := fx.facades(t)
	perms, ok := set.Permissions()
	require.True(t, ok)
	return ctx, perms
}

func TestPermissions_GrantCheckRevoke(t *testing.T) {
	fx := newFixture(t)
	ctx, perms := permissionsFacade(t, fx)

	ok, err := perms.Check(ctx, "u2", "crm:contacts.read")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, perms.Grant(ctx, "u2", "crm:contacts.read"))

	ok, err = perms.Check(ctx, "u2", "crm:contacts.read")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, perms.Revoke(ctx, "u2", "crm:contacts.read"))

	ok, err = perms.Check(ctx, "u2", "crm:contacts.read")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPermissions_GrantAndRevokeAreAudited(t *testing.T) {
	fx := newFixture(t)
	ctx, perms := permissionsFacade(t, fx)

	require.NoError(t, perms.Grant(ctx, "u2", "crm:contacts.read"))
	require.NoError(t, perms.Revoke(ctx, "u2", "crm:contacts.read"))

	granted, err := fx.gateway.AuditLog().Query(ctx, store.AuditFilter{Type: "permission.granted"})
	require.NoError(t, err)
	require.Len(t, granted, 1)
	entry := granted[0]
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
	assert.Equal(t, "tenant-a", entry.TenantID)
	assert.Equal(t, "u1", entry.Actor)
	assert.Equal(t, "user:u2", entry.Resource)
	assert.Equal(t, "crm", entry.Plugin)
	assert.Equal(t, "crm:contacts.read", entry.Meta["ability"])

	revoked, err := fx.gateway.AuditLog().Query(ctx, store.AuditFilter{Type: "permission.revoked"})
	require.NoError(t, err)
	require.Len(t, revoked, 1)
	assert.Equal(t, "user:u2", revoked[0].Resource)
}

func TestPermissions_Require(t *testing.T) {
	fx := newFixture(t)
	ctx, perms := permissionsFacade(t, fx)

	err := perms.Require(ctx, "u2", "crm:contacts.read")
	require.Error(t, err)
	assert.True(t, atriumerr.HasCode(err, atriumerr.CodeFacadePermissionDenied))
	assert.True(t, atriumerr.IsUnauthorized(err))

	require.NoError(t, perms.Grant(ctx, "u2", "crm:contacts.read"))
	assert.NoError(t, perms.Require(ctx, "u2", "crm:contacts.read"))
}

func TestPermissions_ForeignNamespaceRejected(t *testing.T) {
	fx := newFixture(t)
	ctx, perms := permissionsFacade(t, fx)

	for _, ability := range []string{"shell:admin", "contacts.read", "crm-pro:export", ":crm"} {
		_, err := perms.Check(ctx, "u2", ability)
		assert.True(t, atriumerr.HasCode(err, atriumerr.CodeFacadeNamespaceForbidden), "check %q", ability)

		err = perms.Grant(ctx, "u2", ability)
		assert.True(t, atriumerr.HasCode(err, atriumerr.CodeFacadeNamespaceForbidden), "grant %q", ability)

		err = perms.Revoke(ctx, "u2", ability)
		assert.True(t, atriumerr.HasCode(err, atriumerr.CodeFacadeNamespaceForbidden), "revoke %q", ability)

		err = perms.Require(ctx, "u2", ability)
		assert.True(t, atriumerr.HasCode(err, atriumerr.CodeFacadeNamespaceForbidden), "require %q", ability)
	}

	// Nothing was granted along the way.
	entries, err := fx.gateway.AuditLog().Query(ctx, store.AuditFilter{Type: "permission.granted"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type failingAudit struct{}

func (failingAudit) Append(context.Context, *store.AuditEntry) error {
	return errors.New("audit unavailable")
}

func (failingAudit) Query(context.Context, store.AuditFilter) ([]*store.AuditEntry, error) {
	return nil, errors.New("audit unavailable")
}

// Audit writes are best effort: a failing audit store must not turn a
// successful grant into an error.
func TestPermissions_AuditFailureDoesNotBlock(t *testing.T) {
	fx := newFixture(t)
	factory := facade.NewFactory(fx.arena, fx.hooks, fx.resources, failingAudit{})

	ctx, _ := fx.request(t, "tenant-a", "u1", pkgplugin.RoleAdmin, fullRouteInfo())
	set, err := factory.ForRequest(ctx)
	require.NoError(t, err)
	perms, ok := set.Permissions()
	require.True(t, ok)

	require.NoError(t, perms.Grant(ctx, "u2", "crm:contacts.read"))

	granted, err := perms.Check(ctx, "u2", "crm:contacts.read")
	require.NoError(t, err)
	assert.True(t, granted)
}
