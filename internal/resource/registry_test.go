// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package resource_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrium-host/atrium/internal/resource"
	"github.com/atrium-host/atrium/internal/store"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

func tenantSession(t *testing.T) store.TenantSession {
	t.Helper()
	gw := store.NewMemoryGateway()
	gw.SeedUser("tenant-a", &store.User{ID: "u1", Name: "Ada Lovelace", Role: "admin"})

	s, err := gw.TenantSession(context.Background(), "tenant-a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func userProvider(ctx context.Context, session store.TenantSession, id string) (any, error) {
	return session.Users().FindByID(ctx, id)
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := resource.NewRegistry()
	require.NoError(t, reg.RegisterProvider("user", "shell", userProvider))

	v, err := reg.Resolve(context.Background(), "user", tenantSession(t), "u1")
	require.NoError(t, err)

	u, ok := v.(*store.User)
	require.True(t, ok, "expected *store.User, got %T", v)
	assert.Equal(t, "Ada Lovelace", u.Name)

	owner, ok := reg.Owner("user")
	require.True(t, ok)
	assert.Equal(t, "shell", owner)
}

func TestRegistry_UnknownType(t *testing.T) {
	reg := resource.NewRegistry()

	_, err := reg.Resolve(context.Background(), "contact", tenantSession(t), "c1")
	require.Error(t, err)
	assert.True(t, atriumerr.HasCode(err, atriumerr.CodeResourceProviderNotFound))
	assert.True(t, atriumerr.IsNotFound(err))
}

func TestRegistry_DuplicateType(t *testing.T) {
	reg := resource.NewRegistry()
	require.NoError(t, reg.RegisterProvider("user", "shell", userProvider))

	err := reg.RegisterProvider("user", "crm", userProvider)
	require.Error(t, err)
	assert.True(t, atriumerr.HasCode(err, atriumerr.CodeResourceProviderConflict))
	assert.True(t, atriumerr.IsConflict(err))
	assert.Contains(t, err.Error(), "shell")

	// The original binding survives.
	owner, ok := reg.Owner("user")
	require.True(t, ok)
	assert.Equal(t, "shell", owner)
}

func TestRegistry_RegistrationValidation(t *testing.T) {
	reg := resource.NewRegistry()

	err := reg.RegisterProvider("", "shell", userProvider)
	assert.True(t, atriumerr.HasCode(err, atriumerr.CodeResourceProviderInvalid))

	err = reg.RegisterProvider("user", "", userProvider)
	assert.True(t, atriumerr.HasCode(err, atriumerr.CodeResourceProviderInvalid))

	err = reg.RegisterProvider("user", "shell", nil)
	require.Error(t, err)
	assert.True(t, atriumerr.HasCode(err, atriumerr.CodeResourceProviderInvalid))
	assert.True(t, atriumerr.IsInvalidInput(err))
}

func TestRegistry_ProviderErrors(t *testing.T) {
	reg := resource.NewRegistry()

	// Plain failures surface as resolve failures.
	require.NoError(t, reg.RegisterProvider("report", "analytics",
		func(context.Context, store.TenantSession, string) (any, error) {
			return nil, errors.New("backend offline")
		}))
	_, err := reg.Resolve(context.Background(), "report", tenantSession(t), "r1")
	require.Error(t, err)
	assert.True(t, atriumerr.HasCode(err, atriumerr.CodeResourceResolveFailure))
	assert.Contains(t, err.Error(), "resolving report r1")

	// Coded provider errors keep their own classification.
	require.NoError(t, reg.RegisterProvider("contact", "crm",
		func(_ context.Context, _ store.TenantSession, id string) (any, error) {
			return nil, atriumerr.Errorf(atriumerr.CodeStoreEntityNotFound, "contact %s not found", id)
		}))
	_, err = reg.Resolve(context.Background(), "contact", tenantSession(t), "c9")
	require.Error(t, err)
	assert.True(t, atriumerr.HasCode(err, atriumerr.CodeStoreEntityNotFound))
	assert.True(t, atriumerr.IsNotFound(err))
}

func TestRegistry_RebuildClears(t *testing.T) {
	reg := resource.NewRegistry()
	require.NoError(t, reg.RegisterProvider("user", "shell", userProvider))

	reg.Rebuild()

	_, err := reg.Resolve(context.Background(), "user", tenantSession(t), "u1")
	assert.True(t, atriumerr.HasCode(err, atriumerr.CodeResourceProviderNotFound))

	// The type is free for a fresh registration after a rebuild.
	require.NoError(t, reg.RegisterProvider("user", "shell", userProvider))
}

func TestRegistry_Types(t *testing.T) {
	reg := resource.NewRegistry()
	require.NoError(t, reg.RegisterProvider("user", "shell", userProvider))
	require.NoError(t, reg.RegisterProvider("contact", "crm", userProvider))
	require.NoError(t, reg.RegisterProvider("invoice", "billing", userProvider))

	assert.Equal(t, []string{"contact", "invoice", "user"}, reg.Types())
}
