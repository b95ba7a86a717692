// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package nav_test

import (
	"testing"

	"github.com/atrium-host/atrium/internal/nav"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix_DeterministicOrder(t *testing.T) {
	contexts, truncated := nav.Matrix(
		[]pkgplugin.Role{pkgplugin.RoleAdmin},
		[]int{0, 1},
		[]string{"analytics"},
		0,
	)
	require.False(t, truncated)

	// 1 role x 2 cardinalities x 2 tiers x 2 subsets (empty, {analytics}).
	require.Len(t, contexts, 8)

	first := contexts[0]
	assert.Equal(t, pkgplugin.RoleAdmin, first.Role)
	assert.False(t, first.MultiTenant)
	assert.Equal(t, 0, first.TierLevel)
	assert.Empty(t, first.Entitlements)

	second := contexts[1]
	assert.Equal(t, []string{"analytics"}, second.Entitlements)

	// Tenant cardinality flips after all tier/entitlement combinations.
	assert.True(t, contexts[4].MultiTenant)
}

func TestMatrix_SubsetStrategy(t *testing.T) {
	contexts, truncated := nav.Matrix(
		[]pkgplugin.Role{pkgplugin.RoleAdmin},
		[]int{0},
		[]string{"a", "b"},
		0,
	)
	require.False(t, truncated)

	// Subsets are the empty set, each singleton, and the full set; never
	// the whole power set.
	require.Len(t, contexts, 8)
	var subsets [][]string
	for _, c := range contexts[:4] {
		subsets = append(subsets, c.Entitlements)
	}
	assert.Equal(t, [][]string{nil, {"a"}, {"b"}, {"a", "b"}}, subsets)
}

func TestMatrix_Truncation(t *testing.T) {
	contexts, truncated := nav.Matrix(
		pkgplugin.CanonicalRoles(),
		[]int{0, 1, 2},
		[]string{"a", "b", "c"},
		10,
	)
	assert.True(t, truncated)
	assert.Len(t, contexts, 10)
}

func TestMatrix_ExactLimitNotTruncated(t *testing.T) {
	// 1 role x 2 cardinalities x 1 tier x 1 subset = 4 contexts.
	contexts, truncated := nav.Matrix(
		[]pkgplugin.Role{pkgplugin.RoleGuest}, []int{0}, nil, 4)
	assert.False(t, truncated)
	assert.Len(t, contexts, 4)
}

func TestMatrix_EmptyTiersDefaultsToZero(t *testing.T) {
	contexts, _ := nav.Matrix([]pkgplugin.Role{pkgplugin.RoleUser}, nil, nil, 0)
	require.Len(t, contexts, 2)
	assert.Equal(t, 0, contexts[0].TierLevel)
}

func TestMatrix_CanonicalRolesCovered(t *testing.T) {
	contexts, _ := nav.Matrix(pkgplugin.CanonicalRoles(), []int{0}, nil, 0)

	roles := map[pkgplugin.Role]bool{}
	for _, c := range contexts {
		roles[c.Role] = true
	}
	assert.Len(t, roles, 3)
}

func TestObservedValues(t *testing.T) {
	sections := []pkgplugin.NavSection{
		{ID: "a", Items: []pkgplugin.NavItem{
			{ID: "a.1", MinTier: 2, Entitlement: "analytics"},
			{ID: "a.2", Children: []pkgplugin.NavItem{
				{ID: "a.2.x", MinTier: 1, Entitlement: "exports"},
				{ID: "a.2.y", Entitlement: "analytics"},
			}},
		}},
	}

	tiers, ents := nav.ObservedValues(sections)
	assert.Equal(t, []int{0, 1, 2}, tiers)
	assert.Equal(t, []string{"analytics", "exports"}, ents)
}

func TestObservedValues_EmptyTree(t *testing.T) {
	tiers, ents := nav.ObservedValues(nil)
	assert.Equal(t, []int{0}, tiers)
	assert.Empty(t, ents)
}
