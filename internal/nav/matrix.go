// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package nav

import (
	"sort"

	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
)

// Context is one evaluation point for navigation composition: who is
// looking, with which entitlements, at which subscription tier, and whether
// they belong to more than one tenant.
type Context struct {
	Role         pkgplugin.Role
	Entitlements []string
	TenantID     string
	TierLevel    int
	MultiTenant  bool
}

func (nc Context) hasEntitlement(name string) bool {
	for _, e := range nc.Entitlements {
		if e == name {
			return true
		}
	}
	return false
}

// canSee reports whether an item is visible to this context. Empty role
// lists, empty entitlement, and MinTier 0 mean unrestricted.
func (nc Context) canSee(it pkgplugin.NavItem) bool {
	if len(it.Roles) > 0 {
		allowed := false
		for _, r := range it.Roles {
			if r == nc.Role {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	if it.Entitlement != "" && !nc.hasEntitlement(it.Entitlement) {
		return false
	}
	return it.MinTier <= nc.TierLevel
}

// Matrix enumerates validation contexts as the cartesian product of
// {role} x {single-tenant, multi-tenant} x {tier level} x {entitlement
// subset} in deterministic order. Entitlement subsets are the empty set,
// each singleton, and the full set; enumerating the power set would make
// boot time explode with entitlement count. Enumeration stops once limit
// contexts have been produced; the second return reports truncation so the
// caller can surface a warning. A limit of zero or less means unbounded.
func Matrix(roles []pkgplugin.Role, tiers []int, entitlements []string, limit int) ([]Context, bool) {
	if len(tiers) == 0 {
		tiers = []int{0}
	}
	subsets := entitlementSubsets(entitlements)

	var out []Context
	for _, role := range roles {
		for _, multi := range []bool{false, true} {
			for _, tier := range tiers {
				for _, sub := range subsets {
					if limit > 0 && len(out) >= limit {
						return out, true
					}
					out = append(out, Context{
						Role:         role,
						Entitlements: sub,
						TierLevel:    tier,
						MultiTenant:  multi,
					})
				}
			}
		}
	}
	return out, false
}

func entitlementSubsets(entitlements []string) [][]string {
	subsets := [][]string{nil}
	for _, e := range entitlements {
		subsets = append(subsets, []string{e})
	}
	if len(entitlements) > 1 {
		full := make([]string, len(entitlements))
		copy(full, entitlements)
		subsets = append(subsets, full)
	}
	return subsets
}

// ObservedValues walks a composed tree and returns the distinct tier levels
// and entitlement names it references, sorted. Boot feeds these into Matrix
// so validation covers exactly the values the tree actually discriminates on.
func ObservedValues(sections []pkgplugin.NavSection) ([]int, []string) {
	tierSet := map[int]bool{0: true}
	entSet := map[string]bool{}
	for _, s := range sections {
		observeItems(s.Items, tierSet, entSet)
	}

	tiers := make([]int, 0, len(tierSet))
	for t := range tierSet {
		tiers = append(tiers, t)
	}
	sort.Ints(tiers)

	ents := make([]string, 0, len(entSet))
	for e := range entSet {
		ents = append(ents, e)
	}
	sort.Strings(ents)

	return tiers, ents
}

func observeItems(items []pkgplugin.NavItem, tierSet map[int]bool, entSet map[string]bool) {
	for _, it := range items {
		tierSet[it.MinTier] = true
		if it.Entitlement != "" {
			entSet[it.Entitlement] = true
		}
		observeItems(it.Children, tierSet, entSet)
	}
}
