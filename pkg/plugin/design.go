// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package plugin

import (
	"fmt"
	"strings"
)

// requiredThemeTokens are the token keys every design must define. The
// shell cannot render without them, so their absence is boot-fatal.
var requiredThemeTokens = []string{
	"color.primary",
	"color.surface",
	"color.text",
	"font.family",
}

// NavItem is one navigation entry. Visibility constraints are evaluated at
// request time; identifier uniqueness is asserted globally at boot.
type NavItem struct {
	ID          string
	Label       string
	Path        string
	Icon        string
	Roles       []Role
	Entitlement string
	MinTier     int
	Children    []NavItem
}

// NavSection groups navigation items under one heading.
type NavSection struct {
	ID    string
	Label string
	Items []NavItem
}

// AppDesign is the design contract a main-app plugin supplies: the shell
// identity, theme tokens, and baseline navigation every other contribution
// extends.
type AppDesign struct {
	ShellName string
	Version   string
	Theme     map[string]string
	Nav       []NavSection
	// MandatoryItemIDs lists baseline item ids that navigation filters may
	// not drop. The host restores them after filter hooks run.
	MandatoryItemIDs []string
}

// Validate checks the structural design contract and returns all problems
// found. Navigation identifier collisions are checked separately by the
// host, which owns the role matrix.
func (d *AppDesign) Validate() []error {
	var errs []error

	if strings.TrimSpace(d.ShellName) == "" {
		errs = append(errs, fmt.Errorf("design: shell name must not be empty"))
	}
	if len(d.Nav) == 0 {
		errs = append(errs, fmt.Errorf("design: baseline navigation must have at least one section"))
	}
	for _, key := range requiredThemeTokens {
		if strings.TrimSpace(d.Theme[key]) == "" {
			errs = append(errs, fmt.Errorf("design: theme token %q must be set", key))
		}
	}
	for si, sec := range d.Nav {
		if strings.TrimSpace(sec.ID) == "" {
			errs = append(errs, fmt.Errorf("design: nav section %d has an empty id", si))
		}
		for ii, item := range sec.Items {
			if strings.TrimSpace(item.ID) == "" {
				errs = append(errs, fmt.Errorf("design: nav item %d in section %q has an empty id", ii, sec.ID))
			}
		}
	}

	return errs
}

// DefaultDesign is the built-in fallback shell used when a non-production
// deployment boots without a main-app plugin.
func DefaultDesign() *AppDesign {
	return &AppDesign{
		ShellName: "atrium-fallback",
		Version:   "0.0.0",
		Theme: map[string]string{
			"color.primary": "#1f2a44",
			"color.surface": "#ffffff",
			"color.text":    "#111827",
			"font.family":   "system-ui",
		},
		Nav: []NavSection{
			{
				ID:    "fallback",
				Label: "Atrium",
				Items: []NavItem{
					{ID: "fallback.home", Label: "Home", Path: "/"},
				},
			},
		},
		MandatoryItemIDs: []string{"fallback.home"},
	}
}
