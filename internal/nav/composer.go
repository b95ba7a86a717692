// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

// Package nav composes the application's navigation tree from the main-app
// design baseline plus hook-contributed extensions, and asserts that item
// identifiers stay globally unique after composition. Duplicate ids are an
// error, never a silent last-write-wins override.
package nav

import (
	"context"
	"strings"

	"github.com/atrium-host/atrium/internal/hook"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
)

// Hook names the composer dispatches, in pipeline order.
const (
	// HookItems lets plugins transform or drop baseline items. Mandatory
	// items are restored afterwards, so dropping one has no effect.
	HookItems = "nav:items"
	// HookExtendSections lets plugins contribute whole sections. The filter
	// value is a []plugin.NavSection the chain appends to.
	HookExtendSections = "nav:extend-sections"
)

// Options controls which pipeline stages Compose runs.
type Options struct {
	// ApplyHooks runs the nav:items and nav:extend-sections filter chains.
	// Baseline-only validation disables this.
	ApplyHooks bool
	// ApplyVisibility filters items by role, entitlement, and tier for
	// Context. Collision validation keeps it off so hidden items are still
	// checked.
	ApplyVisibility bool
	// Context is the evaluation point hooks and the visibility filter see.
	Context Context
}

// Composer builds navigation trees for one main-app design.
type Composer struct {
	design *pkgplugin.AppDesign
	hooks  *hook.Registry
}

// NewComposer constructs a Composer over the validated main-app design.
func NewComposer(design *pkgplugin.AppDesign, hooks *hook.Registry) *Composer {
	return &Composer{design: design, hooks: hooks}
}

// Compose builds the navigation tree: deep-copied baseline, nav:items filter,
// mandatory item restoration, nav:extend-sections, optional visibility
// filtering, then the global uniqueness assertion. The returned tree never
// aliases the design.
func (c *Composer) Compose(ctx context.Context, opts Options) ([]pkgplugin.NavSection, error) {
	if c == nil || c.design == nil {
		return nil, atriumerr.New(atriumerr.CodeNavComposeFailure, "compose: no design installed")
	}

	sections := copySections(c.design.Nav)

	if opts.ApplyHooks && c.hooks != nil {
		filtered, err := c.hooks.ApplyFilters(ctx, HookItems, sections, opts.Context)
		if err != nil {
			return nil, atriumerr.Wrapf(err, atriumerr.CodeNavComposeFailure, "compose: %s", HookItems)
		}
		var ok bool
		sections, ok = filtered.([]pkgplugin.NavSection)
		if !ok {
			return nil, atriumerr.Errorf(atriumerr.CodeNavComposeFailure,
				"compose: %s filter returned %T, want []plugin.NavSection", HookItems, filtered)
		}

		sections = c.restoreMandatory(sections)

		extended, err := c.hooks.ApplyFilters(ctx, HookExtendSections, []pkgplugin.NavSection{}, opts.Context)
		if err != nil {
			return nil, atriumerr.Wrapf(err, atriumerr.CodeNavComposeFailure, "compose: %s", HookExtendSections)
		}
		extra, ok := extended.([]pkgplugin.NavSection)
		if !ok {
			return nil, atriumerr.Errorf(atriumerr.CodeNavComposeFailure,
				"compose: %s filter returned %T, want []plugin.NavSection", HookExtendSections, extended)
		}
		sections = append(sections, copySections(extra)...)
	}

	if opts.ApplyVisibility {
		sections = filterVisible(sections, opts.Context)
	}

	if err := ValidateTree(sections); err != nil {
		return nil, err
	}
	return sections, nil
}

// restoreMandatory re-inserts mandatory items a filter dropped, pulling the
// pristine copy from the design baseline. Ids absent from the baseline are
// skipped; there is nothing to restore them from.
func (c *Composer) restoreMandatory(sections []pkgplugin.NavSection) []pkgplugin.NavSection {
	for _, id := range c.design.MandatoryItemIDs {
		if treeHasItem(sections, id) {
			continue
		}
		srcSection, srcItem, ok := findBaselineItem(c.design.Nav, id)
		if !ok {
			continue
		}
		restored := false
		for i := range sections {
			if sections[i].ID == srcSection.ID {
				sections[i].Items = append(sections[i].Items, copyItem(srcItem))
				restored = true
				break
			}
		}
		if !restored {
			sections = append(sections, pkgplugin.NavSection{
				ID:    srcSection.ID,
				Label: srcSection.Label,
				Items: []pkgplugin.NavItem{copyItem(srcItem)},
			})
		}
	}
	return sections
}

// ValidateTree asserts that every identifier in the tree is globally unique:
// section ids, item ids, and child ids share one namespace. The first
// duplicate found is reported.
func ValidateTree(sections []pkgplugin.NavSection) error {
	seen := make(map[string]bool)
	for _, s := range sections {
		if err := checkID(seen, s.ID); err != nil {
			return err
		}
		if err := validateItems(seen, s.Items); err != nil {
			return err
		}
	}
	return nil
}

func validateItems(seen map[string]bool, items []pkgplugin.NavItem) error {
	for _, it := range items {
		if err := checkID(seen, it.ID); err != nil {
			return err
		}
		if err := validateItems(seen, it.Children); err != nil {
			return err
		}
	}
	return nil
}

func checkID(seen map[string]bool, id string) error {
	if strings.TrimSpace(id) == "" {
		return atriumerr.New(atriumerr.CodeNavDesignInvalid, "navigation id must not be empty")
	}
	if seen[id] {
		return atriumerr.Errorf(atriumerr.CodeNavDuplicateID,
			"navigation id %q appears more than once in the composed tree", id)
	}
	seen[id] = true
	return nil
}

// filterVisible drops items the context cannot see and sections left empty
// afterwards.
func filterVisible(sections []pkgplugin.NavSection, nc Context) []pkgplugin.NavSection {
	out := sections[:0]
	for _, s := range sections {
		s.Items = visibleItems(s.Items, nc)
		if len(s.Items) == 0 {
			continue
		}
		out = append(out, s)
	}
	return out
}

func visibleItems(items []pkgplugin.NavItem, nc Context) []pkgplugin.NavItem {
	var out []pkgplugin.NavItem
	for _, it := range items {
		if !nc.canSee(it) {
			continue
		}
		it.Children = visibleItems(it.Children, nc)
		out = append(out, it)
	}
	return out
}

func treeHasItem(sections []pkgplugin.NavSection, id string) bool {
	for _, s := range sections {
		if itemsHave(s.Items, id) {
			return true
		}
	}
	return false
}

func itemsHave(items []pkgplugin.NavItem, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
		if itemsHave(it.Children, id) {
			return true
		}
	}
	return false
}

// findBaselineItem locates a top-level item by id in the design baseline.
// Mandatory items are top-level by convention; children follow their parent.
func findBaselineItem(sections []pkgplugin.NavSection, id string) (pkgplugin.NavSection, pkgplugin.NavItem, bool) {
	for _, s := range sections {
		for _, it := range s.Items {
			if it.ID == id {
				return s, it, true
			}
		}
	}
	return pkgplugin.NavSection{}, pkgplugin.NavItem{}, false
}

func copySections(sections []pkgplugin.NavSection) []pkgplugin.NavSection {
	if sections == nil {
		return nil
	}
	out := make([]pkgplugin.NavSection, len(sections))
	for i, s := range sections {
		out[i] = s
		out[i].Items = copyItems(s.Items)
	}
	return out
}

func copyItems(items []pkgplugin.NavItem) []pkgplugin.NavItem {
	if items == nil {
		return nil
	}
	out := make([]pkgplugin.NavItem, len(items))
	for i := range items {
		out[i] = copyItem(items[i])
	}
	return out
}

func copyItem(it pkgplugin.NavItem) pkgplugin.NavItem {
	out := it
	if it.Roles != nil {
		out.Roles = make([]pkgplugin.Role, len(it.Roles))
		copy(out.Roles, it.Roles)
	}
	out.Children = copyItems(it.Children)
	return out
}
