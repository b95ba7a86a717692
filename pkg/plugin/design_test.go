// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package plugin_test

import (
	"context"
	"testing"

	"github.com/atrium-host/atrium/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDesign() *plugin.AppDesign {
	return &plugin.AppDesign{
		ShellName: "acme-shell",
		Version:   "1.0.0",
		Theme: map[string]string{
			"color.primary": "#123456",
			"color.surface": "#ffffff",
			"color.text":    "#000000",
			"font.family":   "Inter",
		},
		Nav: []plugin.NavSection{
			{
				ID:    "main",
				Label: "Main",
				Items: []plugin.NavItem{
					{ID: "main.dashboard", Label: "Dashboard", Path: "/"},
				},
			},
		},
	}
}

func TestDesignValidateAccepts(t *testing.T) {
	assert.Empty(t, validDesign().Validate())
}

func TestDesignValidateCollectsAllErrors(t *testing.T) {
	d := &plugin.AppDesign{}
	errs := d.Validate()

	// Empty shell name, no sections, and all four theme tokens missing.
	require.Len(t, errs, 6)
}

func TestDesignValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*plugin.AppDesign)
		wantMsg string
	}{
		{
			name:    "blank shell name",
			mutate:  func(d *plugin.AppDesign) { d.ShellName = "  " },
			wantMsg: "shell name",
		},
		{
			name:    "no nav sections",
			mutate:  func(d *plugin.AppDesign) { d.Nav = nil },
			wantMsg: "at least one section",
		},
		{
			name:    "missing theme token",
			mutate:  func(d *plugin.AppDesign) { delete(d.Theme, "color.primary") },
			wantMsg: `theme token "color.primary"`,
		},
		{
			name:    "blank section id",
			mutate:  func(d *plugin.AppDesign) { d.Nav[0].ID = "" },
			wantMsg: "empty id",
		},
		{
			name:    "blank item id",
			mutate:  func(d *plugin.AppDesign) { d.Nav[0].Items[0].ID = " " },
			wantMsg: "empty id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDesign()
			tt.mutate(d)
			errs := d.Validate()
			require.NotEmpty(t, errs)
			assert.Contains(t, errs[0].Error(), tt.wantMsg)
		})
	}
}

func TestDefaultDesignIsValid(t *testing.T) {
	assert.Empty(t, plugin.DefaultDesign().Validate())
}

func TestTierValid(t *testing.T) {
	for _, tier := range []plugin.Tier{plugin.TierMainApp, plugin.TierA, plugin.TierB, plugin.TierC} {
		assert.True(t, tier.Valid(), string(tier))
	}
	assert.False(t, plugin.Tier("d").Valid())
	assert.False(t, plugin.Tier("").Valid())
}

func TestCanonicalRoles(t *testing.T) {
	assert.Equal(t, []plugin.Role{plugin.RoleAdmin, plugin.RoleUser, plugin.RoleGuest}, plugin.CanonicalRoles())
}

func TestHandlerSumAcceptsBothKinds(t *testing.T) {
	handlers := map[string]plugin.Handler{
		"onCreated": plugin.ActionFunc(func(ctx context.Context, args ...any) error { return nil }),
		"decorate": plugin.FilterFunc(func(ctx context.Context, value any, args ...any) (any, error) {
			return value, nil
		}),
	}

	_, isAction := handlers["onCreated"].(plugin.ActionFunc)
	_, isFilter := handlers["decorate"].(plugin.FilterFunc)
	assert.True(t, isAction)
	assert.True(t, isFilter)
}
