// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

// Package plugin holds the runtime's plugin model: the parsed manifest, the
// registry of plugin records boot reconciliation drives, and the typed
// loader table mapping plugin ids to in-process modules.
package plugin

import (
	"fmt"
	"regexp"
	"strings"

	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	pkgplugin "github.com/atrium-host/atrium/pkg/plugin"
	"gopkg.in/yaml.v3"
)

// idRe matches plugin ids: lowercase slug, used verbatim in route prefixes,
// hook namespaces, and permission strings.
var idRe = regexp.MustCompile(`^[a-z][a-z0-9-]{0,63}$`)

// capPatternRe matches valid capability pattern characters.
var capPatternRe = regexp.MustCompile(`^[a-zA-Z0-9.*_\-/]+$`)

// hookNameRe matches namespaced hook names of the form "namespace:name".
var hookNameRe = regexp.MustCompile(`^[a-z][a-z0-9-]*:[a-z][a-z0-9_.-]*$`)

// migrationRe matches migration ids like "001_create_contacts".
var migrationRe = regexp.MustCompile(`^[0-9]{3,}_[a-z0-9_]+$`)

// semverRe matches strict semver (no "v" prefix): MAJOR.MINOR.PATCH[-prerelease][+build].
// Leading zeros on numeric segments are disallowed per semver spec.
var semverRe = regexp.MustCompile(
	`^(?:0|[1-9]\d*)\.(?:0|[1-9]\d*)\.(?:0|[1-9]\d*)` +
		`(?:-(?:[0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?` +
		`(?:\+(?:[0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`,
)

// HookBinding connects a hook name to a handler the plugin's module exports.
type HookBinding struct {
	Hook     string `yaml:"hook"`
	Handler  string `yaml:"handler"`
	Priority int    `yaml:"priority,omitempty"`
}

// Manifest is the parsed declaration of one plugin: identity, trust tier,
// requested capabilities, feature flags, hook bindings, and schema needs.
// It is loaded from plugin.yaml in the plugin directory and is the single
// authoritative snapshot boot reconciliation works from.
type Manifest struct {
	ID      string         `yaml:"id"`
	Package string         `yaml:"package"`
	Version string         `yaml:"version"`
	Tier    pkgplugin.Tier `yaml:"tier"`
	// Core marks a first-party plugin that still boots in safe mode.
	// Only tier-A and main-app manifests may set it.
	Core bool `yaml:"core,omitempty"`

	Capabilities []string        `yaml:"capabilities,omitempty"`
	Features     map[string]bool `yaml:"features,omitempty"`

	Hooks          []HookBinding `yaml:"hooks,omitempty"`
	DefinedHooks   []string      `yaml:"defined_hooks,omitempty"`
	DefinedFilters []string      `yaml:"defined_filters,omitempty"`

	AuthzNamespace string   `yaml:"authz_namespace,omitempty"`
	Migrations     []string `yaml:"migrations,omitempty"`

	RequiresEnterprise bool     `yaml:"requires_enterprise,omitempty"`
	EnterpriseFeatures []string `yaml:"enterprise_features,omitempty"`
}

// ParseManifest parses YAML data into a Manifest without validating it.
// Callers that need a well-formed manifest run Validate separately; boot
// keeps the two steps apart so an invalid-but-identifiable manifest can be
// quarantined instead of silently dropped.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, atriumerr.Errorf(atriumerr.CodePluginManifestParseInvalid,
			"manifest parse: %s", err)
	}
	return &m, nil
}

// Validate checks that the Manifest is well-formed. It returns all
// validation errors found rather than stopping at the first one.
func (m *Manifest) Validate() []error {
	var errs []error

	if strings.TrimSpace(m.ID) == "" {
		errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
			"manifest validation: id must not be empty"))
	} else if !idRe.MatchString(m.ID) {
		errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
			"manifest validation: id must be a lowercase slug (max 64 chars), got %q", m.ID))
	}

	if strings.TrimSpace(m.Package) == "" {
		errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
			"manifest validation: package must not be empty"))
	}

	if strings.TrimSpace(m.Version) == "" {
		errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
			"manifest validation: version must not be empty"))
	} else if !semverRe.MatchString(m.Version) {
		errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
			"manifest validation: version must be valid semver (MAJOR.MINOR.PATCH), got %q", m.Version))
	}

	if !m.Tier.Valid() {
		errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
			"manifest validation: tier must be one of [main-app, a, b, c], got %q", m.Tier))
	}

	if m.Core && m.Tier != pkgplugin.TierA && m.Tier != pkgplugin.TierMainApp {
		errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
			"manifest validation: core may only be set for tier a or main-app, got tier %q", m.Tier))
	}

	errs = append(errs, m.validateCapabilities()...)
	errs = append(errs, m.validateHooks()...)
	errs = append(errs, m.validateAuthz()...)
	errs = append(errs, m.validateMigrations()...)
	errs = append(errs, m.validateEnterprise()...)

	return errs
}

func (m *Manifest) validateCapabilities() []error {
	var errs []error

	seen := make(map[string]bool, len(m.Capabilities))
	for i, cap := range m.Capabilities {
		if err := validateCapPattern(cap); err != nil {
			errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
				"manifest validation: capabilities[%d]: %s", i, err))
			continue
		}
		if seen[cap] {
			errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
				"manifest validation: capabilities[%d]: duplicate capability %q", i, cap))
			continue
		}
		seen[cap] = true

		// Only the main-app may request wildcard capabilities; everything
		// else is granted concrete permissions.
		if m.Tier != pkgplugin.TierMainApp && strings.Contains(cap, "*") {
			errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
				"manifest validation: capabilities[%d]: wildcard %q requires tier main-app", i, cap))
		}
	}

	for key := range m.Features {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
				"manifest validation: features must not have empty keys"))
		}
	}

	return errs
}

func (m *Manifest) validateHooks() []error {
	var errs []error

	for i, b := range m.Hooks {
		if !hookNameRe.MatchString(b.Hook) {
			errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
				"manifest validation: hooks[%d]: hook name must be \"namespace:name\", got %q", i, b.Hook))
		}
		if strings.TrimSpace(b.Handler) == "" {
			errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
				"manifest validation: hooks[%d]: handler must not be empty", i))
		}
	}

	for i, name := range m.DefinedHooks {
		if err := m.validateDefinedName(name); err != nil {
			errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
				"manifest validation: defined_hooks[%d]: %s", i, err))
		}
	}
	for i, name := range m.DefinedFilters {
		if err := m.validateDefinedName(name); err != nil {
			errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
				"manifest validation: defined_filters[%d]: %s", i, err))
		}
	}

	return errs
}

// validateDefinedName checks a hook or filter a plugin declares as its own.
// Declared names live in the plugin's namespace so dispatch can enforce
// ownership at request time.
func (m *Manifest) validateDefinedName(name string) error {
	if !hookNameRe.MatchString(name) {
		return fmt.Errorf("name must be \"namespace:name\", got %q", name)
	}
	if m.ID != "" && !strings.HasPrefix(name, m.ID+":") {
		return fmt.Errorf("name %q must use the plugin's own namespace %q", name, m.ID+":")
	}
	return nil
}

func (m *Manifest) validateAuthz() []error {
	var errs []error

	if m.AuthzNamespace == "" {
		return nil
	}
	if !idRe.MatchString(m.AuthzNamespace) {
		errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
			"manifest validation: authz_namespace must be a lowercase slug, got %q", m.AuthzNamespace))
	}
	// Non-main-app plugins resolve authorization only for themselves.
	if m.Tier != pkgplugin.TierMainApp && m.AuthzNamespace != m.ID {
		errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
			"manifest validation: authz_namespace %q must equal the plugin id %q", m.AuthzNamespace, m.ID))
	}

	return errs
}

func (m *Manifest) validateMigrations() []error {
	var errs []error

	for i, id := range m.Migrations {
		if !migrationRe.MatchString(id) {
			errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
				"manifest validation: migrations[%d]: id must look like \"001_name\", got %q", i, id))
		}
	}

	return errs
}

func (m *Manifest) validateEnterprise() []error {
	var errs []error

	if m.RequiresEnterprise && len(m.EnterpriseFeatures) == 0 {
		errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
			"manifest validation: requires_enterprise is set but enterprise_features is empty"))
	}
	if !m.RequiresEnterprise && len(m.EnterpriseFeatures) > 0 {
		errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
			"manifest validation: enterprise_features listed without requires_enterprise"))
	}
	for i, f := range m.EnterpriseFeatures {
		if strings.TrimSpace(f) == "" {
			errs = append(errs, atriumerr.Errorf(atriumerr.CodePluginManifestValidateInvalid,
				"manifest validation: enterprise_features[%d] must not be empty", i))
		}
	}

	return errs
}

// HasFeature reports whether the manifest declares AND enables a feature.
func (m *Manifest) HasFeature(name string) bool {
	return m.Features[name]
}

// DeclaresFeature reports whether a feature key exists in the manifest,
// enabled or not.
func (m *Manifest) DeclaresFeature(name string) bool {
	_, ok := m.Features[name]
	return ok
}

// DeclaresHook reports whether the plugin declared name as one of its own
// hooks or filters.
func (m *Manifest) DeclaresHook(name string) bool {
	for _, h := range m.DefinedHooks {
		if h == name {
			return true
		}
	}
	for _, f := range m.DefinedFilters {
		if f == name {
			return true
		}
	}
	return false
}

// validateCapPattern checks that a capability pattern string is well-formed.
// This catches malformed patterns at manifest load time so that
// security.MatchCapability never returns errors during enforcement.
func validateCapPattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("capability pattern must not be empty")
	}
	if !capPatternRe.MatchString(pattern) {
		return fmt.Errorf("capability pattern %q contains invalid characters", pattern)
	}
	if strings.HasPrefix(pattern, ".") || strings.HasSuffix(pattern, ".") {
		return fmt.Errorf("capability pattern %q must not start or end with a dot", pattern)
	}
	if strings.Contains(pattern, "..") {
		return fmt.Errorf("capability pattern %q contains consecutive dots", pattern)
	}
	// Reject patterns that would exceed the segment limit enforced by
	// security.MatchCapability (maxSegments = 32). Catching this at
	// validation time prevents silent skip in CapabilitySet.Contains.
	if segments := strings.Count(pattern, ".") + 1; segments > 32 {
		return fmt.Errorf("capability pattern %q exceeds maximum 32 segments (has %d)", pattern, segments)
	}
	return nil
}
