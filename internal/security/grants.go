// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package security

import (
	"github.com/atrium-host/atrium/pkg/plugin"
)

// Capability vocabulary. The first five are the core runtime capabilities:
// each is backed by a host service whose availability varies per deployment,
// so tier-C grants re-check them against the live Deployment.
const (
	CapUsersRead         = "users.read"
	CapResourcesRead     = "resources.read"
	CapPermissionsManage = "permissions.manage"
	CapNotificationsSend = "notifications.send"
	CapHooksDefine       = "hooks.define"

	CapRoutesRegister = "routes.register"
	CapNavExtend      = "nav.extend"
	CapDesignOverride = "design.override"
)

// coreCapabilities is the fixed list re-checked for tier-C plugins and
// tracked per record as the deployment-granted core subset.
var coreCapabilities = []string{
	CapUsersRead,
	CapResourcesRead,
	CapPermissionsManage,
	CapNotificationsSend,
	CapHooksDefine,
}

// CoreCapabilities returns the core runtime capability list.
func CoreCapabilities() []string {
	return append([]string(nil), coreCapabilities...)
}

// IsCoreCapability reports whether cap is one of the core runtime capabilities.
func IsCoreCapability(cap string) bool {
	for _, c := range coreCapabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// tierCeilings are the maximum capability sets per trust tier. Grants never
// exceed the requesting plugin's ceiling, whatever the manifest asks for.
var tierCeilings = map[plugin.Tier]CapabilitySet{
	plugin.TierMainApp: NewCapabilitySet("*"),
	plugin.TierA: NewCapabilitySet(
		CapUsersRead, CapResourcesRead, CapPermissionsManage,
		CapNotificationsSend, CapHooksDefine, CapRoutesRegister, CapNavExtend,
	),
	plugin.TierB: NewCapabilitySet(
		CapUsersRead, CapResourcesRead, CapPermissionsManage,
		CapNotificationsSend, CapHooksDefine, CapRoutesRegister, CapNavExtend,
	),
	plugin.TierC: NewCapabilitySet(
		CapUsersRead, CapResourcesRead,
		CapNotificationsSend, CapHooksDefine, CapRoutesRegister,
	),
}

// Ceiling returns the capability ceiling for a tier. Unknown tiers get an
// empty ceiling, which denies everything.
func Ceiling(tier plugin.Tier) CapabilitySet {
	return tierCeilings[tier]
}

// Deployment carries the live backing-service availability and licensing
// facts grant decisions consult. It is assembled once from config at boot.
type Deployment struct {
	UserDirectory         bool
	ResourceProviders     bool
	PermissionsService    bool
	NotificationTransport bool
	HookDispatch          bool
	EnterpriseFeatures    []string
}

// CoreAvailable reports whether the backing service for a core capability
// is configured in this deployment. Non-core capabilities are always
// considered available.
func (d Deployment) CoreAvailable(cap string) bool {
	switch cap {
	case CapUsersRead:
		return d.UserDirectory
	case CapResourcesRead:
		return d.ResourceProviders
	case CapPermissionsManage:
		return d.PermissionsService
	case CapNotificationsSend:
		return d.NotificationTransport
	case CapHooksDefine:
		return d.HookDispatch
	default:
		return true
	}
}

// MissingEnterpriseFeatures returns the required features this deployment
// does not license, preserving the order they were required in.
func (d Deployment) MissingEnterpriseFeatures(required []string) []string {
	licensed := make(map[string]bool, len(d.EnterpriseFeatures))
	for _, f := range d.EnterpriseFeatures {
		licensed[f] = true
	}

	var missing []string
	for _, f := range required {
		if !licensed[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

// Denial records one refused capability and why.
type Denial struct {
	Capability string
	Reason     string
}

// Decision is the outcome of a grant evaluation for one plugin: the granted
// subset and the denied subset of the capabilities its manifest requested.
type Decision struct {
	Granted []string
	Denied  []Denial
}

// DecideGrants evaluates a plugin's requested capabilities against its
// tier ceiling and, for tier-C plugins, against live deployment
// availability of core capabilities. It is pure: the same inputs always
// produce the same decision, and it never returns an error. Requests
// that cannot be granted land in Denied with a reason.
func DecideGrants(tier plugin.Tier, requested []string, dep Deployment) Decision {
	var d Decision

	ceiling := Ceiling(tier)
	for _, cap := range requested {
		if !ceiling.Contains(cap) {
			d.Denied = append(d.Denied, Denial{Capability: cap, Reason: "exceeds tier ceiling"})
			continue
		}
		if tier == plugin.TierC && IsCoreCapability(cap) && !dep.CoreAvailable(cap) {
			d.Denied = append(d.Denied, Denial{Capability: cap, Reason: "backing service not configured"})
			continue
		}
		d.Granted = append(d.Granted, cap)
	}

	return d
}

// CoreGrants filters granted down to the core runtime capabilities,
// preserving grant order.
func CoreGrants(granted []string) []string {
	var core []string
	for _, cap := range granted {
		if IsCoreCapability(cap) {
			core = append(core, cap)
		}
	}
	return core
}
