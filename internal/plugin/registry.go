// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package plugin

import (
	"sync"

	"github.com/atrium-host/atrium/internal/security"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

// Status is the lifecycle status of a registered plugin.
type Status string

const (
	StatusRegistered  Status = "registered"
	StatusActive      Status = "active"
	StatusQuarantined Status = "quarantined"
)

// validStatusTransitions defines allowed status transitions as an adjacency
// list. Quarantine is terminal for the boot cycle: nothing leaves it.
var validStatusTransitions = map[Status]map[Status]bool{
	StatusRegistered: {
		StatusActive:      true,
		StatusQuarantined: true,
	},
	StatusActive: {
		StatusQuarantined: true,
	},
	StatusQuarantined: {},
}

// ValidStatusTransition returns true if moving from one status to another is allowed.
func ValidStatusTransition(from, to Status) bool {
	allowed, exists := validStatusTransitions[from][to]
	return exists && allowed
}

// Record is a snapshot of one plugin's registry state.
type Record struct {
	Manifest         *Manifest
	Status           Status
	QuarantineReason string
	// Granted is the capability set decided at boot.
	Granted []string
	// CoreGrants is the deployment-granted subset of core runtime
	// capabilities, tracked separately for the facade layer.
	CoreGrants []string
}

// HasGrant reports whether the record's granted set covers cap.
func (r Record) HasGrant(cap string) bool {
	return security.NewCapabilitySet(r.Granted...).Contains(cap)
}

// QuarantineEntry pairs a quarantined plugin with the reason it was isolated.
type QuarantineEntry struct {
	ID     string
	Reason string
}

// Stats summarizes registry contents.
type Stats struct {
	Total       int
	Registered  int
	Active      int
	Quarantined int
}

// Registry tracks every plugin the boot reconciler has accepted. It is
// mutated during boot and read-only at request time; the mutex exists for
// the admin API and tests, not for request-path contention.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*Record),
	}
}

// Register adds a plugin record in status registered. Registering a nil
// manifest, an empty id, or a duplicate id is an error.
func (r *Registry) Register(m *Manifest) error {
	if m == nil {
		return atriumerr.New(atriumerr.CodeStoreInvalidInput, "registry: nil manifest")
	}
	if m.ID == "" {
		return atriumerr.New(atriumerr.CodePluginManifestValidateInvalid, "registry: manifest has no id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[m.ID]; exists {
		return atriumerr.Errorf(atriumerr.CodePluginRegisterConflict,
			"registry: plugin %q already registered", m.ID)
	}

	r.records[m.ID] = &Record{Manifest: m, Status: StatusRegistered}
	r.order = append(r.order, m.ID)
	return nil
}

// Get returns a snapshot of one plugin record.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Quarantine isolates a plugin for the remainder of the boot cycle.
// Quarantining an already-quarantined plugin is a no-op that keeps the
// first recorded reason.
func (r *Registry) Quarantine(id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return atriumerr.Errorf(atriumerr.CodePluginNotFound, "registry: plugin %q not found", id)
	}
	if rec.Status == StatusQuarantined {
		return nil
	}

	rec.Status = StatusQuarantined
	rec.QuarantineReason = reason
	return nil
}

// Activate transitions a registered plugin to active. Quarantined plugins
// cannot be activated.
func (r *Registry) Activate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return atriumerr.Errorf(atriumerr.CodePluginNotFound, "registry: plugin %q not found", id)
	}
	if !ValidStatusTransition(rec.Status, StatusActive) {
		return atriumerr.Errorf(atriumerr.CodePluginStatusTransitionInvalid,
			"registry: invalid status transition for %q: %s -> %s", id, rec.Status, StatusActive)
	}

	rec.Status = StatusActive
	return nil
}

// SetGrants records the decided capability grants for a plugin.
func (r *Registry) SetGrants(id string, granted, coreGrants []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return atriumerr.Errorf(atriumerr.CodePluginNotFound, "registry: plugin %q not found", id)
	}

	rec.Granted = append([]string(nil), granted...)
	rec.CoreGrants = append([]string(nil), coreGrants...)
	return nil
}

// IDs returns all plugin ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Active returns the ids of active plugins in registration order.
func (r *Registry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []string
	for _, id := range r.order {
		if r.records[id].Status == StatusActive {
			active = append(active, id)
		}
	}
	return active
}

// Quarantined returns the quarantined plugins with reasons, in
// registration order.
func (r *Registry) Quarantined() []QuarantineEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []QuarantineEntry
	for _, id := range r.order {
		rec := r.records[id]
		if rec.Status == StatusQuarantined {
			entries = append(entries, QuarantineEntry{ID: id, Reason: rec.QuarantineReason})
		}
	}
	return entries
}

// Stats returns aggregate counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Total: len(r.order)}
	for _, rec := range r.records {
		switch rec.Status {
		case StatusRegistered:
			s.Registered++
		case StatusActive:
			s.Active++
		case StatusQuarantined:
			s.Quarantined++
		}
	}
	return s
}

// Reset clears all records. Tests use this between boot cycles.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make(map[string]*Record)
	r.order = nil
}
