// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

// Package security implements the capability model plugins are granted
// against: dot-segment capability patterns, per-tier ceilings, and the
// pure grant decision applied at boot. Only the "*" glob is supported
// (no "?", "[...]" or other glob metacharacters).
package security

import (
	"strings"

	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

// maxSegments bounds the dotted inputs MatchCapability accepts. Real
// capabilities run two or three segments; anything past the bound is
// corrupt or hostile input, not a grant.
const maxSegments = 32

// MatchCapability reports whether capability is matched by pattern. Both
// are dotted identifiers. A pattern segment that is exactly "*" stands in
// for one or more capability segments; a "*" inside a longer segment
// matches zero or more characters within that one segment.
//
// Empty or malformed inputs (leading, trailing, or doubled dots) match
// nothing. Inputs over maxSegments segments return an error.
func MatchCapability(pattern, capability string) (bool, error) {
	patSegs, ok := splitSegments(pattern)
	if !ok {
		return false, nil
	}
	capSegs, ok := splitSegments(capability)
	if !ok {
		return false, nil
	}
	if len(patSegs) > maxSegments {
		return false, atriumerr.Errorf(atriumerr.CodeSecurityCapabilityInvalid, "pattern exceeds maximum %d segments: got %d", maxSegments, len(patSegs))
	}
	if len(capSegs) > maxSegments {
		return false, atriumerr.Errorf(atriumerr.CodeSecurityCapabilityInvalid, "capability exceeds maximum %d segments: got %d", maxSegments, len(capSegs))
	}
	return coverSegments(patSegs, capSegs), nil
}

// splitSegments splits a dotted identifier. ok is false when the input is
// empty or any segment is empty, which folds the leading-dot, trailing-dot
// and doubled-dot cases into one check.
func splitSegments(s string) ([]string, bool) {
	if s == "" {
		return nil, false
	}
	segs := strings.Split(s, ".")
	for _, seg := range segs {
		if seg == "" {
			return nil, false
		}
	}
	return segs, true
}

// coverSegments reports whether the pattern segments cover all capability
// segments. It fills a table from the tail: after processing pattern
// segment i, next[j] answers whether pattern[i:] covers capability[j:].
func coverSegments(pattern, capability []string) bool {
	next := make([]bool, len(capability)+1)
	next[len(capability)] = true
	row := make([]bool, len(capability)+1)

	for i := len(pattern) - 1; i >= 0; i-- {
		// Every pattern segment, "*" included, consumes at least one
		// capability segment.
		row[len(capability)] = false
		for j := len(capability) - 1; j >= 0; j-- {
			if pattern[i] == "*" {
				// Take capability[j], then either advance the pattern or
				// let the same "*" take the following segment as well.
				row[j] = next[j+1] || row[j+1]
			} else {
				row[j] = segmentCovers(pattern[i], capability[j]) && next[j+1]
			}
		}
		next, row = row, next
	}
	return next[0]
}

// segmentCovers matches one pattern segment against one capability
// segment, treating "*" as zero or more characters. The pattern is cut at
// each "*": the first literal chunk must sit at the start of the value,
// the last at its end, and the chunks between are located left to right.
func segmentCovers(pattern, value string) bool {
	chunks := strings.Split(pattern, "*")
	if len(chunks) == 1 {
		return pattern == value
	}
	if !strings.HasPrefix(value, chunks[0]) {
		return false
	}
	rest := value[len(chunks[0]):]
	last := len(chunks) - 1
	for _, chunk := range chunks[1:last] {
		i := strings.Index(rest, chunk)
		if i < 0 {
			return false
		}
		rest = rest[i+len(chunk):]
	}
	return strings.HasSuffix(rest, chunks[last])
}

// CapabilitySet is an immutable set of capability patterns. The zero
// value is the empty set and grants nothing.
type CapabilitySet struct {
	patterns []string
}

// NewCapabilitySet copies patterns into a new set.
func NewCapabilitySet(patterns ...string) CapabilitySet {
	return CapabilitySet{patterns: append([]string(nil), patterns...)}
}

// Contains reports whether capability is matched by at least one pattern
// in the set. Patterns that fail MatchCapability are skipped rather than
// surfaced, so sets must be built from validated patterns; manifest
// validation rejects oversized patterns before a set is ever constructed.
func (s CapabilitySet) Contains(capability string) bool {
	for _, pattern := range s.patterns {
		if ok, err := MatchCapability(pattern, capability); err == nil && ok {
			return true
		}
	}
	return false
}

// AllowedBy reports whether capability is granted by this set and by
// other. The facade layer uses it to intersect a plugin's deployment
// grants with the grants of the current request.
func (s CapabilitySet) AllowedBy(other CapabilitySet, capability string) bool {
	return s.Contains(capability) && other.Contains(capability)
}
