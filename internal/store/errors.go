// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package store

import "errors"

// Store operations report failure through these sentinels, checked with
// errors.Is. The HTTP layer maps them to coded errors at its boundary;
// inside the store packages they stay plain.
var (
	// ErrNotFound: no such entity inside the session's tenant scope.
	ErrNotFound = errors.New("not found")

	// ErrConflict: unique-constraint violation or already-existing entity.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput: malformed or missing operation parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionClosed: operation on a TenantSession after Commit or Close.
	ErrSessionClosed = errors.New("tenant session closed")

	// ErrDatabase: catch-all for unexpected backend failures.
	ErrDatabase = errors.New("database error")
)
