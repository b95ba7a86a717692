// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package facade

import (
	"context"

	"github.com/atrium-host/atrium/internal/resource"
)

// Resources resolves typed resources through providers collected at boot.
// Resolution runs inside the request's tenant session, so providers see the
// same membership scoping as every other store read.
type Resources struct {
	base
	registry *resource.Registry
}

// Resolve looks up one resource by type and id.
func (r *Resources) Resolve(ctx context.Context, resourceType, id string) (any, error) {
	scope, err := r.guard(ctx)
	if err != nil {
		return nil, err
	}
	return r.registry.Resolve(ctx, resourceType, scope.Session, id)
}
