// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package facade

import (
	"context"
	"strings"

	"github.com/atrium-host/atrium/internal/store"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

const (
	searchMinQueryLen  = 2
	searchDefaultLimit = 20
	searchMaxLimit     = 50
)

// Users looks up users within the requesting tenant's membership. All reads
// go through the request's transaction-bound session; other tenants' users
// do not exist from this facade's point of view.
type Users struct {
	base
}

// FindByID returns one tenant member.
func (u *Users) FindByID(ctx context.Context, id string) (*store.User, error) {
	scope, err := u.guard(ctx)
	if err != nil {
		return nil, err
	}
	return scope.Session.Users().FindByID(ctx, id)
}

// FindByIDs returns the tenant members among ids, omitting unknown ids.
func (u *Users) FindByIDs(ctx context.Context, ids []string) ([]*store.User, error) {
	scope, err := u.guard(ctx)
	if err != nil {
		return nil, err
	}
	return scope.Session.Users().FindByIDs(ctx, ids)
}

// Search matches members by name or email. The query must be at least two
// characters; the result limit is clamped to 50 and defaults to 20.
func (u *Users) Search(ctx context.Context, query string, limit int) ([]*store.User, error) {
	scope, err := u.guard(ctx)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(query)) < searchMinQueryLen {
		return nil, atriumerr.Errorf(atriumerr.CodeFacadeQueryInvalid,
			"search query must be at least %d characters", searchMinQueryLen)
	}
	if limit <= 0 {
		limit = searchDefaultLimit
	}
	if limit > searchMaxLimit {
		limit = searchMaxLimit
	}
	return scope.Session.Users().Search(ctx, query, limit)
}

// CurrentUser returns the requesting actor's own record.
func (u *Users) CurrentUser(ctx context.Context) (*store.User, error) {
	scope, err := u.guard(ctx)
	if err != nil {
		return nil, err
	}
	return scope.Session.Users().FindByID(ctx, scope.UserID)
}
