// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package facade

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/atrium-host/atrium/internal/store"
	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

const (
	notificationMaxMetadataBytes = 4096
	notificationMaxBatch         = 100
)

// Notification is the payload a plugin submits. Size limits are enforced
// before any row is written; Metadata is additionally capped by its
// serialized size.
type Notification struct {
	RecipientID string         `validate:"required"`
	Type        string         `validate:"required"`
	Title       string         `validate:"required,max=200"`
	Body        string         `validate:"max=1000"`
	Metadata    map[string]any `validate:"-"`
}

// Notifications delivers notifications to members of the requesting tenant.
type Notifications struct {
	base
	pluginID string
	validate *validator.Validate
}

// Send validates and stores one notification.
func (n *Notifications) Send(ctx context.Context, note Notification) error {
	scope, err := n.guard(ctx)
	if err != nil {
		return err
	}
	if err := n.validateNote(note); err != nil {
		return err
	}
	if err := n.checkRecipient(ctx, scope, note.RecipientID); err != nil {
		return err
	}
	return scope.Session.Notifications().Insert(ctx, n.record(note))
}

// SendBatch validates every notification and every recipient before storing
// anything, so a bad entry fails the batch without side effects.
func (n *Notifications) SendBatch(ctx context.Context, notes []Notification) error {
	scope, err := n.guard(ctx)
	if err != nil {
		return err
	}
	if len(notes) > notificationMaxBatch {
		return atriumerr.Errorf(atriumerr.CodeFacadeNotificationInvalid,
			"batch size %d exceeds maximum %d", len(notes), notificationMaxBatch)
	}
	for _, note := range notes {
		if err := n.validateNote(note); err != nil {
			return err
		}
		if err := n.checkRecipient(ctx, scope, note.RecipientID); err != nil {
			return err
		}
	}

	records := make([]*store.Notification, 0, len(notes))
	for _, note := range notes {
		records = append(records, n.record(note))
	}
	return scope.Session.Notifications().InsertBatch(ctx, records)
}

func (n *Notifications) validateNote(note Notification) error {
	if err := n.validate.Struct(note); err != nil {
		return atriumerr.Wrap(err, atriumerr.CodeFacadeNotificationInvalid,
			"notification payload invalid")
	}
	if !strings.HasPrefix(note.Type, n.pluginID+":") {
		return atriumerr.Errorf(atriumerr.CodeFacadeNamespaceForbidden,
			"notification type %q must use the %s: namespace", note.Type, n.pluginID)
	}
	if note.Metadata != nil {
		b, err := json.Marshal(note.Metadata)
		if err != nil {
			return atriumerr.Wrap(err, atriumerr.CodeFacadeNotificationInvalid,
				"notification metadata is not serializable")
		}
		if len(b) > notificationMaxMetadataBytes {
			return atriumerr.Errorf(atriumerr.CodeFacadeNotificationInvalid,
				"notification metadata is %d serialized bytes, maximum %d", len(b), notificationMaxMetadataBytes)
		}
	}
	return nil
}

func (n *Notifications) checkRecipient(ctx context.Context, scope *Scope, recipientID string) error {
	member, err := scope.Session.Users().IsMember(ctx, recipientID)
	if err != nil {
		return err
	}
	if !member {
		return atriumerr.Errorf(atriumerr.CodeFacadeRecipientForbidden,
			"recipient %s is not a member of tenant %s", recipientID, scope.TenantID)
	}
	return nil
}

func (n *Notifications) record(note Notification) *store.Notification {
	return &store.Notification{
		ID:          uuid.NewString(),
		RecipientID: note.RecipientID,
		Type:        note.Type,
		Title:       note.Title,
		Body:        note.Body,
		Metadata:    note.Metadata,
		CreatedAt:   time.Now().UTC(),
	}
}
