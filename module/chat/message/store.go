package message

import (
	"context"
	"strings"

	chatmodel "PulseIM/module/chat/model"
	"PulseIM/tools/errs"
)

// Store is the message persistence gateway. The router treats it as
// the source of truth; in-memory presence state never substitutes for
// a store read.
type Store interface {
	// Create persists a new message with status=sent. Fails with
	// errs.ErrValidation when content and mediaURL are both empty.
	Create(ctx context.Context, sendID, recvID, content, mediaURL string) (*chatmodel.Message, error)

	// GetByID returns errs.ErrNotFound when the message is missing.
	GetByID(ctx context.Context, msgID string) (*chatmodel.Message, error)

	// ListBetween returns the conversation between viewer and other,
	// ascending by create time, excluding messages the viewer
	// soft-deleted.
	ListBetween(ctx context.Context, viewer, other string) ([]*chatmodel.Message, error)

	// SetStatus bulk-moves messages to status, forward transitions
	// only; anything else in ids is silently skipped. Returns the ids
	// that actually transitioned.
	SetStatus(ctx context.Context, msgIDs []string, status chatmodel.MsgStatus) ([]string, error)

	// MarkDelivered moves all sent messages from sendID to recvID to
	// delivered and returns the transitioned ids.
	MarkDelivered(ctx context.Context, sendID, recvID string) ([]string, error)

	// MarkRead moves the given messages of the sendID->recvID
	// conversation to read (all of them when ids is empty).
	MarkRead(ctx context.Context, sendID, recvID string, msgIDs []string) ([]string, error)

	// Delete removes a message; only the original sender may.
	Delete(ctx context.Context, msgID, requester string) error

	// DeleteFor soft-deletes a message for one viewer only.
	DeleteFor(ctx context.Context, msgID, viewer string) error

	// AddReaction upserts the reactor's emoji (one reaction per
	// message+reactor; a second add replaces the emoji).
	AddReaction(ctx context.Context, msgID, reactor, emoji string) (*chatmodel.Message, error)

	// RemoveReaction drops the reactor's reaction; no-op when absent.
	RemoveReaction(ctx context.Context, msgID, reactor string) (*chatmodel.Message, error)

	// UnreadCounts aggregates sender -> count of messages addressed to
	// recvID still in {sent, delivered}.
	UnreadCounts(ctx context.Context, recvID string) (map[string]int64, error)
}

// ValidateBody enforces the body/media invariant shared by all
// implementations. The router calls it before any relationship check
// so a malformed message is refused as malformed, whatever the
// relationship state.
func ValidateBody(content, mediaURL string) error {
	if strings.TrimSpace(content) == "" && strings.TrimSpace(mediaURL) == "" {
		return errs.ErrValidation.WrapMsg("message needs text or media")
	}
	return nil
}
