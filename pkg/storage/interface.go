package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrCodeTaken is returned by Insert when the short_code unique index
// rejects the row. Callers retry allocation; it never reaches users.
var ErrCodeTaken = errors.New("short code already taken")

type LinkStorage interface {
	// CodeExists reports whether a code is present in any row,
	// soft-deleted rows included.
	CodeExists(ctx context.Context, code string) (bool, error)
	// Insert persists a new link. The unique index on short_code is the
	// authoritative uniqueness guard; violations surface as ErrCodeTaken.
	Insert(ctx context.Context, link *Link) error
	// FindActiveByCode returns the non-deleted link for a code, or nil.
	FindActiveByCode(ctx context.Context, code string) (*Link, error)
	// FindActiveByOwner lists an owner's non-deleted links, newest first.
	FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]Link, error)
	// FindOwnedActiveByID is the authorization gate for update/delete.
	// It returns nil whether the link is missing, soft-deleted, or owned
	// by someone else; callers cannot tell these apart.
	FindOwnedActiveByID(ctx context.Context, id, ownerID uuid.UUID) (*Link, error)
	// Update persists original_url, updated_at and deleted_at. The caller
	// sets the timestamps before calling.
	Update(ctx context.Context, link *Link) error
}

type ClickStorage interface {
	Insert(ctx context.Context, event *ClickEvent) error
	CountByLink(ctx context.Context, linkID uuid.UUID) (int64, error)
}
