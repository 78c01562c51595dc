package storage

import (
	"time"

	"github.com/google/uuid"
)

// Link maps a short code to its original URL. DeletedAt marks a soft
// delete: the row stays in place so the code is never handed out again.
type Link struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	OriginalURL string     `json:"original_url" db:"original_url"`
	ShortCode   string     `json:"short_code" db:"short_code"`
	OwnerID     *uuid.UUID `json:"owner_id,omitempty" db:"owner_id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// ClickEvent records one successful resolution of a link. Events are
// append-only; rows only disappear via the cascade when a link row is
// physically removed.
type ClickEvent struct {
	ID        uuid.UUID `json:"id" db:"id"`
	LinkID    uuid.UUID `json:"link_id" db:"link_id"`
	UserAgent *string   `json:"user_agent,omitempty" db:"user_agent"`
	IPAddress *string   `json:"ip_address,omitempty" db:"ip_address"`
	ClickedAt time.Time `json:"clicked_at" db:"clicked_at"`
}
