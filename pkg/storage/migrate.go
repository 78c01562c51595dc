package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the links and click_events tables if they do not exist.
// The unique index on short_code covers every row regardless of deleted_at,
// which is what keeps retired codes from being reallocated.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS links (
			id UUID PRIMARY KEY,
			original_url TEXT NOT NULL,
			short_code VARCHAR(6) NOT NULL,
			owner_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_links_short_code ON links (short_code)`,
		`CREATE INDEX IF NOT EXISTS idx_links_owner_id ON links (owner_id) WHERE deleted_at IS NULL`,
		`CREATE TABLE IF NOT EXISTS click_events (
			id UUID PRIMARY KEY,
			link_id UUID NOT NULL REFERENCES links (id) ON DELETE CASCADE,
			user_agent VARCHAR,
			ip_address VARCHAR,
			clicked_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_click_events_link_id ON click_events (link_id)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
