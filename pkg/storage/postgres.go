package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

type PostgresLinkStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresLinkStorage(pool *pgxpool.Pool) *PostgresLinkStorage {
	return &PostgresLinkStorage{pool: pool}
}

func (s *PostgresLinkStorage) CodeExists(ctx context.Context, code string) (bool, error) {
	// Deliberately no deleted_at filter: retired codes stay reserved.
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM links WHERE short_code = $1)`, code).Scan(&exists)
	return exists, err
}

func (s *PostgresLinkStorage) Insert(ctx context.Context, link *Link) error {
	query := `INSERT INTO links (id, original_url, short_code, owner_id, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query,
		link.ID, link.OriginalURL, link.ShortCode, link.OwnerID, link.CreatedAt, link.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrCodeTaken
		}
		return err
	}
	return nil
}

func (s *PostgresLinkStorage) FindActiveByCode(ctx context.Context, code string) (*Link, error) {
	query := `SELECT id, original_url, short_code, owner_id, created_at, updated_at, deleted_at
	          FROM links WHERE short_code = $1 AND deleted_at IS NULL`
	return s.scanLink(s.pool.QueryRow(ctx, query, code))
}

func (s *PostgresLinkStorage) FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]Link, error) {
	query := `SELECT id, original_url, short_code, owner_id, created_at, updated_at, deleted_at
	          FROM links WHERE owner_id = $1 AND deleted_at IS NULL
	          ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var link Link
		if err := rows.Scan(&link.ID, &link.OriginalURL, &link.ShortCode, &link.OwnerID,
			&link.CreatedAt, &link.UpdatedAt, &link.DeletedAt); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *PostgresLinkStorage) FindOwnedActiveByID(ctx context.Context, id, ownerID uuid.UUID) (*Link, error) {
	query := `SELECT id, original_url, short_code, owner_id, created_at, updated_at, deleted_at
	          FROM links WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`
	return s.scanLink(s.pool.QueryRow(ctx, query, id, ownerID))
}

func (s *PostgresLinkStorage) Update(ctx context.Context, link *Link) error {
	query := `UPDATE links SET original_url = $2, updated_at = $3, deleted_at = $4 WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, link.ID, link.OriginalURL, link.UpdatedAt, link.DeletedAt)
	return err
}

func (s *PostgresLinkStorage) scanLink(row pgx.Row) (*Link, error) {
	var link Link
	err := row.Scan(&link.ID, &link.OriginalURL, &link.ShortCode, &link.OwnerID,
		&link.CreatedAt, &link.UpdatedAt, &link.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

type PostgresClickStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresClickStorage(pool *pgxpool.Pool) *PostgresClickStorage {
	return &PostgresClickStorage{pool: pool}
}

func (s *PostgresClickStorage) Insert(ctx context.Context, event *ClickEvent) error {
	query := `INSERT INTO click_events (id, link_id, user_agent, ip_address, clicked_at)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, query,
		event.ID, event.LinkID, event.UserAgent, event.IPAddress, event.ClickedAt)
	return err
}

func (s *PostgresClickStorage) CountByLink(ctx context.Context, linkID uuid.UUID) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM click_events WHERE link_id = $1`, linkID).Scan(&count)
	return count, err
}
