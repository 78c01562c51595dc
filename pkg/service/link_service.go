package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"shortlink/pkg/clicks"
	"shortlink/pkg/logging"
	"shortlink/pkg/storage"

	"github.com/google/uuid"
)

// maxAllocationAttempts bounds the generate-and-check loop. Collisions are
// vanishingly rare until the code space fills up, at which point looping
// forever would be worse than failing the create.
const maxAllocationAttempts = 10

var (
	// ErrNotFound covers a missing code on resolve and, deliberately, the
	// missing / soft-deleted / foreign-owned cases on update and delete.
	ErrNotFound = errors.New("link not found")
	// ErrInvalidURL rejects create/update input before touching storage.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrAllocationExhausted means the retry budget ran out without an
	// unused code. Surfaced as a server error, never as user input error.
	ErrAllocationExhausted = errors.New("short code allocation exhausted")
)

type LinkService struct {
	storage  storage.LinkStorage
	clickSt  storage.ClickStorage
	recorder clicks.Recorder
	logger   *logging.Logger
	nowFunc  func() time.Time
}

func NewLinkService(st storage.LinkStorage, clickSt storage.ClickStorage, recorder clicks.Recorder, logger *logging.Logger) *LinkService {
	return &LinkService{
		storage:  st,
		clickSt:  clickSt,
		recorder: recorder,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

type CreateLinkRequest struct {
	OriginalURL string `json:"original_url"`
}

// RequestMeta carries what the redirect request knows about the visitor.
// Both fields are best-effort; empty means absent.
type RequestMeta struct {
	UserAgent string
	IPAddress string
}

// LinkWithClicks is a listing row: the link plus its aggregated click count.
type LinkWithClicks struct {
	storage.Link
	ClickCount int64 `json:"click_count"`
}

// CreateLink validates the target URL, allocates an unused short code and
// persists the link. ownerID is nil for anonymous creation.
func (s *LinkService) CreateLink(ctx context.Context, req *CreateLinkRequest, ownerID *uuid.UUID) (*storage.Link, error) {
	if err := validateURL(req.OriginalURL); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxAllocationAttempts; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return nil, err
		}

		// Advisory pre-check; the unique index is what actually decides.
		exists, err := s.storage.CodeExists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("check short code: %w", err)
		}
		if exists {
			s.logger.LogAllocationRetry(ctx, attempt, code)
			continue
		}

		now := s.nowFunc().UTC()
		link := &storage.Link{
			ID:          uuid.New(),
			OriginalURL: req.OriginalURL,
			ShortCode:   code,
			OwnerID:     ownerID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err = s.storage.Insert(ctx, link)
		if err == nil {
			s.logger.LogLinkOperation(ctx, "create", code, true)
			return link, nil
		}
		if errors.Is(err, storage.ErrCodeTaken) {
			// Lost the race between pre-check and insert. Start over
			// with a fresh code.
			s.logger.LogAllocationRetry(ctx, attempt, code)
			continue
		}
		return nil, fmt.Errorf("insert link: %w", err)
	}

	s.logger.LogLinkOperation(ctx, "create", "", false)
	return nil, ErrAllocationExhausted
}

// Resolve looks up an active link by short code, records the click and
// returns the redirect target. Click recording can never fail the resolve.
func (s *LinkService) Resolve(ctx context.Context, code string, meta RequestMeta) (string, error) {
	link, err := s.storage.FindActiveByCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("find link: %w", err)
	}
	if link == nil {
		return "", ErrNotFound
	}

	s.recorder.Record(ctx, link.ID, meta.UserAgent, meta.IPAddress)

	return link.OriginalURL, nil
}

// ListLinks returns an owner's active links, newest first, each with its
// click count. One count query per link; fine at this scale.
func (s *LinkService) ListLinks(ctx context.Context, ownerID uuid.UUID) ([]LinkWithClicks, error) {
	links, err := s.storage.FindActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	result := make([]LinkWithClicks, 0, len(links))
	for _, link := range links {
		count, err := s.clickSt.CountByLink(ctx, link.ID)
		if err != nil {
			return nil, fmt.Errorf("count clicks: %w", err)
		}
		result = append(result, LinkWithClicks{Link: link, ClickCount: count})
	}
	return result, nil
}

// UpdateLink changes the target URL of a link the caller owns. A missing,
// soft-deleted or foreign-owned id all come back as ErrNotFound.
func (s *LinkService) UpdateLink(ctx context.Context, id, ownerID uuid.UUID, originalURL string) (*storage.Link, error) {
	if err := validateURL(originalURL); err != nil {
		return nil, err
	}

	link, err := s.storage.FindOwnedActiveByID(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("find link: %w", err)
	}
	if link == nil {
		return nil, ErrNotFound
	}

	link.OriginalURL = originalURL
	link.UpdatedAt = s.nowFunc().UTC()

	if err := s.storage.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("update link: %w", err)
	}

	s.logger.LogLinkOperation(ctx, "update", link.ShortCode, true)
	return link, nil
}

// SoftDeleteLink retires a link the caller owns. The row stays so the
// short code remains reserved forever.
func (s *LinkService) SoftDeleteLink(ctx context.Context, id, ownerID uuid.UUID) error {
	link, err := s.storage.FindOwnedActiveByID(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("find link: %w", err)
	}
	if link == nil {
		return ErrNotFound
	}

	now := s.nowFunc().UTC()
	link.DeletedAt = &now
	link.UpdatedAt = now

	if err := s.storage.Update(ctx, link); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}

	s.logger.LogLinkOperation(ctx, "delete", link.ShortCode, true)
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return ErrInvalidURL
	}
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrInvalidURL
	}
	if parsed.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
