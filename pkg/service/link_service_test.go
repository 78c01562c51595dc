package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shortlink/pkg/clicks"
	"shortlink/pkg/logging"
	"shortlink/pkg/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLinkStorage keeps every row ever inserted, soft-deleted included,
// and enforces code uniqueness the way the database index would.
type mockLinkStorage struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*storage.Link
	codes map[string]bool
}

func newMockLinkStorage() *mockLinkStorage {
	return &mockLinkStorage{
		byID:  make(map[uuid.UUID]*storage.Link),
		codes: make(map[string]bool),
	}
}

func (m *mockLinkStorage) CodeExists(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[code], nil
}

func (m *mockLinkStorage) Insert(ctx context.Context, link *storage.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes[link.ShortCode] {
		return storage.ErrCodeTaken
	}
	copied := *link
	m.byID[link.ID] = &copied
	m.codes[link.ShortCode] = true
	return nil
}

func (m *mockLinkStorage) FindActiveByCode(ctx context.Context, code string) (*storage.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, link := range m.byID {
		if link.ShortCode == code && link.DeletedAt == nil {
			copied := *link
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockLinkStorage) FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]storage.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var links []storage.Link
	for _, link := range m.byID {
		if link.OwnerID != nil && *link.OwnerID == ownerID && link.DeletedAt == nil {
			links = append(links, *link)
		}
	}
	return links, nil
}

func (m *mockLinkStorage) FindOwnedActiveByID(ctx context.Context, id, ownerID uuid.UUID) (*storage.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.byID[id]
	if !ok || link.DeletedAt != nil || link.OwnerID == nil || *link.OwnerID != ownerID {
		return nil, nil
	}
	copied := *link
	return &copied, nil
}

func (m *mockLinkStorage) Update(ctx context.Context, link *storage.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *link
	m.byID[link.ID] = &copied
	return nil
}

type mockClickStorage struct {
	mu     sync.Mutex
	events []storage.ClickEvent
	fail   bool
}

func (m *mockClickStorage) Insert(ctx context.Context, event *storage.ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("click storage down")
	}
	m.events = append(m.events, *event)
	return nil
}

func (m *mockClickStorage) CountByLink(ctx context.Context, linkID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, event := range m.events {
		if event.LinkID == linkID {
			count++
		}
	}
	return count, nil
}

func newTestService(t *testing.T) (*LinkService, *mockLinkStorage, *mockClickStorage) {
	t.Helper()
	linkSt := newMockLinkStorage()
	clickSt := &mockClickStorage{}
	logger := logging.NewLogger(logging.LevelError)
	recorder := clicks.NewStoreRecorder(clickSt, logger)
	return NewLinkService(linkSt, clickSt, recorder, logger), linkSt, clickSt
}

func TestCreateLinkCodeShape(t *testing.T) {
	svc, _, _ := newTestService(t)

	link, err := svc.CreateLink(context.Background(), &CreateLinkRequest{OriginalURL: "https://example.com"}, nil)
	require.NoError(t, err)
	assert.True(t, ValidCode(link.ShortCode), "code %q is not a valid short code", link.ShortCode)
	assert.Nil(t, link.OwnerID)
	assert.Nil(t, link.DeletedAt)
	assert.Equal(t, "https://example.com", link.OriginalURL)
}

func TestCreateLinkInvalidURL(t *testing.T) {
	svc, _, _ := newTestService(t)

	tests := []string{"", "notaurl", "ftp://example.com/file", "https://", "javascript:alert(1)"}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := svc.CreateLink(context.Background(), &CreateLinkRequest{OriginalURL: raw}, nil)
			assert.ErrorIs(t, err, ErrInvalidURL)
		})
	}
}

func TestCreateLinkConcurrentCodesDistinct(t *testing.T) {
	svc, _, _ := newTestService(t)

	const n = 50
	codes := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			link, err := svc.CreateLink(context.Background(), &CreateLinkRequest{OriginalURL: "https://example.com"}, nil)
			if assert.NoError(t, err) {
				codes <- link.ShortCode
			}
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]bool)
	for code := range codes {
		assert.False(t, seen[code], "code %q allocated twice", code)
		seen[code] = true
	}
	assert.Len(t, seen, n)
}

// collidingLinkStorage reports every code as taken for a fixed number of
// inserts before letting one through.
type collidingLinkStorage struct {
	*mockLinkStorage
	mu         sync.Mutex
	collisions int
}

func (c *collidingLinkStorage) CodeExists(ctx context.Context, code string) (bool, error) {
	// Pre-check always passes; collisions surface on insert only.
	return false, nil
}

func (c *collidingLinkStorage) Insert(ctx context.Context, link *storage.Link) error {
	c.mu.Lock()
	if c.collisions > 0 {
		c.collisions--
		c.mu.Unlock()
		return storage.ErrCodeTaken
	}
	c.mu.Unlock()
	return c.mockLinkStorage.Insert(ctx, link)
}

func TestCreateLinkRetriesOnInsertCollision(t *testing.T) {
	linkSt := &collidingLinkStorage{mockLinkStorage: newMockLinkStorage(), collisions: 3}
	clickSt := &mockClickStorage{}
	logger := logging.NewLogger(logging.LevelError)
	svc := NewLinkService(linkSt, clickSt, clicks.NewStoreRecorder(clickSt, logger), logger)

	link, err := svc.CreateLink(context.Background(), &CreateLinkRequest{OriginalURL: "https://example.com"}, nil)
	require.NoError(t, err)
	assert.True(t, ValidCode(link.ShortCode))
}

func TestCreateLinkAllocationExhausted(t *testing.T) {
	linkSt := &collidingLinkStorage{mockLinkStorage: newMockLinkStorage(), collisions: maxAllocationAttempts}
	clickSt := &mockClickStorage{}
	logger := logging.NewLogger(logging.LevelError)
	svc := NewLinkService(linkSt, clickSt, clicks.NewStoreRecorder(clickSt, logger), logger)

	_, err := svc.CreateLink(context.Background(), &CreateLinkRequest{OriginalURL: "https://example.com"}, nil)
	assert.ErrorIs(t, err, ErrAllocationExhausted)
}

func TestResolveRecordsClick(t *testing.T) {
	svc, _, clickSt := newTestService(t)

	link, err := svc.CreateLink(context.Background(), &CreateLinkRequest{OriginalURL: "https://example.com"}, nil)
	require.NoError(t, err)

	target, err := svc.Resolve(context.Background(), link.ShortCode, RequestMeta{
		UserAgent: "test-agent",
		IPAddress: "203.0.113.7",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target)

	require.Len(t, clickSt.events, 1)
	event := clickSt.events[0]
	assert.Equal(t, link.ID, event.LinkID)
	require.NotNil(t, event.UserAgent)
	assert.Equal(t, "test-agent", *event.UserAgent)
	require.NotNil(t, event.IPAddress)
	assert.Equal(t, "203.0.113.7", *event.IPAddress)
	assert.False(t, event.ClickedAt.IsZero())
}

func TestResolveUnknownCode(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Resolve(context.Background(), "zzzzzz", RequestMeta{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveSurvivesRecorderFailure(t *testing.T) {
	svc, _, clickSt := newTestService(t)

	link, err := svc.CreateLink(context.Background(), &CreateLinkRequest{OriginalURL: "https://example.com"}, nil)
	require.NoError(t, err)

	clickSt.fail = true
	target, err := svc.Resolve(context.Background(), link.ShortCode, RequestMeta{UserAgent: "ua"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target)
}

func TestSoftDeletedCodeStaysReserved(t *testing.T) {
	svc, linkSt, _ := newTestService(t)
	owner := uuid.New()

	link, err := svc.CreateLink(context.Background(), &CreateLinkRequest{OriginalURL: "https://example.com"}, &owner)
	require.NoError(t, err)

	require.NoError(t, svc.SoftDeleteLink(context.Background(), link.ID, owner))

	// Deleted codes resolve exactly like never-allocated ones.
	_, err = svc.Resolve(context.Background(), link.ShortCode, RequestMeta{})
	assert.ErrorIs(t, err, ErrNotFound)

	active, err := linkSt.FindActiveByCode(context.Background(), link.ShortCode)
	require.NoError(t, err)
	assert.Nil(t, active)

	// The code remains in the historical set and cannot be reallocated.
	exists, err := linkSt.CodeExists(context.Background(), link.ShortCode)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpdateLinkByOwner(t *testing.T) {
	svc, _, _ := newTestService(t)
	owner := uuid.New()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.nowFunc = func() time.Time { return base }

	link, err := svc.CreateLink(context.Background(), &CreateLinkRequest{OriginalURL: "https://example.com"}, &owner)
	require.NoError(t, err)

	svc.nowFunc = func() time.Time { return base.Add(time.Hour) }

	updated, err := svc.UpdateLink(context.Background(), link.ID, owner, "https://updated.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://updated.example.com", updated.OriginalURL)
	assert.True(t, updated.UpdatedAt.After(link.UpdatedAt))
	assert.Equal(t, link.ShortCode, updated.ShortCode)
}

func TestUpdateLinkOwnershipIndistinguishable(t *testing.T) {
	svc, linkSt, _ := newTestService(t)
	owner := uuid.New()
	stranger := uuid.New()

	link, err := svc.CreateLink(context.Background(), &CreateLinkRequest{OriginalURL: "https://example.com"}, &owner)
	require.NoError(t, err)

	// Foreign owner and nonexistent id come back as the same error.
	_, errForeign := svc.UpdateLink(context.Background(), link.ID, stranger, "https://evil.example.com")
	_, errMissing := svc.UpdateLink(context.Background(), uuid.New(), stranger, "https://evil.example.com")
	assert.ErrorIs(t, errForeign, ErrNotFound)
	assert.ErrorIs(t, errMissing, ErrNotFound)

	// And the link is unchanged.
	current, err := linkSt.FindActiveByCode(context.Background(), link.ShortCode)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "https://example.com", current.OriginalURL)
}

func TestSoftDeleteExcludedFromListing(t *testing.T) {
	svc, _, _ := newTestService(t)
	owner := uuid.New()

	kept, err := svc.CreateLink(context.Background(), &CreateLinkRequest{OriginalURL: "https://keep.example.com"}, &owner)
	require.NoError(t, err)
	dropped, err := svc.CreateLink(context.Background(), &CreateLinkRequest{OriginalURL: "https://drop.example.com"}, &owner)
	require.NoError(t, err)

	require.NoError(t, svc.SoftDeleteLink(context.Background(), dropped.ID, owner))

	links, err := svc.ListLinks(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, kept.ID, links[0].ID)
}

func TestListLinksClickCounts(t *testing.T) {
	svc, _, _ := newTestService(t)
	owner := uuid.New()

	link, err := svc.CreateLink(context.Background(), &CreateLinkRequest{OriginalURL: "https://example.com"}, &owner)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.Resolve(context.Background(), link.ShortCode, RequestMeta{})
		require.NoError(t, err)
	}

	links, err := svc.ListLinks(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, int64(3), links[0].ClickCount)
}
