package clicks

import (
	"context"
	"errors"
	"testing"

	"shortlink/pkg/logging"
	"shortlink/pkg/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureClickStorage struct {
	events []storage.ClickEvent
	err    error
}

func (c *captureClickStorage) Insert(ctx context.Context, event *storage.ClickEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, *event)
	return nil
}

func (c *captureClickStorage) CountByLink(ctx context.Context, linkID uuid.UUID) (int64, error) {
	return int64(len(c.events)), nil
}

func TestStoreRecorderCapturesMeta(t *testing.T) {
	store := &captureClickStorage{}
	recorder := NewStoreRecorder(store, logging.NewLogger(logging.LevelError))
	linkID := uuid.New()

	recorder.Record(context.Background(), linkID, "agent/1.0", "198.51.100.4")

	require.Len(t, store.events, 1)
	event := store.events[0]
	assert.Equal(t, linkID, event.LinkID)
	assert.NotEqual(t, uuid.Nil, event.ID)
	require.NotNil(t, event.UserAgent)
	assert.Equal(t, "agent/1.0", *event.UserAgent)
	require.NotNil(t, event.IPAddress)
	assert.Equal(t, "198.51.100.4", *event.IPAddress)
	assert.False(t, event.ClickedAt.IsZero())
}

func TestStoreRecorderOmitsAbsentMeta(t *testing.T) {
	store := &captureClickStorage{}
	recorder := NewStoreRecorder(store, logging.NewLogger(logging.LevelError))

	recorder.Record(context.Background(), uuid.New(), "", "")

	require.Len(t, store.events, 1)
	assert.Nil(t, store.events[0].UserAgent)
	assert.Nil(t, store.events[0].IPAddress)
}

func TestStoreRecorderSwallowsFailure(t *testing.T) {
	store := &captureClickStorage{err: errors.New("insert failed")}
	recorder := NewStoreRecorder(store, logging.NewLogger(logging.LevelError))

	// Must not panic or surface the error in any way.
	recorder.Record(context.Background(), uuid.New(), "agent", "192.0.2.1")
	assert.Empty(t, store.events)
}

func TestStoreRecorderIgnoresCancelledContext(t *testing.T) {
	store := &captureClickStorage{}
	recorder := NewStoreRecorder(store, logging.NewLogger(logging.LevelError))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The redirect response may already be written when the client hangs
	// up; the click still gets stored.
	recorder.Record(ctx, uuid.New(), "agent", "")
	assert.Len(t, store.events, 1)
}
