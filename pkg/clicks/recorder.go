package clicks

import (
	"context"
	"time"

	"shortlink/pkg/logging"
	"shortlink/pkg/storage"

	"github.com/google/uuid"
)

// Recorder persists click analytics for resolved links. Recording is
// best-effort: implementations log and swallow failures so a broken
// analytics path can never fail a working redirect.
type Recorder interface {
	Record(ctx context.Context, linkID uuid.UUID, userAgent, ipAddress string)
}

// StoreRecorder writes click events straight to storage. The write happens
// before the caller returns, but its outcome never reaches the caller.
type StoreRecorder struct {
	store  storage.ClickStorage
	logger *logging.Logger
}

func NewStoreRecorder(store storage.ClickStorage, logger *logging.Logger) *StoreRecorder {
	return &StoreRecorder{store: store, logger: logger}
}

func (r *StoreRecorder) Record(ctx context.Context, linkID uuid.UUID, userAgent, ipAddress string) {
	event := newEvent(linkID, userAgent, ipAddress)

	// Detached from request cancellation: the redirect response may be
	// written before this insert completes.
	ctx = context.WithoutCancel(ctx)
	if err := r.store.Insert(ctx, event); err != nil {
		r.logger.LogClickRecordFailure(ctx, linkID.String(), err)
	}
}

func newEvent(linkID uuid.UUID, userAgent, ipAddress string) *storage.ClickEvent {
	event := &storage.ClickEvent{
		ID:        uuid.New(),
		LinkID:    linkID,
		ClickedAt: time.Now().UTC(),
	}
	if userAgent != "" {
		event.UserAgent = &userAgent
	}
	if ipAddress != "" {
		event.IPAddress = &ipAddress
	}
	return event
}
