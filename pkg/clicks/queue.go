package clicks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"shortlink/pkg/logging"
	"shortlink/pkg/storage"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultQueueKey = "clicks:queue"

// QueueRecorder hands click events to a Redis list instead of writing them
// inline, keeping the redirect path free of the database write. A Worker
// drains the list into storage.
type QueueRecorder struct {
	client *redis.Client
	key    string
	logger *logging.Logger
}

func NewQueueRecorder(client *redis.Client, logger *logging.Logger) *QueueRecorder {
	return &QueueRecorder{client: client, key: defaultQueueKey, logger: logger}
}

func (r *QueueRecorder) Record(ctx context.Context, linkID uuid.UUID, userAgent, ipAddress string) {
	event := newEvent(linkID, userAgent, ipAddress)

	data, err := json.Marshal(event)
	if err != nil {
		r.logger.LogClickRecordFailure(ctx, linkID.String(), err)
		return
	}

	ctx = context.WithoutCancel(ctx)
	if err := r.client.LPush(ctx, r.key, data).Err(); err != nil {
		r.logger.LogClickRecordFailure(ctx, linkID.String(), err)
	}
}

// Worker drains queued click events into storage.
type Worker struct {
	client *redis.Client
	key    string
	store  storage.ClickStorage
	logger *logging.Logger
}

func NewWorker(client *redis.Client, store storage.ClickStorage, logger *logging.Logger) *Worker {
	return &Worker{client: client, key: defaultQueueKey, store: store, logger: logger}
}

// Run blocks until ctx is cancelled, popping events one at a time. Events
// that fail to decode or insert are logged and dropped; analytics stay
// best-effort on this side of the queue too.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		res, err := w.client.BRPop(ctx, 5*time.Second, w.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Error(ctx, "click queue pop failed", "error", err.Error())
			continue
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}

		var event storage.ClickEvent
		if err := json.Unmarshal([]byte(res[1]), &event); err != nil {
			w.logger.Error(ctx, "click queue decode failed", "error", err.Error())
			continue
		}

		if err := w.store.Insert(ctx, &event); err != nil {
			w.logger.LogClickRecordFailure(ctx, event.LinkID.String(), err)
		}
	}
}
