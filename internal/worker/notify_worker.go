package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/config"
	"github.com/stemsi/whitelist-backend/internal/notify"
)

// PollTimeout bounds each BLPOP so shutdown is noticed. Redis needs >= 1s.
const PollTimeout = 1 * time.Second

// NotifyWorker consumes persist_notifications_queue and hands each message to
// a sink. Failed deliveries are pushed back until maxAttempts is reached.
type NotifyWorker struct {
	rdb         redis.Cmdable
	sink        notify.Sink
	queue       string
	maxAttempts int
	retryDelay  time.Duration
	log         zerolog.Logger
}

// NewNotifyWorker creates a new NotifyWorker.
func NewNotifyWorker(rdb redis.Cmdable, sink notify.Sink, maxAttempts int, log zerolog.Logger) *NotifyWorker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &NotifyWorker{
		rdb:         rdb,
		sink:        sink,
		queue:       config.WorkerKey.PersistNotificationsQueue,
		maxAttempts: maxAttempts,
		retryDelay:  5 * time.Second,
		log:         log.With().Str("component", "notify_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *NotifyWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.drain(drainCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *NotifyWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, PollTimeout, w.queue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error, sleeping 3s")
			sleep(ctx, 3*time.Second)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	if !w.handle(ctx, []byte(result[1])) {
		sleep(ctx, w.retryDelay)
	}
}

// handle delivers one raw message. It returns false when the message was
// requeued for another attempt.
func (w *NotifyWorker) handle(ctx context.Context, raw []byte) bool {
	msg, err := notify.Decode(raw)
	if err != nil {
		// Malformed JSON can never succeed. Log and discard.
		w.log.Error().Err(err).Str("data", string(raw)).Msg("Discarding malformed notification")
		return true
	}

	err = w.sink.Deliver(ctx, msg)
	if err == nil {
		w.log.Debug().Str("id", msg.ID).Str("target", string(msg.Target)).Msg("Notification delivered")
		return true
	}

	msg.Attempts++
	event := w.log.Warn().Err(err).
		Str("id", msg.ID).
		Str("target", string(msg.Target)).
		Str("user_id", msg.UserID).
		Int("attempts", msg.Attempts)

	if msg.Attempts >= w.maxAttempts {
		event.Msg("Notification dropped after max attempts")
		return true
	}

	event.Msg("Notification delivery failed, requeueing")
	data, encErr := notify.Encode(msg)
	if encErr == nil {
		encErr = w.rdb.RPush(ctx, w.queue, data).Err()
	}
	if encErr != nil {
		w.log.Error().Err(encErr).Str("id", msg.ID).Msg("CRITICAL: Failed to requeue notification")
	}
	return false
}

// drain delivers everything left in the queue before shutdown. Each message
// gets a single attempt.
func (w *NotifyWorker) drain(ctx context.Context) {
	drained := 0
	for ctx.Err() == nil {
		raw, err := w.rdb.LPop(ctx, w.queue).Bytes()
		if err != nil {
			break
		}

		msg, err := notify.Decode(raw)
		if err != nil {
			w.log.Error().Err(err).Msg("Drain decode error")
			continue
		}
		if err := w.sink.Deliver(ctx, msg); err != nil {
			w.log.Error().Err(err).Str("id", msg.ID).Msg("Drain delivery error, leaving in queue")
			w.rdb.RPush(ctx, w.queue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining notifications")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
