package worker

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/config"
	"github.com/stemsi/whitelist-backend/internal/notify"
)

// Consumer is the subset of *amqp.Channel used to consume.
type Consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// AMQPNotifyWorker consumes the notification queue. A failed delivery is
// republished with its attempt counter bumped and the original is acked.
type AMQPNotifyWorker struct {
	ch          Consumer
	republish   notify.Dispatcher
	sink        notify.Sink
	queue       string
	maxAttempts int
	retryDelay  time.Duration
	log         zerolog.Logger
}

func NewAMQPNotifyWorker(ch Consumer, republish notify.Dispatcher, sink notify.Sink, maxAttempts int, log zerolog.Logger) *AMQPNotifyWorker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &AMQPNotifyWorker{
		ch:          ch,
		republish:   republish,
		sink:        sink,
		queue:       config.WorkerKey.AMQPNotifyQueue,
		maxAttempts: maxAttempts,
		retryDelay:  2 * time.Second,
		log:         log.With().Str("component", "amqp_notify_worker").Logger(),
	}
}

// Start consumes until ctx is cancelled or the channel closes. Call in a goroutine.
func (w *AMQPNotifyWorker) Start(ctx context.Context) {
	deliveries, err := w.ch.Consume(w.queue, "notify-worker", false, false, false, false, nil)
	if err != nil {
		w.log.Error().Err(err).Str("queue", w.queue).Msg("Consume failed, worker not running")
		return
	}
	w.log.Info().Str("queue", w.queue).Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case d, ok := <-deliveries:
			if !ok {
				w.log.Warn().Msg("Delivery channel closed, worker exiting")
				return
			}
			w.handle(ctx, d)
		}
	}
}

func (w *AMQPNotifyWorker) handle(ctx context.Context, d amqp.Delivery) {
	msg, err := notify.Decode(d.Body)
	if err != nil {
		w.log.Error().Err(err).Str("data", string(d.Body)).Msg("Discarding malformed notification")
		w.settle(d.Nack(false, false))
		return
	}

	err = w.sink.Deliver(ctx, msg)
	if err == nil {
		w.settle(d.Ack(false))
		return
	}

	msg.Attempts++
	w.log.Warn().Err(err).
		Str("id", msg.ID).
		Str("target", string(msg.Target)).
		Int("attempts", msg.Attempts).
		Msg("Notification delivery failed")

	if msg.Attempts >= w.maxAttempts {
		w.log.Error().Str("id", msg.ID).Msg("Notification dropped after max attempts")
		w.settle(d.Ack(false))
		return
	}

	sleep(ctx, w.retryDelay)
	if err := w.republish.Dispatch(ctx, msg); err != nil {
		w.log.Error().Err(err).Str("id", msg.ID).Msg("Republish failed, returning to queue")
		w.settle(d.Nack(false, true))
		return
	}
	w.settle(d.Ack(false))
}

func (w *AMQPNotifyWorker) settle(err error) {
	if err != nil {
		w.log.Error().Err(err).Msg("Ack/Nack failed")
	}
}
