package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/discordgo"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/config"
	"github.com/stemsi/whitelist-backend/internal/notify"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu        sync.Mutex
	delivered []notify.Message
	failures  int
}

func (s *recordingSink) Deliver(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("discord unavailable")
	}
	s.delivered = append(s.delivered, msg)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func newMessage() notify.Message {
	return notify.NewMessage(notify.TargetAudit, "", &discordgo.MessageEmbed{Title: "New application"})
}

func newRedisWorker(t *testing.T, sink notify.Sink, maxAttempts int) (*NotifyWorker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	w := NewNotifyWorker(rdb, sink, maxAttempts, zerolog.Nop())
	w.retryDelay = 0
	return w, rdb
}

func push(t *testing.T, rdb *redis.Client, msg notify.Message) {
	t.Helper()
	data, err := notify.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistNotificationsQueue, data).Err())
}

func queued(t *testing.T, rdb *redis.Client) []notify.Message {
	t.Helper()
	raw, err := rdb.LRange(context.Background(), config.WorkerKey.PersistNotificationsQueue, 0, -1).Result()
	require.NoError(t, err)
	out := make([]notify.Message, 0, len(raw))
	for _, r := range raw {
		msg, err := notify.Decode([]byte(r))
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func TestNotifyWorkerDelivers(t *testing.T) {
	sink := &recordingSink{}
	w, rdb := newRedisWorker(t, sink, 3)
	msg := newMessage()
	push(t, rdb, msg)

	w.processNext(context.Background())
	require.Equal(t, 1, sink.count())
	require.Equal(t, msg.ID, sink.delivered[0].ID)
	require.Empty(t, queued(t, rdb))
}

func TestNotifyWorkerRequeuesThenDrops(t *testing.T) {
	sink := &recordingSink{failures: 10}
	w, rdb := newRedisWorker(t, sink, 2)
	push(t, rdb, newMessage())

	w.processNext(context.Background())
	pending := queued(t, rdb)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].Attempts)

	w.processNext(context.Background())
	require.Empty(t, queued(t, rdb), "dropped after max attempts")
	require.Equal(t, 0, sink.count())
}

func TestNotifyWorkerDiscardsMalformed(t *testing.T) {
	sink := &recordingSink{}
	w, rdb := newRedisWorker(t, sink, 3)
	require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistNotificationsQueue, "{oops").Err())

	w.processNext(context.Background())
	require.Empty(t, queued(t, rdb))
	require.Equal(t, 0, sink.count())
}

func TestNotifyWorkerDrainsOnShutdown(t *testing.T) {
	sink := &recordingSink{}
	w, rdb := newRedisWorker(t, sink, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	push(t, rdb, newMessage())
	push(t, rdb, newMessage())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}
	require.Equal(t, 2, sink.count())
	require.Empty(t, queued(t, rdb))
}

type ackRecorder struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	requeued int
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	if requeue {
		a.requeued++
	}
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

type fakeConsumer struct {
	deliveries chan amqp.Delivery
}

func (c *fakeConsumer) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

type recordingDispatcher struct {
	msgs []notify.Message
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg notify.Message) error {
	if d.err != nil {
		return d.err
	}
	d.msgs = append(d.msgs, msg)
	return nil
}

func delivery(t *testing.T, ack amqp.Acknowledger, msg notify.Message) amqp.Delivery {
	t.Helper()
	body, err := notify.Encode(msg)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
}

func TestAMQPNotifyWorkerAcksDelivered(t *testing.T) {
	sink := &recordingSink{}
	ack := &ackRecorder{}
	w := NewAMQPNotifyWorker(&fakeConsumer{}, &recordingDispatcher{}, sink, 3, zerolog.Nop())

	w.handle(context.Background(), delivery(t, ack, newMessage()))
	require.Equal(t, 1, sink.count())
	require.Equal(t, 1, ack.acks)
}

func TestAMQPNotifyWorkerRepublishesFailures(t *testing.T) {
	sink := &recordingSink{failures: 5}
	ack := &ackRecorder{}
	repub := &recordingDispatcher{}
	w := NewAMQPNotifyWorker(&fakeConsumer{}, repub, sink, 2, zerolog.Nop())
	w.retryDelay = 0

	w.handle(context.Background(), delivery(t, ack, newMessage()))
	require.Len(t, repub.msgs, 1)
	require.Equal(t, 1, repub.msgs[0].Attempts)
	require.Equal(t, 1, ack.acks)

	// Second failure reaches max attempts and is dropped.
	w.handle(context.Background(), delivery(t, ack, repub.msgs[0]))
	require.Len(t, repub.msgs, 1)
	require.Equal(t, 2, ack.acks)

	// Republish failure returns the message to the broker.
	repub.err = errors.New("channel closed")
	w.handle(context.Background(), delivery(t, ack, newMessage()))
	require.Equal(t, 1, ack.requeued)
}

func TestAMQPNotifyWorkerRejectsMalformed(t *testing.T) {
	ack := &ackRecorder{}
	w := NewAMQPNotifyWorker(&fakeConsumer{}, &recordingDispatcher{}, &recordingSink{}, 3, zerolog.Nop())

	w.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("nope")})
	require.Equal(t, 1, ack.nacks)
	require.Equal(t, 0, ack.requeued)
}

func TestAMQPNotifyWorkerStopsWhenChannelCloses(t *testing.T) {
	consumer := &fakeConsumer{deliveries: make(chan amqp.Delivery, 1)}
	sink := &recordingSink{}
	ack := &ackRecorder{}
	w := NewAMQPNotifyWorker(consumer, &recordingDispatcher{}, sink, 3, zerolog.Nop())

	consumer.deliveries <- delivery(t, ack, newMessage())
	close(consumer.deliveries)

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
	}
	require.Equal(t, 1, sink.count())
}
