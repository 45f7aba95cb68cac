package notify

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stemsi/whitelist-backend/internal/config"
)

// Publisher is the subset of *amqp.Channel used to publish.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher publishes messages to the notification exchange, routed by target.
type AMQPPublisher struct {
	ch       Publisher
	exchange string
}

func NewAMQPPublisher(ch Publisher, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange}
}

// RoutingKey maps a target to its routing key.
func RoutingKey(t Target) string {
	if t == TargetDM {
		return config.WorkerKey.DMRoutingKey
	}
	return config.WorkerKey.AuditRoutingKey
}

func (p *AMQPPublisher) Dispatch(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(msg.Target), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.CreatedAt,
		Body:         data,
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
