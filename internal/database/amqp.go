package database

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/config"
)

// NewAMQPChannel dials RabbitMQ, declares the notification topic exchange and
// the durable queue bound to the audit and DM routing keys.
// The caller owns both the connection and the channel.
func NewAMQPChannel(cfg *config.Config, log zerolog.Logger) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		cfg.AMQPExchange,
		"topic",
		true,  // durable
		false, // auto delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(config.WorkerKey.AMQPNotifyQueue, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declare queue: %w", err)
	}

	for _, key := range []string{config.WorkerKey.AuditRoutingKey, config.WorkerKey.DMRoutingKey} {
		if err := ch.QueueBind(q.Name, key, cfg.AMQPExchange, false, nil); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	log.Info().
		Str("exchange", cfg.AMQPExchange).
		Str("queue", q.Name).
		Msg("RabbitMQ connected")

	return conn, ch, nil
}
