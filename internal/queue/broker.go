package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Broker owns the AMQP connection and channel shared by the publisher and
// consumer of the check queue.
type Broker interface {
	Channel() *amqp.Channel
	SetupQueue(exchange, queue, routingKey string) error
	Close() error
}

type broker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  zerolog.Logger
}

func NewBroker(url string, logger zerolog.Logger) (Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	logger.Info().Msg("Connected to RabbitMQ")

	return &broker{
		conn:    conn,
		channel: channel,
		logger:  logger,
	}, nil
}

func (b *broker) Channel() *amqp.Channel {
	return b.channel
}

func (b *broker) SetupQueue(exchange, queue, routingKey string) error {
	err := b.channel.ExchangeDeclare(
		exchange,            // name
		"x-delayed-message", // type, delayed redelivery drives retry backoff
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		amqp.Table{"x-delayed-type": "direct"},
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := b.channel.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	err = b.channel.QueueBind(
		q.Name,     // queue name
		routingKey, // routing key
		exchange,   // exchange
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	b.logger.Info().
		Str("exchange", exchange).
		Str("queue", q.Name).
		Str("routing_key", routingKey).
		Msg("RabbitMQ queue setup complete")

	return nil
}

func (b *broker) Close() error {
	if b.channel != nil {
		if err := b.channel.Close(); err != nil {
			b.logger.Error().Err(err).Msg("Failed to close RabbitMQ channel")
		}
	}

	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			b.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	return nil
}
