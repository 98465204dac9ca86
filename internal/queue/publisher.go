package queue

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	PublishWithDelay(ctx context.Context, exchange, routingKey string, body []byte, delay time.Duration) error
	Close() error
}

type publisher struct {
	channel *amqp.Channel
	logger  zerolog.Logger
}

func NewPublisher(channel *amqp.Channel, logger zerolog.Logger) Publisher {
	return &publisher{
		channel: channel,
		logger:  logger,
	}
}

func (p *publisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.channel.PublishWithContext(
		publishCtx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

func (p *publisher) PublishWithDelay(ctx context.Context, exchange, routingKey string, body []byte, delay time.Duration) error {
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	headers := amqp.Table{}
	if delay > 0 {
		headers["x-delay"] = int32(delay.Milliseconds())
	}

	return p.channel.PublishWithContext(
		publishCtx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Headers:      headers,
		},
	)
}

func (p *publisher) Close() error {
	// Channel is closed by the broker.
	p.logger.Info().Msg("RabbitMQ publisher closed")
	return nil
}
