package notify

import (
	"context"
	"fmt"
	"time"

	"auction-engine/utils"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQPublisher publishes notifications to a durable queue
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewRabbitMQPublisher dials url, retrying while the broker starts, and declares queueName
func NewRabbitMQPublisher(url string, queueName string, attempts int) (*RabbitMQPublisher, error) {
	if attempts <= 0 {
		attempts = 1
	}

	var conn *amqp.Connection
	var err error
	for i := 0; i < attempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		utils.Warn("notify: failed to connect to RabbitMQ, retrying", map[string]any{
			"attempt": i + 1,
			"of":      attempts,
			"error":   err.Error(),
		})
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare a queue: %w", err)
	}

	return &RabbitMQPublisher{
		conn:    conn,
		channel: ch,
		queue:   queueName,
	}, nil
}

// Publish sends payload as a persistent message; topic travels as the message type
func (p *RabbitMQPublisher) Publish(ctx context.Context, id string, topic string, payload []byte) error {
	err := p.channel.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			MessageId:    id,
			Type:         topic,
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish message %s: %w", id, err)
	}
	return nil
}

// Close releases the channel and connection
func (p *RabbitMQPublisher) Close() {
	_ = p.channel.Close()
	_ = p.conn.Close()
}
