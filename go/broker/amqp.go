package broker

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// Endpoint names one exchange/queue/routing-key binding from the config.
type Endpoint struct {
	Exchange string `json:"exchange"`
	Queue    string `json:"queue"`
	RouteKey string `json:"route_key"`
	// Expire is the per-message TTL in minutes for publishes to this
	// endpoint.
	Expire int64 `json:"expire"`
}

// Dial opens an AMQP connection.
func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}
	return conn, nil
}

// DeclareDurableQueue declares a durable topic exchange plus a durable
// queue bound to it. Used for the log/status stream, which must survive a
// broker restart.
func DeclareDurableQueue(ch *amqp.Channel, exchange, queue, routeKey string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, routeKey, exchange, false, nil); err != nil {
		return fmt.Errorf("binding queue %s: %w", queue, err)
	}
	return nil
}

// DeclareCmdQueue declares the per-box command queue: durable exchange,
// non-durable auto-delete queue, so a dead box leaves nothing behind.
func DeclareCmdQueue(ch *amqp.Channel, exchange, queue, routeKey string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}
	if _, err := ch.QueueDeclare(queue, false, true, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, routeKey, exchange, false, nil); err != nil {
		return fmt.Errorf("binding queue %s: %w", queue, err)
	}
	return nil
}

// Publisher publishes with publisher confirms on one channel.
type Publisher struct {
	ch       *amqp.Channel
	confirms <-chan amqp.Confirmation
}

// NewPublisher puts the channel into confirm mode.
func NewPublisher(ch *amqp.Channel) (*Publisher, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("entering confirm mode: %w", err)
	}
	return &Publisher{
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

// Publish sends one JSON message and waits for the broker ack. expire is
// the per-message TTL; zero means no expiration.
func (p *Publisher) Publish(exchange, routeKey string, body []byte, expire time.Duration) error {
	var pub = amqp.Publishing{
		ContentType: "application/json",
		MessageId:   uuid.NewString(),
		Timestamp:   time.Now(),
		Body:        body,
	}
	if expire > 0 {
		pub.Expiration = strconv.FormatInt(expire.Milliseconds(), 10)
	}

	if err := p.ch.Publish(exchange, routeKey, false, false, pub); err != nil {
		return fmt.Errorf("publishing to %s: %w", exchange, err)
	}

	confirm, ok := <-p.confirms
	if !ok {
		return fmt.Errorf("publishing to %s: confirm channel closed", exchange)
	}
	if !confirm.Ack {
		return fmt.Errorf("publishing to %s: broker nacked delivery %d", exchange, confirm.DeliveryTag)
	}
	return nil
}
