package syncserver

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/broker"
	"github.com/twmsh/fy-admin/go/syncapi"
)

// LogStore is the slice of the database the consumer writes.
type LogStore interface {
	InsertBoxLog(ctx context.Context, msg *syncapi.BoxLogMessage, recvTime time.Time) error
	UpdateLatestOnline(ctx context.Context, hwID string, ts time.Time) error
}

// LogConsumer drains the fleet log exchange: every message is persisted and
// counts as a liveness signal for its box.
type LogConsumer struct {
	url      string
	endpoint broker.Endpoint
	store    LogStore
}

func NewLogConsumer(url string, endpoint broker.Endpoint, store LogStore) *LogConsumer {
	return &LogConsumer{url: url, endpoint: endpoint, store: store}
}

func (c *LogConsumer) Name() string { return "boxlog-consumer" }

func (c *LogConsumer) Run(ctx context.Context) {
	var backoff = broker.NewBackoff()
	for {
		c.session(ctx, backoff)
		if ctx.Err() != nil {
			return
		}
		if !backoff.Wait(ctx) {
			return
		}
	}
}

func (c *LogConsumer) session(ctx context.Context, backoff *broker.Backoff) {
	conn, err := broker.Dial(c.url)
	if err != nil {
		log.Errorf("boxlog consumer: %v", err)
		return
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Errorf("boxlog consumer: opening channel: %v", err)
		return
	}
	if err = broker.DeclareDurableQueue(ch, c.endpoint.Exchange, c.endpoint.Queue, c.endpoint.RouteKey); err != nil {
		log.Errorf("boxlog consumer: %v", err)
		return
	}

	deliveries, err := ch.Consume(c.endpoint.Queue, "", false, false, false, false, nil)
	if err != nil {
		log.Errorf("boxlog consumer: consuming %s: %v", c.endpoint.Queue, err)
		return
	}

	backoff.Reset()
	log.WithFields(log.Fields{
		"url":   c.url,
		"queue": c.endpoint.Queue,
	}).Info("boxlog consumer connected")

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Warn("boxlog consumer: delivery channel closed")
				return
			}
			if err := d.Ack(false); err != nil {
				log.Errorf("boxlog consumer: ack: %v", err)
				return
			}
			c.process(ctx, d.Body)
		}
	}
}

func (c *LogConsumer) process(ctx context.Context, body []byte) {
	var msg syncapi.BoxLogMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Errorf("boxlog consumer: parsing message: %v", err)
		return
	}
	if msg.HwID == "" {
		log.Warn("boxlog consumer: message without hwid, dropped")
		return
	}

	var now = time.Now()
	if err := c.store.InsertBoxLog(ctx, &msg, now); err != nil {
		log.Errorf("boxlog consumer: %v", err)
	}
	if err := c.store.UpdateLatestOnline(ctx, msg.HwID, now); err != nil {
		log.Errorf("boxlog consumer: %v", err)
	}
}
