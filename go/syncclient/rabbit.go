package syncclient

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/broker"
	"github.com/twmsh/fy-admin/go/queue"
	"github.com/twmsh/fy-admin/go/syncapi"
)

// RabbitConfig wires the box's broker link: the per-box command queue we
// consume and the durable log endpoint we publish status to.
type RabbitConfig struct {
	URL string          `json:"url"`
	Cmd broker.Endpoint `json:"cmd"`
	Log broker.Endpoint `json:"log"`
}

// RabbitService keeps the broker link alive: it consumes server commands
// from the per-box queue and drains outbound status/log messages with
// publisher confirms. Both directions share one connection; any failure
// tears it down and the reconnect backoff takes over.
type RabbitService struct {
	cfg  RabbitConfig
	hwID string

	tasks  *queue.Queue[TaskItem]
	logOut *queue.Queue[syncapi.BoxLogMessage]
}

func NewRabbitService(cfg RabbitConfig, hwID string,
	tasks *queue.Queue[TaskItem], logOut *queue.Queue[syncapi.BoxLogMessage]) *RabbitService {
	return &RabbitService{cfg: cfg, hwID: hwID, tasks: tasks, logOut: logOut}
}

func (s *RabbitService) Name() string { return "sync-rabbit" }

// CmdQueueName is the per-box command queue.
func CmdQueueName(hwID string) string { return "box_cmd_" + hwID }

func (s *RabbitService) Run(ctx context.Context) {
	var backoff = broker.NewBackoff()
	var pending *syncapi.BoxLogMessage
	var done bool

	for {
		pending, done = s.session(ctx, backoff, pending)
		if done || ctx.Err() != nil {
			return
		}
		if !backoff.Wait(ctx) {
			return
		}
	}
}

func (s *RabbitService) session(ctx context.Context, backoff *broker.Backoff, pending *syncapi.BoxLogMessage) (*syncapi.BoxLogMessage, bool) {
	conn, err := broker.Dial(s.cfg.URL)
	if err != nil {
		log.Errorf("sync rabbit: %v", err)
		return pending, false
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Errorf("sync rabbit: opening channel: %v", err)
		return pending, false
	}

	var cmdQueue = CmdQueueName(s.hwID)
	if err = broker.DeclareCmdQueue(ch, s.cfg.Cmd.Exchange, cmdQueue, s.cfg.Cmd.RouteKey); err != nil {
		log.Errorf("sync rabbit: %v", err)
		return pending, false
	}
	if err = broker.DeclareDurableQueue(ch, s.cfg.Log.Exchange, s.cfg.Log.Queue, s.cfg.Log.RouteKey); err != nil {
		log.Errorf("sync rabbit: %v", err)
		return pending, false
	}

	deliveries, err := ch.Consume(cmdQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Errorf("sync rabbit: consuming %s: %v", cmdQueue, err)
		return pending, false
	}

	pubCh, err := conn.Channel()
	if err != nil {
		log.Errorf("sync rabbit: opening publish channel: %v", err)
		return pending, false
	}
	pub, err := broker.NewPublisher(pubCh)
	if err != nil {
		log.Errorf("sync rabbit: %v", err)
		return pending, false
	}

	backoff.Reset()
	log.WithFields(log.Fields{
		"url":   s.cfg.URL,
		"queue": cmdQueue,
	}).Info("sync rabbit connected")

	if pending != nil {
		if !s.publish(pub, pending) {
			return pending, false
		}
		pending = nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, true

		case d, ok := <-deliveries:
			if !ok {
				log.Warn("sync rabbit: delivery channel closed")
				return nil, false
			}
			// The command is acked before parsing; a malformed command
			// must not be redelivered forever.
			if err := d.Ack(false); err != nil {
				log.Errorf("sync rabbit: ack: %v", err)
				return nil, false
			}
			task, err := ParseCommand(d.Body, s.hwID)
			if err != nil {
				log.Errorf("sync rabbit: %v", err)
				continue
			}
			if task == nil {
				continue
			}
			s.tasks.Push(*task)

		case msg, ok := <-s.logOut.C():
			if !ok {
				return nil, true
			}
			if !s.publish(pub, &msg) {
				return &msg, false
			}
		}
	}
}

func (s *RabbitService) publish(pub *broker.Publisher, msg *syncapi.BoxLogMessage) bool {
	body, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("sync rabbit: encoding log message: %v", err)
		return true
	}
	var expire = time.Duration(s.cfg.Log.Expire) * time.Minute
	if err = pub.Publish(s.cfg.Log.Exchange, s.cfg.Log.RouteKey, body, expire); err != nil {
		log.Errorf("sync rabbit: %v", err)
		return false
	}
	return true
}
