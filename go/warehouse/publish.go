package warehouse

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/broker"
	"github.com/twmsh/fy-admin/go/queue"
	"github.com/twmsh/fy-admin/go/tracker"
)

var publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warehouse_tracks_published_total",
	Help: "Track records published to the broker, by kind and result.",
}, []string{"kind", "result"})

// PublishConfig wires the broker stage.
type PublishConfig struct {
	URL  string          `json:"url"`
	Face broker.Endpoint `json:"face"`
	Car  broker.Endpoint `json:"car"`
}

// PublishService drains the stored tracks into RabbitMQ with publisher
// confirms and per-message TTL. The connection is re-established with
// doubling backoff; an unconfirmed message is retried on the next
// connection rather than dropped.
type PublishService struct {
	cfg PublishConfig

	faceIn *queue.Queue[*tracker.FaceItem]
	carIn  *queue.Queue[*tracker.CarItem]
}

type pendingMsg struct {
	kind     string
	endpoint broker.Endpoint
	body     []byte
}

func NewPublishService(cfg PublishConfig,
	faceIn *queue.Queue[*tracker.FaceItem], carIn *queue.Queue[*tracker.CarItem]) *PublishService {
	return &PublishService{cfg: cfg, faceIn: faceIn, carIn: carIn}
}

func (s *PublishService) Name() string { return "warehouse-publish" }

func (s *PublishService) Run(ctx context.Context) {
	var backoff = broker.NewBackoff()
	var pending *pendingMsg
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

// session runs one broker connection until it fails or ctx ends. It returns
// the message that was in flight when the connection failed, and whether
// the service is finished for good.
func (s *PublishService) session(ctx context.Context, backoff *broker.Backoff, pending *pendingMsg) (*pendingMsg, bool) {
	conn, err := broker.Dial(s.cfg.URL)
	if err != nil {
		log.Errorf("warehouse publish: %v", err)
		return pending, false
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Errorf("warehouse publish: opening channel: %v", err)
		return pending, false
	}
	for _, ep := range []broker.Endpoint{s.cfg.Face, s.cfg.Car} {
		if err := broker.DeclareDurableQueue(ch, ep.Exchange, ep.Queue, ep.RouteKey); err != nil {
			log.Errorf("warehouse publish: %v", err)
			return pending, false
		}
	}
	pub, err := broker.NewPublisher(ch)
	if err != nil {
		log.Errorf("warehouse publish: %v", err)
		return pending, false
	}
	backoff.Reset()
	log.WithFields(log.Fields{
		"url": s.cfg.URL,
	}).Info("warehouse publish connected")

	if pending != nil {
		if !s.send(pub, pending) {
			return pending, false
		}
		pending = nil
	}

	for {
		var msg *pendingMsg
		select {
		case <-ctx.Done():
			return nil, true
		case item, ok := <-s.faceIn.C():
			if !ok {
				return nil, true
			}
			msg = s.encode("face", s.cfg.Face, item.UUID, item)
		case item, ok := <-s.carIn.C():
			if !ok {
				return nil, true
			}
			msg = s.encode("car", s.cfg.Car, item.UUID, item)
		}
		if msg == nil {
			continue
		}
		if !s.send(pub, msg) {
			return msg, false
		}
	}
}

// encode marshals the track. A track that cannot be marshaled is logged
// and dropped, never retried.
func (s *PublishService) encode(kind string, ep broker.Endpoint, uuid string, item any) *pendingMsg {
	body, err := json.Marshal(item)
	if err != nil {
		publishedTotal.WithLabelValues(kind, "error").Inc()
		log.WithFields(log.Fields{
			"uuid": uuid,
			"kind": kind,
		}).Errorf("encoding track: %v", err)
		return nil
	}
	return &pendingMsg{kind: kind, endpoint: ep, body: body}
}

func (s *PublishService) send(pub *broker.Publisher, msg *pendingMsg) bool {
	var expire = time.Duration(msg.endpoint.Expire) * time.Minute
	if err := pub.Publish(msg.endpoint.Exchange, msg.endpoint.RouteKey, msg.body, expire); err != nil {
		publishedTotal.WithLabelValues(msg.kind, "error").Inc()
		log.Errorf("warehouse publish: %v", err)
		return false
	}
	publishedTotal.WithLabelValues(msg.kind, "ok").Inc()
	return true
}
