package uplink

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/queue"
	"github.com/twmsh/fy-admin/go/tracker"
)

var uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "uplink_uploads_total",
	Help: "Track uploads to the warehouse, by kind and result.",
}, []string{"kind", "result"})

// Service drains the merged output queue and uploads each track.
type Service struct {
	url    string
	client *Client
	in     *queue.Queue[tracker.Output]
}

func NewService(url string, in *queue.Queue[tracker.Output]) *Service {
	return &Service{url: url, client: NewClient(), in: in}
}

func (s *Service) Name() string { return "uplink" }

func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-s.in.C():
			if !ok {
				return
			}
			s.upload(item)
		}
	}
}

func (s *Service) upload(item tracker.Output) {
	var err error
	var kind string
	switch {
	case item.Face != nil:
		kind = "facetrack"
		err = s.client.UploadFace(s.url, item.Face)
	case item.Car != nil:
		kind = "vehicletrack"
		err = s.client.UploadCar(s.url, item.Car)
	default:
		return
	}

	if err != nil {
		uploadsTotal.WithLabelValues(kind, "error").Inc()
		log.WithFields(log.Fields{"kind": kind, "uuid": item.ID(), "err": err}).
			Error("track upload failed")
		return
	}
	uploadsTotal.WithLabelValues(kind, "ok").Inc()
	log.WithFields(log.Fields{"kind": kind, "uuid": item.ID()}).Debug("track uploaded")
}
