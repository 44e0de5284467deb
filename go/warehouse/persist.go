package warehouse

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/queue"
	"github.com/twmsh/fy-admin/go/tracker"
)

var storedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warehouse_tracks_stored_total",
	Help: "Track rows inserted into MySQL, by kind and result.",
}, []string{"kind", "result"})

// PersistService flattens each track into its row, inserts it, and hands
// the track on to the broker stage. An insert failure drops the row but
// still forwards the track so downstream consumers see it.
type PersistService struct {
	dao *Dao

	faceIn *queue.Queue[*tracker.FaceItem]
	carIn  *queue.Queue[*tracker.CarItem]

	faceOut *queue.Queue[*tracker.FaceItem]
	carOut  *queue.Queue[*tracker.CarItem]
}

func NewPersistService(dao *Dao,
	faceIn *queue.Queue[*tracker.FaceItem], carIn *queue.Queue[*tracker.CarItem],
	faceOut *queue.Queue[*tracker.FaceItem], carOut *queue.Queue[*tracker.CarItem]) *PersistService {
	return &PersistService{
		dao:     dao,
		faceIn:  faceIn,
		carIn:   carIn,
		faceOut: faceOut,
		carOut:  carOut,
	}
}

func (s *PersistService) Name() string { return "warehouse-persist" }

func (s *PersistService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-s.faceIn.C():
			if !ok {
				return
			}
			s.persistFace(ctx, item)
			s.faceOut.Push(item)
		case item, ok := <-s.carIn.C():
			if !ok {
				return
			}
			s.persistCar(ctx, item)
			s.carOut.Push(item)
		}
	}
}

func (s *PersistService) persistFace(ctx context.Context, item *tracker.FaceItem) {
	var row = FacetrackFromItem(item)
	id, err := s.dao.InsertFacetrack(ctx, &row)
	if err != nil {
		storedTotal.WithLabelValues("face", "error").Inc()
		log.WithFields(log.Fields{
			"uuid": item.UUID,
		}).Errorf("storing facetrack: %v", err)
		return
	}
	storedTotal.WithLabelValues("face", "ok").Inc()
	log.WithFields(log.Fields{
		"uuid": item.UUID,
		"id":   id,
	}).Debug("facetrack stored")
}

func (s *PersistService) persistCar(ctx context.Context, item *tracker.CarItem) {
	var row = CartrackFromItem(item)
	id, err := s.dao.InsertCartrack(ctx, &row)
	if err != nil {
		storedTotal.WithLabelValues("car", "error").Inc()
		log.WithFields(log.Fields{
			"uuid": item.UUID,
		}).Errorf("storing cartrack: %v", err)
		return
	}
	storedTotal.WithLabelValues("car", "ok").Inc()
	log.WithFields(log.Fields{
		"uuid": item.UUID,
		"id":   id,
	}).Debug("cartrack stored")
}
