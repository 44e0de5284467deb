package warehouse

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/queue"
	"github.com/twmsh/fy-admin/go/store"
	"github.com/twmsh/fy-admin/go/tracker"
)

// ObjectService uploads the imagery of incoming tracks to object storage,
// rewrites every file reference to its public URL and releases the buffers,
// then hands the track to the database stage.
type ObjectService struct {
	faceIn *queue.Queue[*tracker.FaceItem]
	carIn  *queue.Queue[*tracker.CarItem]

	faceOut *queue.Queue[*tracker.FaceItem]
	carOut  *queue.Queue[*tracker.CarItem]

	faceBucket *store.Bucket
	carBucket  *store.Bucket
}

func NewObjectService(faceIn *queue.Queue[*tracker.FaceItem], carIn *queue.Queue[*tracker.CarItem],
	faceOut *queue.Queue[*tracker.FaceItem], carOut *queue.Queue[*tracker.CarItem],
	faceBucket, carBucket *store.Bucket) *ObjectService {
	return &ObjectService{
		faceIn:     faceIn,
		carIn:      carIn,
		faceOut:    faceOut,
		carOut:     carOut,
		faceBucket: faceBucket,
		carBucket:  carBucket,
	}
}

func (s *ObjectService) Name() string { return "warehouse-objects" }

func (s *ObjectService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-s.faceIn.C():
			if !ok {
				return
			}
			s.saveFace(item)
			s.faceOut.Push(item)
		case item, ok := <-s.carIn.C():
			if !ok {
				return
			}
			s.saveCar(item)
			s.carOut.Push(item)
		}
	}
}

func (s *ObjectService) put(bucket *store.Bucket, path, contentType string, content []byte) (string, bool) {
	url, err := bucket.Put(path, contentType, content)
	if err != nil {
		log.WithFields(log.Fields{
			"path": path,
		}).Errorf("uploading object: %v", err)
		return "", false
	}
	return url, true
}

// saveFace uploads the background, the per-face crops and the feature
// blobs. A failed upload leaves the original file reference in place so the
// row still records that the file existed.
func (s *ObjectService) saveFace(item *tracker.FaceItem) {
	var ts = item.TS.Time

	var bg = &item.Notify.Background
	if len(bg.ImageBuf) > 0 {
		if url, ok := s.put(s.faceBucket, store.FacetrackBgPath(item.UUID, ts), "image/jpeg", bg.ImageBuf); ok {
			bg.ImageFile = url
		}
		bg.ImageBuf = nil
	}

	for i := range item.Notify.Faces {
		var f = &item.Notify.Faces[i]
		var id = i + 1

		if len(f.AlignedBuf) > 0 {
			if url, ok := s.put(s.faceBucket, store.FacetrackSmallPath(item.UUID, ts, id), "image/jpeg", f.AlignedBuf); ok {
				f.AlignedFile = url
			}
			f.AlignedBuf = nil
		}
		if len(f.DisplayBuf) > 0 {
			if url, ok := s.put(s.faceBucket, store.FacetrackLargePath(item.UUID, ts, id), "image/jpeg", f.DisplayBuf); ok {
				f.DisplayFile = url
			}
			f.DisplayBuf = nil
		}
		if len(f.FeatureBuf) > 0 {
			if url, ok := s.put(s.faceBucket, store.FacetrackFeaPath(item.UUID, ts, id), "text/plain", f.FeatureBuf); ok {
				f.FeatureFile = &url
			}
			f.FeatureBuf = nil
		}
	}
}

func (s *ObjectService) saveCar(item *tracker.CarItem) {
	var ts = item.TS.Time

	var bg = &item.Notify.Background
	if len(bg.ImageBuf) > 0 {
		if url, ok := s.put(s.carBucket, store.CartrackBgPath(item.UUID, ts), "image/jpeg", bg.ImageBuf); ok {
			bg.ImageFile = url
		}
		bg.ImageBuf = nil
	}

	for i := range item.Notify.Vehicles {
		var v = &item.Notify.Vehicles[i]
		if len(v.ImageBuf) > 0 {
			if url, ok := s.put(s.carBucket, store.CartrackCarPath(item.UUID, ts, i+1), "image/jpeg", v.ImageBuf); ok {
				v.ImageFile = url
			}
			v.ImageBuf = nil
		}
	}

	if plate := item.Notify.PlateInfo; plate != nil {
		if len(plate.ImageBuf) > 0 {
			if url, ok := s.put(s.carBucket, store.CartrackPlatePath(item.UUID, ts), "image/jpeg", plate.ImageBuf); ok {
				plate.ImageFile = &url
			}
			plate.ImageBuf = nil
		}
		if len(plate.BinaryBuf) > 0 {
			if url, ok := s.put(s.carBucket, store.CartrackBinaryPath(item.UUID, ts), "image/jpeg", plate.BinaryBuf); ok {
				plate.BinaryFile = &url
			}
			plate.BinaryBuf = nil
		}
	}
}
