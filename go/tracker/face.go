package tracker

import (
	"fmt"
	"sort"
	"time"

	"github.com/twmsh/fy-admin/go/queue"
)

// FaceConfig gates when a face track is considered complete.
type FaceConfig struct {
	// Count is the minimum number of feature-bearing captures.
	Count int
	// Quality is the per-capture quality floor.
	Quality float64

	ReadyDelay time.Duration
	CleanDelay time.Duration
}

// NewFaceAggregator coalesces face notify bursts. A track is ready once it
// holds at least Count faces above the Quality floor that carry a feature
// blob.
func NewFaceAggregator(cfg FaceConfig, in *queue.Queue[*FaceItem], out func(*FaceItem)) *Aggregator[*FaceItem] {
	return newAggregator(
		Config{
			Name:       "facetrack",
			ReadyDelay: cfg.ReadyDelay,
			CleanDelay: cfg.CleanDelay,
		},
		in, out,
		func(it *FaceItem) string { return it.UUID },
		func(it *FaceItem) bool {
			var cc int
			for i := range it.Notify.Faces {
				var f = &it.Notify.Faces[i]
				if f.Quality > cfg.Quality && len(f.FeatureBuf) > 0 {
					cc++
				}
			}
			return cc >= cfg.Count
		},
		func(dst, src *FaceItem) {
			// Background is replaced, faces accumulate.
			dst.Notify.Background = src.Notify.Background
			dst.Notify.Faces = append(dst.Notify.Faces, src.Notify.Faces...)
		},
		func(it *FaceItem) { SortFaces(it) },
	)
}

// SortFaces orders captures feature-bearing first, then by frame number,
// and renames the attached files to their canonical slots.
func SortFaces(item *FaceItem) {
	var faces = item.Notify.Faces
	sort.SliceStable(faces, func(i, j int) bool {
		var a, b = &faces[i], &faces[j]
		if a.HasFeature() != b.HasFeature() {
			return a.HasFeature()
		}
		return a.FrameNum < b.FrameNum
	})

	for i := range faces {
		faces[i].AlignedFile = fmt.Sprintf("align_%d.bmp", i+1)
		faces[i].DisplayFile = fmt.Sprintf("display_%d.bmp", i+1)
		if faces[i].FeatureFile != nil {
			var name = fmt.Sprintf("feature_%d.data", i+1)
			faces[i].FeatureFile = &name
		}
	}
}
