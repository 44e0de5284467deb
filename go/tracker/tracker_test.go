package tracker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/twmsh/fy-admin/go/api"
	"github.com/twmsh/fy-admin/go/queue"
	"github.com/twmsh/fy-admin/go/timefmt"
)

func goodFace(frame int64) api.Face {
	var fea = "feature_raw.data"
	return api.Face{
		AlignedFile: "align_raw.bmp",
		DisplayFile: "display_raw.bmp",
		FeatureFile: &fea,
		FeatureBuf:  []byte{1, 2, 3},
		FrameNum:    frame,
		Quality:     0.9,
	}
}

func badFace(frame int64) api.Face {
	return api.Face{
		AlignedFile: "align_raw.bmp",
		DisplayFile: "display_raw.bmp",
		FrameNum:    frame,
		Quality:     0.2,
	}
}

func faceItem(uuid string, faces ...api.Face) *FaceItem {
	return &FaceItem{
		UUID: uuid,
		TS:   timefmt.Now(),
		Notify: api.FaceNotify{
			ID:    uuid,
			Faces: faces,
		},
	}
}

func startFaceAggregator(t *testing.T, cfg FaceConfig) (*queue.Queue[*FaceItem], chan *FaceItem, context.CancelFunc) {
	t.Helper()
	var in = queue.New[*FaceItem]()
	var out = make(chan *FaceItem, 16)
	var agg = NewFaceAggregator(cfg, in, func(it *FaceItem) { out <- it })

	ctx, cancel := context.WithCancel(context.Background())
	var done = make(chan struct{})
	go func() {
		agg.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return in, out, cancel
}

func waitForward(t *testing.T, out chan *FaceItem, within time.Duration) *FaceItem {
	t.Helper()
	select {
	case it := <-out:
		return it
	case <-time.After(within):
		t.Fatal("track was not forwarded in time")
		return nil
	}
}

func requireNoForward(t *testing.T, out chan *FaceItem, within time.Duration) {
	t.Helper()
	select {
	case it := <-out:
		t.Fatalf("unexpected forward of %s", it.UUID)
	case <-time.After(within):
	}
}

func TestImmediateForwardWhenReadyOnArrival(t *testing.T) {
	var cfg = FaceConfig{
		Count: 1, Quality: 0.5,
		ReadyDelay: 5 * time.Second, CleanDelay: 10 * time.Second,
	}
	in, out, _ := startFaceAggregator(t, cfg)

	in.Push(faceItem("t-1", goodFace(1)))

	var got = waitForward(t, out, time.Second)
	require.Equal(t, "t-1", got.UUID)
	require.Len(t, got.Notify.Faces, 1)
}

func TestAppendFlipsTrackToReady(t *testing.T) {
	var cfg = FaceConfig{
		Count: 2, Quality: 0.5,
		ReadyDelay: 10 * time.Second, CleanDelay: 20 * time.Second,
	}
	in, out, _ := startFaceAggregator(t, cfg)

	in.Push(faceItem("t-2", goodFace(1)))
	requireNoForward(t, out, 100*time.Millisecond)

	in.Push(faceItem("t-2", goodFace(2)))

	var got = waitForward(t, out, time.Second)
	require.Equal(t, "t-2", got.UUID)
	require.Len(t, got.Notify.Faces, 2)
}

func TestReadyDelayForcesTrackOut(t *testing.T) {
	var cfg = FaceConfig{
		Count: 3, Quality: 0.5,
		ReadyDelay: 150 * time.Millisecond, CleanDelay: 10 * time.Second,
	}
	in, out, _ := startFaceAggregator(t, cfg)

	in.Push(faceItem("t-3", badFace(1)))
	requireNoForward(t, out, 80*time.Millisecond)

	var got = waitForward(t, out, time.Second)
	require.Equal(t, "t-3", got.UUID)
}

func TestLateBurstAfterForwardIsDropped(t *testing.T) {
	var cfg = FaceConfig{
		Count: 1, Quality: 0.5,
		ReadyDelay: 5 * time.Second, CleanDelay: 10 * time.Second,
	}
	in, out, _ := startFaceAggregator(t, cfg)

	in.Push(faceItem("t-4", goodFace(1)))
	_ = waitForward(t, out, time.Second)

	// uuid still remembered by the clean window: the late burst must not
	// resurrect the track.
	in.Push(faceItem("t-4", goodFace(2)))
	requireNoForward(t, out, 200*time.Millisecond)
}

func TestForwardHappensExactlyOnce(t *testing.T) {
	var cfg = FaceConfig{
		Count: 2, Quality: 0.5,
		ReadyDelay: 200 * time.Millisecond, CleanDelay: 10 * time.Second,
	}
	in, out, _ := startFaceAggregator(t, cfg)

	// Ready via append, then the ready delay fires as well; only one
	// forward may result.
	in.Push(faceItem("t-5", goodFace(1)))
	in.Push(faceItem("t-5", goodFace(2)))

	var got = waitForward(t, out, time.Second)
	require.Equal(t, "t-5", got.UUID)
	requireNoForward(t, out, 400*time.Millisecond)
}

func TestForwardedTrackNotMutatedByLateDrain(t *testing.T) {
	var forwarded []*FaceItem
	var in = queue.New[*FaceItem]()
	var agg = NewFaceAggregator(FaceConfig{
		Count: 1, Quality: 0.5,
		ReadyDelay: 5 * time.Second, CleanDelay: 10 * time.Second,
	}, in, func(it *FaceItem) { forwarded = append(forwarded, it) })

	agg.processItem(faceItem("t-7", goodFace(1)))
	var holder = agg.active["t-7"]
	require.NotNil(t, holder)

	select {
	case uuid := <-agg.forwardCh:
		agg.processForward(uuid)
	case <-time.After(time.Second):
		t.Fatal("no forward signal")
	}
	require.Len(t, forwarded, 1)
	require.Len(t, forwarded[0].Notify.Faces, 1)

	// A burst that raced the forward and lost: its merge must not reach the
	// item already handed downstream.
	agg.handle(holder, []event[*FaceItem]{{kind: evAppend, item: faceItem("t-7", goodFace(2))}})
	require.Len(t, forwarded[0].Notify.Faces, 1)
}

func TestForwardSnapshotStableUnderBursts(t *testing.T) {
	var cfg = FaceConfig{
		Count: 1, Quality: 0.5,
		ReadyDelay: 5 * time.Second, CleanDelay: 10 * time.Second,
	}
	in, out, _ := startFaceAggregator(t, cfg)

	for i := 0; i < 200; i++ {
		var uuid = fmt.Sprintf("b-%d", i)
		in.Push(faceItem(uuid, goodFace(1)))
		in.Push(faceItem(uuid, goodFace(2)))

		var got = waitForward(t, out, time.Second)
		var n = len(got.Notify.Faces)
		time.Sleep(time.Millisecond)
		require.Len(t, got.Notify.Faces, n)
	}
}

func TestSortFacesOrderAndRename(t *testing.T) {
	var item = faceItem("t-6",
		badFace(5),
		goodFace(9),
		goodFace(2),
		badFace(1),
	)
	SortFaces(item)

	var faces = item.Notify.Faces
	require.Len(t, faces, 4)

	// Feature-bearing captures first, frame order within each group.
	require.True(t, faces[0].HasFeature())
	require.True(t, faces[1].HasFeature())
	require.False(t, faces[2].HasFeature())
	require.False(t, faces[3].HasFeature())
	require.Equal(t, int64(2), faces[0].FrameNum)
	require.Equal(t, int64(9), faces[1].FrameNum)
	require.Equal(t, int64(1), faces[2].FrameNum)
	require.Equal(t, int64(5), faces[3].FrameNum)

	require.Equal(t, "align_1.bmp", faces[0].AlignedFile)
	require.Equal(t, "display_1.bmp", faces[0].DisplayFile)
	require.Equal(t, "feature_1.data", *faces[0].FeatureFile)
	require.Equal(t, "align_4.bmp", faces[3].AlignedFile)
	require.Nil(t, faces[3].FeatureFile)
}

func TestCarReadiness(t *testing.T) {
	var text = "AB123"
	var makeCar = func(conf float64, vehicles int) *CarItem {
		var it = &CarItem{
			UUID: "c-1",
			TS:   timefmt.Now(),
			Notify: api.CarNotify{
				PlateInfo: &api.PlateInfo{
					Text: &text,
					Bits: [][]api.PlateBit{{{Value: "A", Conf: conf}}},
				},
			},
		}
		for i := 0; i < vehicles; i++ {
			it.Notify.Vehicles = append(it.Notify.Vehicles, api.Vehicle{FrameNum: int64(i)})
		}
		return it
	}

	var in = queue.New[*CarItem]()
	var out = make(chan *CarItem, 4)
	var cfg = CarConfig{
		Count: 2, Conf: 0.7,
		ReadyDelay: 5 * time.Second, CleanDelay: 10 * time.Second,
	}
	var agg = NewCarAggregator(cfg, in, func(it *CarItem) { out <- it })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	// Low confidence: not ready on arrival.
	in.Push(makeCar(0.5, 3))
	select {
	case <-out:
		t.Fatal("low-confidence plate must not be ready")
	case <-time.After(150 * time.Millisecond):
	}

	// Append with a confident plate flips it.
	in.Push(makeCar(0.9, 0))
	select {
	case it := <-out:
		require.Equal(t, "c-1", it.UUID)
		require.Len(t, it.Notify.Vehicles, 3)
	case <-time.After(time.Second):
		t.Fatal("car track was not forwarded")
	}
}
