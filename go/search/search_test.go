package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/twmsh/fy-admin/go/api"
	"github.com/twmsh/fy-admin/go/queue"
	"github.com/twmsh/fy-admin/go/timefmt"
	"github.com/twmsh/fy-admin/go/tracker"
)

type fakeRecognizer struct {
	dbs        []string
	dbsCalls   int
	searchFn   func(features [][]api.FeatureQuality) *api.SearchRes
	searchReqs [][][]api.FeatureQuality
}

func (f *fakeRecognizer) GetDbs() (*api.GetDbsRes, error) {
	f.dbsCalls++
	return &api.GetDbsRes{Code: 0, Msg: "ok", Dbs: f.dbs}, nil
}

func (f *fakeRecognizer) Search(db []string, top, threshold []int64, features [][]api.FeatureQuality) (*api.SearchRes, error) {
	f.searchReqs = append(f.searchReqs, features)
	if f.searchFn != nil {
		return f.searchFn(features), nil
	}
	return &api.SearchRes{Code: 0, Msg: "ok", Persons: make([][]api.SearchResPerson, len(features))}, nil
}

func trackWithFeature(uuid string) *tracker.FaceItem {
	return &tracker.FaceItem{
		UUID: uuid,
		TS:   timefmt.Now(),
		Notify: api.FaceNotify{
			Faces: []api.Face{{Quality: 0.9, FeatureBuf: []byte{1, 2}}},
		},
	}
}

func trackWithoutFeature(uuid string) *tracker.FaceItem {
	return &tracker.FaceItem{
		UUID:   uuid,
		TS:     timefmt.Now(),
		Notify: api.FaceNotify{Faces: []api.Face{{Quality: 0.9}}},
	}
}

func runBatch(t *testing.T, svc *Service, in *queue.Queue[*tracker.FaceItem], out chan tracker.Output, n int) []tracker.Output {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	var got []tracker.Output
	for i := 0; i < n; i++ {
		select {
		case o := <-out:
			got = append(got, o)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d tracks forwarded", len(got), n)
		}
	}
	return got
}

func TestMatchesAnnotated(t *testing.T) {
	var recg = &fakeRecognizer{
		dbs: []string{"db-1"},
		searchFn: func(features [][]api.FeatureQuality) *api.SearchRes {
			var persons = make([][]api.SearchResPerson, len(features))
			persons[0] = []api.SearchResPerson{{ID: "p-9", Score: 95, Db: "db-1"}}
			return &api.SearchRes{Code: 0, Msg: "ok", Persons: persons}
		},
	}
	var in = queue.New[*tracker.FaceItem]()
	var out = make(chan tracker.Output, 8)
	var svc = New(0, Config{Top: 5, Threshold: 80, CacheTTL: time.Minute}, recg, in,
		func(o tracker.Output) { out <- o })

	in.Push(trackWithFeature("t-1"))
	var got = runBatch(t, svc, in, out, 1)

	require.NotNil(t, got[0].Face)
	require.Len(t, got[0].Face.Matches, 1)
	require.Equal(t, "p-9", got[0].Face.Matches[0].UUID)
	require.Equal(t, "db-1", got[0].Face.Matches[0].DbID)
}

func TestFeaturelessTrackSkipsWholeBatch(t *testing.T) {
	var recg = &fakeRecognizer{dbs: []string{"db-1"}}
	var in = queue.New[*tracker.FaceItem]()
	var out = make(chan tracker.Output, 8)
	var svc = New(0, Config{Top: 5, Threshold: 80, CacheTTL: time.Minute}, recg, in,
		func(o tracker.Output) { out <- o })

	in.Push(trackWithFeature("t-1"))
	in.Push(trackWithoutFeature("t-2"))
	var got = runBatch(t, svc, in, out, 2)

	require.Empty(t, recg.searchReqs, "search must be skipped when a track has no features")
	for _, o := range got {
		require.NotNil(t, o.Face)
		require.Nil(t, o.Face.Matches)
	}
}

func TestSkipSearchStillForwards(t *testing.T) {
	var recg = &fakeRecognizer{dbs: []string{"db-1"}}
	var in = queue.New[*tracker.FaceItem]()
	var out = make(chan tracker.Output, 8)
	var svc = New(0, Config{Top: 5, Threshold: 80, SkipSearch: true, CacheTTL: time.Minute}, recg, in,
		func(o tracker.Output) { out <- o })

	in.Push(trackWithFeature("t-1"))
	var got = runBatch(t, svc, in, out, 1)

	require.Zero(t, recg.dbsCalls, "skip_search must not query db list")
	require.Empty(t, recg.searchReqs)
	require.Nil(t, got[0].Face.Matches)
}

func TestDbListCached(t *testing.T) {
	var recg = &fakeRecognizer{dbs: []string{"db-1"}}
	var in = queue.New[*tracker.FaceItem]()
	var out = make(chan tracker.Output, 8)
	var svc = New(0, Config{Top: 5, Threshold: 80, CacheTTL: time.Minute}, recg, in,
		func(o tracker.Output) { out <- o })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	for i := 0; i < 3; i++ {
		in.Push(trackWithFeature("t"))
		select {
		case <-out:
		case <-time.After(2 * time.Second):
			t.Fatal("track not forwarded")
		}
	}
	require.Equal(t, 1, recg.dbsCalls, "db list must come from the TTL cache")
}
