package syncserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/twmsh/fy-admin/go/mysqltz"
	"github.com/twmsh/fy-admin/go/syncapi"
)

type fakeStore struct {
	box *BoxRow

	dbLive    []DbRow
	dbDel     []DbDelRow
	camLive   []CameraRow
	camDel    []CameraDelRow
	feaLive   []PersonFeaRow
	feaDel    []FeaDelRow
	lastSince time.Time
}

func (f *fakeStore) FindBox(_ context.Context, hwID string) (*BoxRow, error) {
	if f.box != nil && f.box.HwID == hwID {
		return f.box, nil
	}
	return nil, nil
}

func (f *fakeStore) DbDeltas(_ context.Context, since time.Time, _ int) ([]DbRow, []DbDelRow, error) {
	f.lastSince = since
	return f.dbLive, f.dbDel, nil
}

func (f *fakeStore) CameraDeltas(_ context.Context, _ string, since time.Time, _ int) ([]CameraRow, []CameraDelRow, error) {
	f.lastSince = since
	return f.camLive, f.camDel, nil
}

func (f *fakeStore) PersonDeltas(_ context.Context, since time.Time, _ int) ([]PersonFeaRow, []FeaDelRow, error) {
	f.lastSince = since
	return f.feaLive, f.feaDel, nil
}

func at(min int) time.Time {
	return time.Date(2026, 8, 25, 10, min, 0, 0, time.Local)
}

func TestDbDeltasMergesAndTruncates(t *testing.T) {
	var live = []DbRow{
		{ID: 1, UUID: "db-1", Capacity: 100, ModifyTime: at(1)},
		{ID: 2, UUID: "db-2", Capacity: 100, ModifyTime: at(3)},
	}
	var deleted = []DbDelRow{
		{OriginID: 3, UUID: "db-3", Capacity: 50, ModifyTime: at(2)},
	}

	var list = dbDeltas(live, deleted, 2)
	require.Len(t, list, 2)
	require.Equal(t, "db-1", list[0].UUID)
	require.Equal(t, int8(syncapi.OpModify), list[0].Op)
	require.Equal(t, "db-3", list[1].UUID)
	require.Equal(t, int8(syncapi.OpDelete), list[1].Op)
	require.Equal(t, "3", list[1].ID)
}

func TestDbDeltasStableOnEqualTimestamps(t *testing.T) {
	var ts = at(1)
	var list = dbDeltas(
		[]DbRow{{ID: 1, UUID: "db-1", ModifyTime: ts}},
		[]DbDelRow{{OriginID: 2, UUID: "db-2", ModifyTime: ts}},
		10)
	require.Len(t, list, 2)
	require.Equal(t, "db-1", list[0].UUID)
	require.Equal(t, "db-2", list[1].UUID)
}

func TestPersonDeltasGroupsFaces(t *testing.T) {
	var live = []PersonFeaRow{
		{ID: 10, DbUUID: "db-1", UUID: "p-1", FaceID: "1", Feature: "AAA", Quality: 0.9, ModifyTime: at(1)},
		{ID: 10, DbUUID: "db-1", UUID: "p-1", FaceID: "2", Feature: "BBB", Quality: 0.8, ModifyTime: at(1)},
		{ID: 11, DbUUID: "db-1", UUID: "p-2", FaceID: "1", Feature: "CCC", Quality: 0.7, ModifyTime: at(2)},
	}
	var deleted = []FeaDelRow{
		{OriginID: 12, UUID: "p-3", DbUUID: "db-1", ModifyTime: at(3)},
	}

	var list = personDeltas(live, deleted, 10)
	require.Len(t, list, 3)

	require.Equal(t, "p-1", list[0].UUID)
	require.NotNil(t, list[0].Detail)
	require.Len(t, list[0].Detail.Faces, 2)
	require.Equal(t, "AAA", list[0].Detail.Faces[0].Fea)
	require.InDelta(t, 0.8, float64(list[0].Detail.Faces[1].Quality), 1e-6)

	require.Equal(t, "p-2", list[1].UUID)
	require.Len(t, list[1].Detail.Faces, 1)

	require.Equal(t, "p-3", list[2].UUID)
	require.Equal(t, int8(syncapi.OpDelete), list[2].Op)
	require.Nil(t, list[2].Detail)
}

func serveWeb(store Store) *httptest.Server {
	var web = NewWeb(WebConfig{Batch: 100}, store)
	return httptest.NewServer(web.srv.Handler)
}

func getResponse[T any](t *testing.T, url string) *syncapi.Response[T] {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res syncapi.Response[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return &res
}

func TestDbSyncEndToEnd(t *testing.T) {
	var store = &fakeStore{
		box:    &BoxRow{ID: 1, HwID: "box-1", SyncFlag: 1, HasDb: 1, HasCamera: 1},
		dbLive: []DbRow{{ID: 1, UUID: "db-1", Capacity: 100, ModifyTime: at(5)}},
	}
	var srv = serveWeb(store)
	defer srv.Close()

	var res = getResponse[syncapi.Db](t, srv.URL+"/db_sync?hw_id=box-1&last_update=2026-08-25+10%3A00%3A00.000")
	require.Equal(t, int32(syncapi.StatusOK), res.Status)
	require.Len(t, res.Data, 1)
	require.Equal(t, "db-1", res.Data[0].UUID)

	// The since parameter reached the store parsed.
	require.Equal(t, at(0), store.lastSince)
}

func TestDbSyncUnknownDevice(t *testing.T) {
	var srv = serveWeb(&fakeStore{})
	defer srv.Close()

	var res = getResponse[syncapi.Db](t, srv.URL+"/db_sync?hw_id=ghost&last_update=2026-08-25+10%3A00%3A00.000")
	require.Equal(t, int32(syncapi.StatusBizErr), res.Status)
	require.Contains(t, res.Message, "ghost")
}

func TestDbSyncDisabledBoxGetsEmptySuccess(t *testing.T) {
	var store = &fakeStore{
		box:    &BoxRow{ID: 1, HwID: "box-1", SyncFlag: 0, HasDb: 1},
		dbLive: []DbRow{{ID: 1, UUID: "db-1", ModifyTime: at(5)}},
	}
	var srv = serveWeb(store)
	defer srv.Close()

	var res = getResponse[syncapi.Db](t, srv.URL+"/db_sync?hw_id=box-1&last_update=2026-08-25+10%3A00%3A00.000")
	require.Equal(t, int32(syncapi.StatusOK), res.Status)
	require.True(t, res.Empty())
}

func TestSyncRejectsBadParams(t *testing.T) {
	var srv = serveWeb(&fakeStore{})
	defer srv.Close()

	var res = getResponse[syncapi.Camera](t, srv.URL+"/camera_sync?last_update=2026-08-25+10%3A00%3A00.000")
	require.Equal(t, int32(syncapi.StatusInvalidPara), res.Status)

	res = getResponse[syncapi.Camera](t, srv.URL+"/camera_sync?hw_id=box-1&last_update=garbage")
	require.Equal(t, int32(syncapi.StatusInvalidPara), res.Status)
}

func TestCameraSyncAcceptsDeviceIDParam(t *testing.T) {
	var store = &fakeStore{
		box:     &BoxRow{ID: 1, HwID: "box-1", SyncFlag: 1, HasDb: 1, HasCamera: 1},
		camLive: []CameraRow{{ID: 4, UUID: "cam-1", CType: 3, URL: "rtsp://cam", Config: "{}", ModifyTime: at(1)}},
	}
	var srv = serveWeb(store)
	defer srv.Close()

	var res = getResponse[syncapi.Camera](t, srv.URL+"/camera_sync?device_id=box-1&last_update=2026-08-25+10%3A00%3A00.000")
	require.Equal(t, int32(syncapi.StatusOK), res.Status)
	require.Len(t, res.Data, 1)
	require.Equal(t, int64(3), res.Data[0].Type)
	require.NotNil(t, res.Data[0].Detail)
	require.Equal(t, "rtsp://cam", res.Data[0].Detail.URL)
}

func TestDeltaCursorBoundKeepsMillis(t *testing.T) {
	tz, err := mysqltz.Parse("+08:00")
	require.NoError(t, err)
	var dao = NewDao(nil, tz)

	var cursor = time.Date(2026, 8, 25, 18, 0, 0, 123*int(time.Millisecond),
		time.FixedZone("UTC+08:00", 8*3600))
	require.Equal(t, "2026-08-25 18:00:00.123", dao.sinceBound(cursor))
}

func TestLogLevelMapping(t *testing.T) {
	require.Equal(t, logLevelDebug, logLevel("debug"))
	require.Equal(t, logLevelInfo, logLevel("info"))
	require.Equal(t, logLevelWarn, logLevel("warn"))
	require.Equal(t, logLevelError, logLevel("error"))
	require.Equal(t, logLevelInfo, logLevel("whatever"))
}
