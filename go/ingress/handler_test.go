package ingress

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/twmsh/fy-admin/go/tracker"
)

type uploadForm struct {
	buf bytes.Buffer
	w   *multipart.Writer
}

func newUploadForm() *uploadForm {
	var f = &uploadForm{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *uploadForm) field(name, value string) {
	_ = f.w.WriteField(name, value)
}

func (f *uploadForm) file(t *testing.T, name string, data []byte) {
	t.Helper()
	part, err := f.w.CreateFormFile(name, name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
}

func (f *uploadForm) post(t *testing.T, h *Handler) UploadRes {
	t.Helper()
	require.NoError(t, f.w.Close())

	var req = httptest.NewRequest(http.MethodPost, "/trackupload", &f.buf)
	req.Header.Set("Content-Type", f.w.FormDataContentType())
	var rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res UploadRes
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return res
}

func faceJSON(uuid string) string {
	return `{
		"id": "` + uuid + `",
		"index": 3,
		"source": "cam-1",
		"version": "1.0",
		"background": {
			"frame_num": 10, "height": 1080, "width": 1920,
			"image": null, "image_file": "bg.jpg",
			"rect": {"x":0,"y":0,"w":10,"h":10},
			"video_width": 1920, "video_height": 1080
		},
		"position": {
			"end":0,"end_frame":0,"end_real_time":0,
			"start":0,"start_frame":0,"start_real_time":0
		},
		"faces": [{
			"aligned": null, "aligned_file": "align_1.bmp",
			"angles": [0,0,0],
			"display": null, "display_file": "display_1.bmp",
			"feature_file": "feature_1.data",
			"frame_num": 10, "quality": 0.88,
			"rect": {"x":1,"y":1,"w":5,"h":5}
		}]
	}`
}

func TestFaceUploadBindsFiles(t *testing.T) {
	var got *tracker.FaceItem
	var h = &Handler{
		FaceOut: func(it *tracker.FaceItem) { got = it },
		CarOut:  func(*tracker.CarItem) { t.Fatal("unexpected car item") },
	}

	var f = newUploadForm()
	f.field("type", "facetrack")
	f.field("json", faceJSON("ft-1"))
	f.file(t, "bg.jpg", []byte{0xff, 0xd8, 1})
	f.file(t, "align_1.bmp", []byte{0xff, 0xd8, 2})
	f.file(t, "display_1.bmp", []byte{0xff, 0xd8, 3})
	f.file(t, "feature_1.data", []byte{9, 9, 9})

	var res = f.post(t, h)
	require.Zero(t, res.Status, res.Message)

	require.NotNil(t, got)
	require.Equal(t, "ft-1", got.UUID)
	require.Equal(t, []byte{0xff, 0xd8, 1}, got.Notify.Background.ImageBuf)
	require.Len(t, got.Notify.Faces, 1)
	require.Equal(t, []byte{0xff, 0xd8, 2}, got.Notify.Faces[0].AlignedBuf)
	require.Equal(t, []byte{9, 9, 9}, got.Notify.Faces[0].FeatureBuf)
}

func TestWrappedUploadKeepsMatches(t *testing.T) {
	var got *tracker.FaceItem
	var h = &Handler{
		FaceOut: func(it *tracker.FaceItem) { got = it },
		CarOut:  func(*tracker.CarItem) { t.Fatal("unexpected car item") },
	}

	var wrapped = `{
		"uuid": "ft-9",
		"ts": "2026-08-25 10:00:00.000",
		"matches": [{"db_id": "db-1", "uuid": "p-1", "score": 97}],
		"notify": ` + faceJSON("ft-9") + `
	}`

	var f = newUploadForm()
	f.field("type", "facetrack")
	f.field("json", wrapped)
	f.file(t, "bg.jpg", []byte{0xff, 0xd8, 1})
	f.file(t, "align_1.bmp", []byte{0xff, 0xd8, 2})
	f.file(t, "display_1.bmp", []byte{0xff, 0xd8, 3})
	f.file(t, "feature_1.data", []byte{9, 9, 9})

	var res = f.post(t, h)
	require.Zero(t, res.Status, res.Message)

	require.NotNil(t, got)
	require.Equal(t, "ft-9", got.UUID)
	require.Len(t, got.Matches, 1)
	require.Equal(t, "p-1", got.Matches[0].UUID)
	require.Equal(t, int64(97), got.Matches[0].Score)
}

func TestMissingFilePartRejected(t *testing.T) {
	var h = &Handler{
		FaceOut: func(*tracker.FaceItem) { t.Fatal("must not forward incomplete upload") },
		CarOut:  func(*tracker.CarItem) {},
	}

	var f = newUploadForm()
	f.field("type", "facetrack")
	f.field("json", faceJSON("ft-2"))
	f.file(t, "bg.jpg", []byte{0xff, 0xd8, 1})
	// aligned/display/feature parts missing

	var res = f.post(t, h)
	require.Equal(t, 1, res.Status)
	require.Contains(t, res.Message, "align_1.bmp")
}

func TestUnknownTypeRejected(t *testing.T) {
	var h = &Handler{FaceOut: func(*tracker.FaceItem) {}, CarOut: func(*tracker.CarItem) {}}

	var f = newUploadForm()
	f.field("type", "cattrack")
	var res = f.post(t, h)
	require.Equal(t, 1, res.Status)
	require.Contains(t, res.Message, "unknown type")
}

func TestCarUploadBindsPlate(t *testing.T) {
	var got *tracker.CarItem
	var h = &Handler{
		FaceOut: func(*tracker.FaceItem) { t.Fatal("unexpected face item") },
		CarOut:  func(it *tracker.CarItem) { got = it },
	}

	var carJSON = `{
		"id": "ct-1", "index": 1, "source": "cam-2", "version": "1.0",
		"background": {
			"frame_num": 5, "height": 1080, "width": 1920,
			"image": null, "image_file": "bg.jpg",
			"rect": {"x":0,"y":0,"w":10,"h":10},
			"video_width": 1920, "video_height": 1080
		},
		"position": {
			"end":0,"end_frame":0,"end_real_time":0,
			"start":0,"start_frame":0,"start_real_time":0
		},
		"vehicles": [{
			"image": null, "image_file": "car_1.jpg",
			"frame_num": 5, "rect": {"x":0,"y":0,"w":4,"h":4}
		}],
		"plate_info": {
			"binary_file": null, "text": "AB123",
			"image": null, "image_file": "plate_1.jpg",
			"type": {"value": "blue", "conf": 0.95},
			"bits": [[{"value":"A","conf":0.9}]]
		}
	}`

	var f = newUploadForm()
	f.field("type", "vehicletrack")
	f.field("json", carJSON)
	f.file(t, "bg.jpg", []byte{0xff, 0xd8, 1})
	f.file(t, "car_1.jpg", []byte{0xff, 0xd8, 2})
	f.file(t, "plate_1.jpg", []byte{0xff, 0xd8, 3})

	var res = f.post(t, h)
	require.Zero(t, res.Status, res.Message)

	require.NotNil(t, got)
	require.Equal(t, "ct-1", got.UUID)
	require.True(t, got.Notify.HasPlateInfo())
	require.Equal(t, []byte{0xff, 0xd8, 3}, got.Notify.PlateInfo.ImageBuf)
}
