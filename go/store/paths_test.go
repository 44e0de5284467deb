package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObjectKeys(t *testing.T) {
	var ts = time.Date(2022, 6, 30, 10, 30, 0, 0, time.Local)
	var uuid = "014ca2a9-5646-413e-b588-17874e83caa9"

	require.Equal(t,
		"/2022/06/30/"+uuid+"/"+uuid+"_bg.jpg",
		FacetrackBgPath(uuid, ts))
	require.Equal(t,
		"/2022/06/30/"+uuid+"/"+uuid+"_2_s.jpg",
		FacetrackSmallPath(uuid, ts, 2))
	require.Equal(t,
		"/2022/06/30/"+uuid+"/"+uuid+"_2_l.jpg",
		FacetrackLargePath(uuid, ts, 2))
	require.Equal(t,
		"/2022/06/30/"+uuid+"/"+uuid+"_2_fea.txt",
		FacetrackFeaPath(uuid, ts, 2))
	require.Equal(t,
		"/2022/06/30/"+uuid+"/"+uuid+"_3.jpg",
		CartrackCarPath(uuid, ts, 3))
	require.Equal(t,
		"/2022/06/30/"+uuid+"/"+uuid+"_plate.jpg",
		CartrackPlatePath(uuid, ts))
}

func TestBucketURL(t *testing.T) {
	var b = &Bucket{name: "facetrack", urlPrefix: "http://192.168.1.26:9000"}
	var ts = time.Date(2022, 6, 30, 0, 0, 0, 0, time.Local)

	require.Equal(t,
		"http://192.168.1.26:9000/facetrack/2022/06/30/u-1/u-1_bg.jpg",
		b.URL(FacetrackBgPath("u-1", ts)))
}
