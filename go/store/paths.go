// Package store persists track imagery to S3-compatible object storage
// (MinIO in path-style mode) and builds the public URLs recorded in MySQL.
package store

import (
	"fmt"
	"time"
)

func tsPrefix(ts time.Time) string {
	return ts.Format("/2006/01/02")
}

// Facetrack object keys, all under /YYYY/MM/DD/{uuid}/.

func FacetrackBgPath(uuid string, ts time.Time) string {
	return fmt.Sprintf("%s/%s/%s_bg.jpg", tsPrefix(ts), uuid, uuid)
}

func FacetrackSmallPath(uuid string, ts time.Time, faceID int) string {
	return fmt.Sprintf("%s/%s/%s_%d_s.jpg", tsPrefix(ts), uuid, uuid, faceID)
}

func FacetrackLargePath(uuid string, ts time.Time, faceID int) string {
	return fmt.Sprintf("%s/%s/%s_%d_l.jpg", tsPrefix(ts), uuid, uuid, faceID)
}

func FacetrackFeaPath(uuid string, ts time.Time, faceID int) string {
	return fmt.Sprintf("%s/%s/%s_%d_fea.txt", tsPrefix(ts), uuid, uuid, faceID)
}

// Cartrack object keys.

func CartrackBgPath(uuid string, ts time.Time) string {
	return fmt.Sprintf("%s/%s/%s_bg.jpg", tsPrefix(ts), uuid, uuid)
}

func CartrackCarPath(uuid string, ts time.Time, carID int) string {
	return fmt.Sprintf("%s/%s/%s_%d.jpg", tsPrefix(ts), uuid, uuid, carID)
}

func CartrackPlatePath(uuid string, ts time.Time) string {
	return fmt.Sprintf("%s/%s/%s_plate.jpg", tsPrefix(ts), uuid, uuid)
}

func CartrackBinaryPath(uuid string, ts time.Time) string {
	return fmt.Sprintf("%s/%s/%s_binary.jpg", tsPrefix(ts), uuid, uuid)
}
