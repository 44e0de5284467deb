package syncserver

import (
	"sort"
	"strconv"
	"time"

	"github.com/twmsh/fy-admin/go/syncapi"
	"github.com/twmsh/fy-admin/go/timefmt"
)

func toWire(t time.Time) timefmt.Time { return timefmt.Time{Time: t} }

// The delta endpoints merge up to limit live rows with up to limit
// tombstones, order the union by last_update, and return the first limit
// entries. The stable sort keeps live-before-deleted for equal timestamps.

func sortAndTruncate[T any](list []T, before func(a, b *T) bool, limit int) []T {
	sort.SliceStable(list, func(i, j int) bool { return before(&list[i], &list[j]) })
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}

func dbDeltas(live []DbRow, deleted []DbDelRow, limit int) []syncapi.Db {
	var list = make([]syncapi.Db, 0, len(live)+len(deleted))
	for _, r := range live {
		list = append(list, syncapi.Db{
			ID:         strconv.FormatInt(r.ID, 10),
			UUID:       r.UUID,
			Op:         syncapi.OpModify,
			LastUpdate: toWire(r.ModifyTime),
			Capacity:   r.Capacity,
		})
	}
	for _, r := range deleted {
		list = append(list, syncapi.Db{
			ID:         strconv.FormatInt(r.OriginID, 10),
			UUID:       r.UUID,
			Op:         syncapi.OpDelete,
			LastUpdate: toWire(r.ModifyTime),
			Capacity:   r.Capacity,
		})
	}
	return sortAndTruncate(list, func(a, b *syncapi.Db) bool {
		return a.LastUpdate.Before(b.LastUpdate.Time)
	}, limit)
}

func cameraDeltas(live []CameraRow, deleted []CameraDelRow, limit int) []syncapi.Camera {
	var list = make([]syncapi.Camera, 0, len(live)+len(deleted))
	for _, r := range live {
		list = append(list, syncapi.Camera{
			ID:         strconv.FormatInt(r.ID, 10),
			UUID:       r.UUID,
			Op:         syncapi.OpModify,
			LastUpdate: toWire(r.ModifyTime),
			Type:       int64(r.CType),
			Detail: &syncapi.CameraInfo{
				UUID:   r.UUID,
				URL:    r.URL,
				Config: r.Config,
			},
		})
	}
	for _, r := range deleted {
		list = append(list, syncapi.Camera{
			ID:         strconv.FormatInt(r.OriginID, 10),
			UUID:       r.UUID,
			Op:         syncapi.OpDelete,
			LastUpdate: toWire(r.ModifyTime),
			Type:       int64(r.CType),
		})
	}
	return sortAndTruncate(list, func(a, b *syncapi.Camera) bool {
		return a.LastUpdate.Before(b.LastUpdate.Time)
	}, limit)
}

// personDeltas groups the joined face rows into one Person per uuid. Rows
// arrive ordered by (modify_time, uuid) so a person's faces are contiguous.
func personDeltas(live []PersonFeaRow, deleted []FeaDelRow, limit int) []syncapi.Person {
	var list []syncapi.Person
	for _, r := range live {
		if n := len(list); n > 0 && list[n-1].UUID == r.UUID && list[n-1].Op == syncapi.OpModify {
			list[n-1].AddFace(personFace(&r))
			continue
		}
		var p = syncapi.Person{
			ID:         strconv.FormatInt(r.ID, 10),
			UUID:       r.UUID,
			DbID:       r.DbUUID,
			Op:         syncapi.OpModify,
			LastUpdate: toWire(r.ModifyTime),
		}
		p.AddFace(personFace(&r))
		list = append(list, p)
	}
	for _, r := range deleted {
		list = append(list, syncapi.Person{
			ID:         strconv.FormatInt(r.OriginID, 10),
			UUID:       r.UUID,
			DbID:       r.DbUUID,
			Op:         syncapi.OpDelete,
			LastUpdate: toWire(r.ModifyTime),
		})
	}
	return sortAndTruncate(list, func(a, b *syncapi.Person) bool {
		return a.LastUpdate.Before(b.LastUpdate.Time)
	}, limit)
}

func personFace(r *PersonFeaRow) syncapi.PersonFace {
	return syncapi.PersonFace{
		Fea:     r.Feature,
		Quality: float32(r.Quality),
		ID:      r.FaceID,
	}
}
