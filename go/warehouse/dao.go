package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/twmsh/fy-admin/go/mysqltz"
)

// Dao writes track rows. The MySQL server may run in a zone other than the
// process, so every DATETIME crosses through serverTZ.
type Dao struct {
	db       *sql.DB
	serverTZ *time.Location
}

func NewDao(db *sql.DB, serverTZ *time.Location) *Dao {
	return &Dao{db: db, serverTZ: serverTZ}
}

const insertFacetrackSQL = `insert into facetrack
(uuid, camera_uuid, img_ids, feature_ids, gender, age, glasses, most_persons, capture_time, create_time)
values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (d *Dao) InsertFacetrack(ctx context.Context, row *Facetrack) (int64, error) {
	res, err := d.db.ExecContext(ctx, insertFacetrackSQL,
		row.UUID, row.CameraUUID, row.ImgIds, row.FeatureIds,
		row.Gender, row.Age, row.Glasses, emptyToNull(row.MostPersons),
		mysqltz.WriteDT(row.CaptureTime, d.serverTZ), mysqltz.WriteDT(row.CreateTime, d.serverTZ))
	if err != nil {
		return 0, fmt.Errorf("inserting facetrack %s: %w", row.UUID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("inserting facetrack %s: %w", row.UUID, err)
	}
	return id, nil
}

const insertCartrackSQL = `insert into cartrack
(uuid, camera_uuid, img_ids, plate_judged, vehicle_judged, move_direct, car_direct,
plate_content, plate_confidence, plate_type, car_color, car_brand, car_top_series, car_series,
car_top_type, car_mid_type, capture_time, create_time)
values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (d *Dao) InsertCartrack(ctx context.Context, row *Cartrack) (int64, error) {
	res, err := d.db.ExecContext(ctx, insertCartrackSQL,
		row.UUID, row.CameraUUID, row.ImgIds,
		row.PlateJudged, row.VehicleJudged, row.MoveDirect, row.CarDirect,
		row.PlateContent, row.PlateConfidence, row.PlateType,
		row.CarColor, row.CarBrand, row.CarTopSeries, row.CarSeries,
		row.CarTopType, row.CarMidType,
		mysqltz.WriteDT(row.CaptureTime, d.serverTZ), mysqltz.WriteDT(row.CreateTime, d.serverTZ))
	if err != nil {
		return 0, fmt.Errorf("inserting cartrack %s: %w", row.UUID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("inserting cartrack %s: %w", row.UUID, err)
	}
	return id, nil
}

func emptyToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
