// Package syncserver is the central fleet side: it serves the delta-sync
// HTTP endpoints the boxes poll, consumes their log/status stream from the
// broker, and prunes old logs.
package syncserver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/twmsh/fy-admin/go/mysqltz"
	"github.com/twmsh/fy-admin/go/syncapi"
)

// BoxRow is one provisioned box. The has_* switches gate which delta
// streams it receives.
type BoxRow struct {
	ID        int64
	HwID      string
	SyncFlag  int32
	HasDb     int32
	HasCamera int32
}

type DbRow struct {
	ID         int64
	UUID       string
	Capacity   int32
	ModifyTime time.Time
}

// DbDelRow is a tombstone; OriginID is the id the row had while alive.
type DbDelRow struct {
	OriginID   int64
	UUID       string
	Capacity   int32
	ModifyTime time.Time
}

type CameraRow struct {
	ID         int64
	UUID       string
	CType      int32
	URL        string
	Config     string
	ModifyTime time.Time
}

type CameraDelRow struct {
	OriginID   int64
	UUID       string
	CType      int32
	ModifyTime time.Time
}

// PersonFeaRow is one face of one person, joined from the feature and
// feature-map tables. Rows arrive ordered by (modify_time, uuid) so the
// faces of a person are contiguous.
type PersonFeaRow struct {
	ID         int64
	DbUUID     string
	UUID       string
	FaceID     string
	Feature    string
	Quality    float64
	ModifyTime time.Time
}

type FeaDelRow struct {
	OriginID   int64
	UUID       string
	DbUUID     string
	ModifyTime time.Time
}

// Store is the slice of the database the web handlers need.
type Store interface {
	FindBox(ctx context.Context, hwID string) (*BoxRow, error)
	DbDeltas(ctx context.Context, since time.Time, limit int) ([]DbRow, []DbDelRow, error)
	CameraDeltas(ctx context.Context, hwID string, since time.Time, limit int) ([]CameraRow, []CameraDelRow, error)
	PersonDeltas(ctx context.Context, since time.Time, limit int) ([]PersonFeaRow, []FeaDelRow, error)
}

// Dao implements Store against MySQL, converting every DATETIME through
// the server's fixed offset.
type Dao struct {
	db       *sql.DB
	serverTZ *time.Location
}

func NewDao(db *sql.DB, serverTZ *time.Location) *Dao {
	return &Dao{db: db, serverTZ: serverTZ}
}

// sinceBound renders a cursor for the modify_time > ? predicates. The
// columns are DATETIME(3), so the bound keeps its milliseconds; truncating
// would re-select the row the cursor came from on every page.
func (d *Dao) sinceBound(since time.Time) string {
	return mysqltz.WriteDT3(since, d.serverTZ)
}

func (d *Dao) FindBox(ctx context.Context, hwID string) (*BoxRow, error) {
	const q = `select id, hw_id, sync_flag, has_db, has_camera from base_box where hw_id = ?`

	var box BoxRow
	var err = d.db.QueryRowContext(ctx, q, hwID).
		Scan(&box.ID, &box.HwID, &box.SyncFlag, &box.HasDb, &box.HasCamera)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding box %s: %w", hwID, err)
	}
	return &box, nil
}

func (d *Dao) DbDeltas(ctx context.Context, since time.Time, limit int) ([]DbRow, []DbDelRow, error) {
	var sinceDT = d.sinceBound(since)

	const liveQ = `select id, uuid, capacity, modify_time from base_db
where modify_time > ? order by modify_time asc limit ?`
	rows, err := d.db.QueryContext(ctx, liveQ, sinceDT, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("querying base_db: %w", err)
	}
	defer rows.Close()

	var live []DbRow
	for rows.Next() {
		var r DbRow
		var mt string
		if err = rows.Scan(&r.ID, &r.UUID, &r.Capacity, &mt); err != nil {
			return nil, nil, fmt.Errorf("scanning base_db: %w", err)
		}
		if r.ModifyTime, err = mysqltz.ReadDT(mt, d.serverTZ); err != nil {
			return nil, nil, err
		}
		live = append(live, r)
	}
	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("querying base_db: %w", err)
	}

	const delQ = `select origin_id, uuid, capacity, modify_time from base_db_del
where modify_time > ? order by modify_time asc limit ?`
	delRows, err := d.db.QueryContext(ctx, delQ, sinceDT, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("querying base_db_del: %w", err)
	}
	defer delRows.Close()

	var deleted []DbDelRow
	for delRows.Next() {
		var r DbDelRow
		var mt string
		if err = delRows.Scan(&r.OriginID, &r.UUID, &r.Capacity, &mt); err != nil {
			return nil, nil, fmt.Errorf("scanning base_db_del: %w", err)
		}
		if r.ModifyTime, err = mysqltz.ReadDT(mt, d.serverTZ); err != nil {
			return nil, nil, err
		}
		deleted = append(deleted, r)
	}
	if err = delRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("querying base_db_del: %w", err)
	}
	return live, deleted, nil
}

func (d *Dao) CameraDeltas(ctx context.Context, hwID string, since time.Time, limit int) ([]CameraRow, []CameraDelRow, error) {
	var sinceDT = d.sinceBound(since)

	const liveQ = `select id, uuid, c_type, url, config, modify_time from base_camera
where box_hwid = ? and modify_time > ? order by modify_time asc limit ?`
	rows, err := d.db.QueryContext(ctx, liveQ, hwID, sinceDT, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("querying base_camera: %w", err)
	}
	defer rows.Close()

	var live []CameraRow
	for rows.Next() {
		var r CameraRow
		var mt string
		if err = rows.Scan(&r.ID, &r.UUID, &r.CType, &r.URL, &r.Config, &mt); err != nil {
			return nil, nil, fmt.Errorf("scanning base_camera: %w", err)
		}
		if r.ModifyTime, err = mysqltz.ReadDT(mt, d.serverTZ); err != nil {
			return nil, nil, err
		}
		live = append(live, r)
	}
	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("querying base_camera: %w", err)
	}

	const delQ = `select origin_id, uuid, c_type, modify_time from base_camera_del
where box_hwid = ? and modify_time > ? order by modify_time asc limit ?`
	delRows, err := d.db.QueryContext(ctx, delQ, hwID, sinceDT, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("querying base_camera_del: %w", err)
	}
	defer delRows.Close()

	var deleted []CameraDelRow
	for delRows.Next() {
		var r CameraDelRow
		var mt string
		if err = delRows.Scan(&r.OriginID, &r.UUID, &r.CType, &mt); err != nil {
			return nil, nil, fmt.Errorf("scanning base_camera_del: %w", err)
		}
		if r.ModifyTime, err = mysqltz.ReadDT(mt, d.serverTZ); err != nil {
			return nil, nil, err
		}
		deleted = append(deleted, r)
	}
	if err = delRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("querying base_camera_del: %w", err)
	}
	return live, deleted, nil
}

func (d *Dao) PersonDeltas(ctx context.Context, since time.Time, limit int) ([]PersonFeaRow, []FeaDelRow, error) {
	var sinceDT = d.sinceBound(since)

	// Page over persons first, then join in their faces, so limit counts
	// persons rather than faces.
	const liveQ = `select a.id, a.db_uuid, a.uuid, b.face_id, b.feature, b.quality, a.modify_time from (
	select * from base_fea where modify_time > ?
	order by modify_time asc limit ?
) a left join base_fea_map b on a.uuid = b.uuid where b.id is not null
order by a.modify_time, a.uuid`
	rows, err := d.db.QueryContext(ctx, liveQ, sinceDT, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("querying base_fea: %w", err)
	}
	defer rows.Close()

	var live []PersonFeaRow
	for rows.Next() {
		var r PersonFeaRow
		var mt string
		if err = rows.Scan(&r.ID, &r.DbUUID, &r.UUID, &r.FaceID, &r.Feature, &r.Quality, &mt); err != nil {
			return nil, nil, fmt.Errorf("scanning base_fea: %w", err)
		}
		if r.ModifyTime, err = mysqltz.ReadDT(mt, d.serverTZ); err != nil {
			return nil, nil, err
		}
		live = append(live, r)
	}
	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("querying base_fea: %w", err)
	}

	const delQ = `select origin_id, uuid, db_uuid, modify_time from base_fea_del
where modify_time > ? order by modify_time asc limit ?`
	delRows, err := d.db.QueryContext(ctx, delQ, sinceDT, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("querying base_fea_del: %w", err)
	}
	defer delRows.Close()

	var deleted []FeaDelRow
	for delRows.Next() {
		var r FeaDelRow
		var mt string
		if err = delRows.Scan(&r.OriginID, &r.UUID, &r.DbUUID, &mt); err != nil {
			return nil, nil, fmt.Errorf("scanning base_fea_del: %w", err)
		}
		if r.ModifyTime, err = mysqltz.ReadDT(mt, d.serverTZ); err != nil {
			return nil, nil, err
		}
		deleted = append(deleted, r)
	}
	if err = delRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("querying base_fea_del: %w", err)
	}
	return live, deleted, nil
}

// UpdateLatestOnline stamps the box's last-seen time.
func (d *Dao) UpdateLatestOnline(ctx context.Context, hwID string, ts time.Time) error {
	const q = `update base_box set latest_online = ? where hw_id = ?`
	if _, err := d.db.ExecContext(ctx, q, mysqltz.WriteDT(ts, d.serverTZ), hwID); err != nil {
		return fmt.Errorf("updating latest_online for %s: %w", hwID, err)
	}
	return nil
}

// Box log levels as stored.
const (
	logLevelDebug = 0
	logLevelInfo  = 1
	logLevelWarn  = 2
	logLevelError = 3
)

func logLevel(level string) int {
	switch level {
	case "debug":
		return logLevelDebug
	case "warn":
		return logLevelWarn
	case "error":
		return logLevelError
	default:
		return logLevelInfo
	}
}

// InsertBoxLog persists one reported log/status message.
func (d *Dao) InsertBoxLog(ctx context.Context, msg *syncapi.BoxLogMessage, recvTime time.Time) error {
	const q = `insert into base_box_log (box_hwid, log_type, log_level, log_payload, create_time)
values (?, ?, ?, ?, ?)`
	_, err := d.db.ExecContext(ctx, q,
		msg.HwID, msg.Type, logLevel(msg.Level), msg.Payload,
		mysqltz.WriteDT(recvTime, d.serverTZ))
	if err != nil {
		return fmt.Errorf("inserting box log for %s: %w", msg.HwID, err)
	}
	return nil
}

// CleanBoxLog deletes logs created before the deadline, returning how many.
func (d *Dao) CleanBoxLog(ctx context.Context, before time.Time) (int64, error) {
	const q = `delete from base_box_log where create_time < ?`
	res, err := d.db.ExecContext(ctx, q, mysqltz.WriteDT(before, d.serverTZ))
	if err != nil {
		return 0, fmt.Errorf("cleaning box log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleaning box log: %w", err)
	}
	return n, nil
}
