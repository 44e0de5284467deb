package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/api"
	"github.com/twmsh/fy-admin/go/hostid"
	"github.com/twmsh/fy-admin/go/queue"
	"github.com/twmsh/fy-admin/go/syncapi"
	"github.com/twmsh/fy-admin/go/timefmt"
)

// Camera capture kinds in the delta stream.
const (
	cameraTypeFace    = 1
	cameraTypeVehicle = 2
	cameraTypeBoth    = 3
)

// WorkerConfig points the sync worker at the sync server and the local
// engines.
type WorkerConfig struct {
	HwID string

	DbURL     string `json:"db_url"`
	CameraURL string `json:"camera_url"`
	PersonURL string `json:"person_url"`

	// NotifyURL is this box's track ingress, written into every camera the
	// analyzer is told about.
	NotifyURL string `json:"notify_url"`
}

const (
	maxSyncPages  = 100
	syncPageDelay = 200 * time.Millisecond
)

// Worker executes tasks one at a time: delta syncs, heartbeats, and server
// commands. The full sync runs its stages in dependency order, cameras
// before dbs before persons, and each stage isolates its own errors so a
// broken stream cannot starve the others.
type Worker struct {
	cfg     WorkerConfig
	cursors *CursorStore

	sync     *syncapi.Client
	analysis *api.AnalysisClient
	recog    *api.RecognitionClient

	tasks  *queue.Queue[TaskItem]
	logOut *queue.Queue[syncapi.BoxLogMessage]

	// rebootFn is swapped in tests.
	rebootFn func() error
}

func NewWorker(cfg WorkerConfig, cursors *CursorStore,
	analysis *api.AnalysisClient, recog *api.RecognitionClient,
	tasks *queue.Queue[TaskItem], logOut *queue.Queue[syncapi.BoxLogMessage]) *Worker {
	return &Worker{
		cfg:      cfg,
		cursors:  cursors,
		sync:     syncapi.NewClient(),
		analysis: analysis,
		recog:    recog,
		tasks:    tasks,
		logOut:   logOut,
		rebootFn: rebootHost,
	}
}

func (w *Worker) Name() string { return "sync-worker" }

func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if err := w.cursors.Save(); err != nil {
				log.Errorf("sync worker: %v", err)
			}
			return
		case task, ok := <-w.tasks.C():
			if !ok {
				return
			}
			w.dispatch(ctx, task)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, task TaskItem) {
	switch task.Kind {
	case TaskSyncTimer:
		w.fullSync(ctx)
	case TaskHeartBeat:
		w.heartbeat()
	case TaskServerCmd:
		switch task.Cmd {
		case CmdSync:
			w.fullSync(ctx)
		case CmdReset:
			w.reset(ctx, parseResetFlags(task.Msg))
		case CmdReboot:
			log.Warn("sync worker: reboot command received")
			if err := w.rebootFn(); err != nil {
				log.Errorf("sync worker: reboot: %v", err)
			}
		default:
			log.Errorf("sync worker: unknown command %d", task.Cmd)
		}
	default:
		log.Errorf("sync worker: unknown task kind %d", task.Kind)
	}
}

// fullSync pulls the three delta streams. Cameras come first so tracks can
// flow, then dbs, then the persons that live in them.
func (w *Worker) fullSync(ctx context.Context) {
	w.syncCameras(ctx)
	w.saveCursors()
	w.syncDbs(ctx)
	w.saveCursors()
	w.syncPersons(ctx)
	w.saveCursors()
}

func (w *Worker) saveCursors() {
	if err := w.cursors.Save(); err != nil {
		log.Errorf("sync worker: %v", err)
	}
}

// pageWait sleeps between pages. Returns false when ctx ended.
func pageWait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(syncPageDelay):
		return true
	}
}

func (w *Worker) syncCameras(ctx context.Context) {
	for page := 0; page < maxSyncPages; page++ {
		var cursor = w.cursors.Snapshot().Camera
		res, err := w.sync.FetchCameraUpdated(w.cfg.CameraURL, cursor.LastUpdate(), w.cfg.HwID)
		if err != nil {
			log.Errorf("sync worker: cameras: %v", err)
			return
		}
		if res.Status != syncapi.StatusOK {
			log.Errorf("sync worker: cameras: server status %d: %s", res.Status, res.Message)
			return
		}
		if res.Empty() {
			return
		}
		for i := range res.Data {
			var cam = &res.Data[i]
			if err := w.applyCamera(cam); err != nil {
				log.WithFields(log.Fields{
					"uuid": cam.UUID,
				}).Errorf("sync worker: applying camera: %v", err)
				return
			}
			w.cursors.SetCamera(Cursor{LastTS: cam.LastUpdate, LastID: cam.ID})
		}
		if !pageWait(ctx) {
			return
		}
	}
}

func (w *Worker) applyCamera(cam *syncapi.Camera) error {
	// Modify is replace: drop any existing source first. A delete of a
	// source the analyzer never had is not an error.
	if _, err := w.analysis.DeleteSource(cam.UUID); err != nil {
		return err
	}
	if cam.Op == syncapi.OpDelete {
		return nil
	}
	if cam.Detail == nil {
		return fmt.Errorf("modify entry without detail")
	}

	var config api.SourceConfig
	if err := json.Unmarshal([]byte(cam.Detail.Config), &config); err != nil {
		return fmt.Errorf("parsing camera config: %w", err)
	}
	config.EnableFace = cam.Type == cameraTypeFace || cam.Type == cameraTypeBoth
	config.EnableVehicle = cam.Type == cameraTypeVehicle || cam.Type == cameraTypeBoth

	res, err := w.analysis.CreateSource(cam.UUID, cam.Detail.URL, w.cfg.NotifyURL, config)
	if err != nil {
		return err
	}
	if res.Code != 0 {
		return fmt.Errorf("create_source code %d: %s", res.Code, res.Msg)
	}
	return nil
}

func (w *Worker) syncDbs(ctx context.Context) {
	for page := 0; page < maxSyncPages; page++ {
		var cursor = w.cursors.Snapshot().Db
		res, err := w.sync.FetchDbUpdated(w.cfg.DbURL, cursor.LastUpdate(), w.cfg.HwID)
		if err != nil {
			log.Errorf("sync worker: dbs: %v", err)
			return
		}
		if res.Status != syncapi.StatusOK {
			log.Errorf("sync worker: dbs: server status %d: %s", res.Status, res.Message)
			return
		}
		if res.Empty() {
			return
		}
		for i := range res.Data {
			var db = &res.Data[i]
			if err := w.applyDb(db); err != nil {
				log.WithFields(log.Fields{
					"uuid": db.UUID,
				}).Errorf("sync worker: applying db: %v", err)
				return
			}
			w.cursors.SetDb(Cursor{LastTS: db.LastUpdate, LastID: db.ID})
		}
		if !pageWait(ctx) {
			return
		}
	}
}

func (w *Worker) applyDb(db *syncapi.Db) error {
	if db.Op == syncapi.OpDelete {
		_, err := w.recog.DeleteDb(db.UUID)
		return err
	}

	// Dbs are never updated in place: create only when absent.
	dbs, err := w.recog.GetDbs()
	if err != nil {
		return err
	}
	for _, id := range dbs.Dbs {
		if id == db.UUID {
			return nil
		}
	}
	res, err := w.recog.CreateDb(db.UUID, int64(db.Capacity))
	if err != nil {
		return err
	}
	if res.Code != 0 {
		return fmt.Errorf("create_db code %d: %s", res.Code, res.Msg)
	}
	return nil
}

func (w *Worker) syncPersons(ctx context.Context) {
	for page := 0; page < maxSyncPages; page++ {
		var cursor = w.cursors.Snapshot().Person
		res, err := w.sync.FetchPersonUpdated(w.cfg.PersonURL, cursor.LastUpdate(), w.cfg.HwID)
		if err != nil {
			log.Errorf("sync worker: persons: %v", err)
			return
		}
		if res.Status != syncapi.StatusOK {
			log.Errorf("sync worker: persons: server status %d: %s", res.Status, res.Message)
			return
		}
		if res.Empty() {
			return
		}
		for i := range res.Data {
			var p = &res.Data[i]
			if err := w.applyPerson(p); err != nil {
				log.WithFields(log.Fields{
					"uuid": p.UUID,
				}).Errorf("sync worker: applying person: %v", err)
				return
			}
			w.cursors.SetPerson(Cursor{LastTS: p.LastUpdate, LastID: p.ID})
		}
		if !pageWait(ctx) {
			return
		}
	}
}

func (w *Worker) applyPerson(p *syncapi.Person) error {
	// Modify is replace here too.
	if _, err := w.recog.DeletePerson(p.DbID, p.UUID); err != nil {
		return err
	}
	if p.Op == syncapi.OpDelete {
		return nil
	}
	if p.Detail == nil {
		return fmt.Errorf("modify entry without detail")
	}

	var features = make([]api.FeatureQuality, 0, len(p.Detail.Faces))
	for _, face := range p.Detail.Faces {
		features = append(features, api.FeatureQuality{
			Feature: face.Fea,
			Quality: float64(face.Quality),
		})
	}
	res, err := w.recog.CreatePersons(p.DbID, []string{p.UUID}, [][]api.FeatureQuality{features})
	if err != nil {
		return err
	}
	if res.Code != 0 {
		return fmt.Errorf("create_persons code %d: %s", res.Code, res.Msg)
	}
	return nil
}

// heartbeat snapshots the engines and queues a status message upstream.
func (w *Worker) heartbeat() {
	var payload StatusPayload

	sources, err := w.analysis.GetSources()
	if err != nil {
		log.Errorf("sync worker: heartbeat: %v", err)
	} else {
		for _, src := range sources.Sources {
			var cam = StatusCamera{UUID: src.ID}
			if info, err := w.analysis.GetSourceInfo(src.ID); err != nil {
				log.Errorf("sync worker: heartbeat: %v", err)
			} else {
				if info.URL != nil {
					cam.URL = *info.URL
				}
				if info.Config != nil {
					if info.Config.EnableFace {
						cam.CType |= cameraTypeFace
					}
					if info.Config.EnableVehicle {
						cam.CType |= cameraTypeVehicle
					}
				}
			}
			payload.Cameras = append(payload.Cameras, cam)
		}
	}

	dbs, err := w.recog.GetDbs()
	if err != nil {
		log.Errorf("sync worker: heartbeat: %v", err)
	} else {
		for _, id := range dbs.Dbs {
			var db = StatusDb{UUID: id}
			if info, err := w.recog.GetDbInfo(id); err != nil {
				log.Errorf("sync worker: heartbeat: %v", err)
			} else {
				if info.Volume != nil {
					db.Capacity = *info.Volume
				}
				if info.Usage != nil {
					db.Used = *info.Usage
				}
			}
			payload.Dbs = append(payload.Dbs, db)
		}
	}

	body, err := json.Marshal(&payload)
	if err != nil {
		log.Errorf("sync worker: heartbeat: encoding payload: %v", err)
		return
	}
	w.logOut.Push(syncapi.BoxLogMessage{
		HwID:    w.cfg.HwID,
		IPs:     strings.Join(hostid.LocalIPv4s(), ","),
		Type:    syncapi.LogTypeStatus,
		Level:   "info",
		Payload: string(body),
		TS:      timefmt.Now(),
	})
}

// resetFlags selects which side of the box state a reset command wipes.
type resetFlags struct {
	Db     bool `json:"db"`
	Camera bool `json:"camera"`
}

// parseResetFlags reads the command payload. A missing or malformed
// payload resets everything.
func parseResetFlags(msg *CommandMessage) resetFlags {
	if msg == nil || msg.Payload == "" {
		return resetFlags{Db: true, Camera: true}
	}
	var flags resetFlags
	if err := json.Unmarshal([]byte(msg.Payload), &flags); err != nil {
		log.Errorf("sync worker: parsing reset payload: %v", err)
		return resetFlags{Db: true, Camera: true}
	}
	return flags
}

// reset wipes the selected engine state and its cursors so the next sync
// rebuilds the box from scratch.
func (w *Worker) reset(ctx context.Context, flags resetFlags) {
	if flags.Db {
		if dbs, err := w.recog.GetDbs(); err != nil {
			log.Errorf("sync worker: reset: %v", err)
		} else {
			for _, id := range dbs.Dbs {
				if _, err := w.recog.DeleteDb(id); err != nil {
					log.Errorf("sync worker: reset: deleting db %s: %v", id, err)
				}
			}
		}
		w.cursors.SetDb(Cursor{})
		// Persons live inside the dbs that were just dropped.
		w.cursors.SetPerson(Cursor{})
	}

	if flags.Camera {
		if sources, err := w.analysis.GetSources(); err != nil {
			log.Errorf("sync worker: reset: %v", err)
		} else {
			for _, src := range sources.Sources {
				if _, err := w.analysis.DeleteSource(src.ID); err != nil {
					log.Errorf("sync worker: reset: deleting source %s: %v", src.ID, err)
				}
			}
		}
		w.cursors.SetCamera(Cursor{})
	}

	w.saveCursors()
	log.Warn("sync worker: reset done, resyncing")
	w.fullSync(ctx)
}

func rebootHost() error {
	return exec.Command("shutdown", "-r", "now").Run()
}
