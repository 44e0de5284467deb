package syncserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/syncapi"
	"github.com/twmsh/fy-admin/go/timefmt"
)

var syncRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sync_requests_total",
	Help: "Delta sync requests served, by stream and result.",
}, []string{"stream", "result"})

// WebConfig configures the delta HTTP server.
type WebConfig struct {
	Addr string `json:"addr"`
	// Batch is the page size L of every delta endpoint.
	Batch int `json:"batch"`
}

// Web serves the three delta-sync endpoints the boxes poll.
type Web struct {
	cfg   WebConfig
	store Store
	srv   *http.Server
}

func NewWeb(cfg WebConfig, store Store) *Web {
	var w = &Web{cfg: cfg, store: store}

	var mux = http.NewServeMux()
	mux.HandleFunc("/db_sync", w.handleDbSync)
	mux.HandleFunc("/camera_sync", w.handleCameraSync)
	mux.HandleFunc("/person_sync", w.handlePersonSync)
	mux.Handle("/metrics", promhttp.Handler())
	w.srv = &http.Server{Addr: cfg.Addr, Handler: mux}
	return w
}

func (w *Web) Name() string { return "sync-web" }

func (w *Web) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", w.cfg.Addr).Info("sync web listening")
	if err := w.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("sync web: %v", err)
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Errorf("sync web: encoding response: %v", err)
	}
}

// syncParams validates the shared hw_id/last_update query parameters.
// hw_id is also accepted as device_id for older clients.
func syncParams(r *http.Request) (hwID string, since time.Time, err error) {
	hwID = r.URL.Query().Get("hw_id")
	if hwID == "" {
		hwID = r.URL.Query().Get("device_id")
	}
	if hwID == "" {
		return "", time.Time{}, fmt.Errorf("invalid hw_id")
	}

	parsed, err := timefmt.Parse(r.URL.Query().Get("last_update"))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid last_update")
	}
	return hwID, parsed.Time, nil
}

// checkBox verifies the device. It returns (box, handled): when handled is
// true an error or empty response has already been written.
func checkBox[T any](rw http.ResponseWriter, r *http.Request, store Store, stream, hwID string) (*BoxRow, bool) {
	box, err := store.FindBox(r.Context(), hwID)
	if err != nil {
		log.Errorf("sync web: %v", err)
		syncRequestsTotal.WithLabelValues(stream, "error").Inc()
		writeJSON(rw, syncapi.Fail[T](syncapi.StatusError, err.Error()))
		return nil, true
	}
	if box == nil {
		syncRequestsTotal.WithLabelValues(stream, "unknown_device").Inc()
		writeJSON(rw, syncapi.Fail[T](syncapi.StatusBizErr, fmt.Sprintf("box:%s not found", hwID)))
		return nil, true
	}
	return box, false
}

func (w *Web) handleDbSync(rw http.ResponseWriter, r *http.Request) {
	hwID, since, err := syncParams(r)
	if err != nil {
		syncRequestsTotal.WithLabelValues("db", "bad_request").Inc()
		writeJSON(rw, syncapi.Fail[syncapi.Db](syncapi.StatusInvalidPara, err.Error()))
		return
	}

	box, handled := checkBox[syncapi.Db](rw, r, w.store, "db", hwID)
	if handled {
		return
	}
	if box.SyncFlag == 0 || box.HasDb == 0 {
		syncRequestsTotal.WithLabelValues("db", "ok").Inc()
		writeJSON(rw, syncapi.OK[syncapi.Db](nil))
		return
	}

	live, deleted, err := w.store.DbDeltas(r.Context(), since, w.cfg.Batch)
	if err != nil {
		log.Errorf("sync web: %v", err)
		syncRequestsTotal.WithLabelValues("db", "error").Inc()
		writeJSON(rw, syncapi.Fail[syncapi.Db](syncapi.StatusError, err.Error()))
		return
	}
	syncRequestsTotal.WithLabelValues("db", "ok").Inc()
	writeJSON(rw, syncapi.OK(dbDeltas(live, deleted, w.cfg.Batch)))
}

func (w *Web) handleCameraSync(rw http.ResponseWriter, r *http.Request) {
	hwID, since, err := syncParams(r)
	if err != nil {
		syncRequestsTotal.WithLabelValues("camera", "bad_request").Inc()
		writeJSON(rw, syncapi.Fail[syncapi.Camera](syncapi.StatusInvalidPara, err.Error()))
		return
	}

	box, handled := checkBox[syncapi.Camera](rw, r, w.store, "camera", hwID)
	if handled {
		return
	}
	if box.SyncFlag == 0 || box.HasCamera == 0 {
		syncRequestsTotal.WithLabelValues("camera", "ok").Inc()
		writeJSON(rw, syncapi.OK[syncapi.Camera](nil))
		return
	}

	live, deleted, err := w.store.CameraDeltas(r.Context(), hwID, since, w.cfg.Batch)
	if err != nil {
		log.Errorf("sync web: %v", err)
		syncRequestsTotal.WithLabelValues("camera", "error").Inc()
		writeJSON(rw, syncapi.Fail[syncapi.Camera](syncapi.StatusError, err.Error()))
		return
	}
	syncRequestsTotal.WithLabelValues("camera", "ok").Inc()
	writeJSON(rw, syncapi.OK(cameraDeltas(live, deleted, w.cfg.Batch)))
}

func (w *Web) handlePersonSync(rw http.ResponseWriter, r *http.Request) {
	hwID, since, err := syncParams(r)
	if err != nil {
		syncRequestsTotal.WithLabelValues("person", "bad_request").Inc()
		writeJSON(rw, syncapi.Fail[syncapi.Person](syncapi.StatusInvalidPara, err.Error()))
		return
	}

	box, handled := checkBox[syncapi.Person](rw, r, w.store, "person", hwID)
	if handled {
		return
	}
	if box.SyncFlag == 0 || box.HasDb == 0 {
		syncRequestsTotal.WithLabelValues("person", "ok").Inc()
		writeJSON(rw, syncapi.OK[syncapi.Person](nil))
		return
	}

	live, deleted, err := w.store.PersonDeltas(r.Context(), since, w.cfg.Batch)
	if err != nil {
		log.Errorf("sync web: %v", err)
		syncRequestsTotal.WithLabelValues("person", "error").Inc()
		writeJSON(rw, syncapi.Fail[syncapi.Person](syncapi.StatusError, err.Error()))
		return
	}
	syncRequestsTotal.WithLabelValues("person", "ok").Inc()
	writeJSON(rw, syncapi.OK(personDeltas(live, deleted, w.cfg.Batch)))
}
