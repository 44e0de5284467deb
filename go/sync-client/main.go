// sync-client runs on the capture box next to box-agent: it pulls camera, db
// and person deltas from the fleet server, applies them to the local analyzer
// and recognizer engines, reports status over RabbitMQ and executes commands
// pushed from the server.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/api"
	"github.com/twmsh/fy-admin/go/hostid"
	"github.com/twmsh/fy-admin/go/queue"
	"github.com/twmsh/fy-admin/go/service"
	"github.com/twmsh/fy-admin/go/syncapi"
	"github.com/twmsh/fy-admin/go/syncclient"
)

type logConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

type syncConfig struct {
	DbURL     string `json:"db_url"`
	CameraURL string `json:"camera_url"`
	PersonURL string `json:"person_url"`
	NotifyURL string `json:"notify_url"`

	SyncIntervalSec      int    `json:"sync_interval_sec"`
	HeartbeatIntervalSec int    `json:"heartbeat_interval_sec"`
	SyncLog              string `json:"sync_log"`
}

type engineConfig struct {
	AnalysisURL    string `json:"analysis_url"`
	RecognitionURL string `json:"recognition_url"`
}

type config struct {
	Log logConfig `json:"log"`

	// HwID overrides the serial read from the factory config; normally
	// empty in production.
	HwID string `json:"hw_id"`

	Sync     syncConfig              `json:"sync"`
	Engines  engineConfig            `json:"engines"`
	RabbitMQ syncclient.RabbitConfig `json:"rabbitmq"`
}

func loadConfig(path string) (*config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg config
	if err = json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if cfg.Sync.DbURL == "" || cfg.Sync.CameraURL == "" || cfg.Sync.PersonURL == "" {
		return nil, fmt.Errorf("sync.db_url, sync.camera_url, sync.person_url are required")
	}
	if cfg.Engines.AnalysisURL == "" || cfg.Engines.RecognitionURL == "" {
		return nil, fmt.Errorf("engines.analysis_url, engines.recognition_url are required")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("rabbitmq.url is required")
	}
	if cfg.Sync.SyncIntervalSec <= 0 {
		cfg.Sync.SyncIntervalSec = 60
	}
	if cfg.Sync.HeartbeatIntervalSec <= 0 {
		cfg.Sync.HeartbeatIntervalSec = 60
	}
	if cfg.Sync.SyncLog == "" {
		cfg.Sync.SyncLog = "sync_log.json"
	}
	return &cfg, nil
}

func initLog(cfg logConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		log.SetOutput(f)
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func main() {
	var opts struct {
		Config string `short:"c" long:"config" description:"configuration file" default:"cfg.json"`
	}
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		fatal(err)
	}
	if err = initLog(cfg.Log); err != nil {
		fatal(err)
	}

	hwID, err := hostid.DeviceSN(cfg.HwID)
	if err != nil {
		fatal(fmt.Errorf("resolving device serial: %w", err))
	}
	log.WithField("hw_id", hwID).Info("sync-client identity")

	cursors, err := syncclient.LoadCursorStore(cfg.Sync.SyncLog, hwID)
	if err != nil {
		fatal(err)
	}

	var tasks = queue.New[syncclient.TaskItem]()
	var logOut = queue.New[syncapi.BoxLogMessage]()

	var worker = syncclient.NewWorker(syncclient.WorkerConfig{
		HwID:      hwID,
		DbURL:     cfg.Sync.DbURL,
		CameraURL: cfg.Sync.CameraURL,
		PersonURL: cfg.Sync.PersonURL,
		NotifyURL: cfg.Sync.NotifyURL,
	}, cursors,
		api.NewAnalysisClient(cfg.Engines.AnalysisURL),
		api.NewRecognitionClient(cfg.Engines.RecognitionURL),
		tasks, logOut)

	var timer = syncclient.NewTimerService(
		time.Duration(cfg.Sync.SyncIntervalSec)*time.Second,
		time.Duration(cfg.Sync.HeartbeatIntervalSec)*time.Second,
		tasks)

	var rabbit = syncclient.NewRabbitService(cfg.RabbitMQ, hwID, tasks, logOut)

	ctx, cancel := service.SignalContext()
	defer cancel()

	var group = service.NewGroup(ctx)
	group.Start(worker, timer, rabbit)

	// Catch up immediately instead of waiting for the first tick.
	tasks.Push(syncclient.TaskItem{Kind: syncclient.TaskSyncTimer})

	log.Info("sync-client started")
	group.Wait()
	log.Info("sync-client stopped")
}
