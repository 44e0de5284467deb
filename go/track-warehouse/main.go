// track-warehouse receives consolidated tracks uploaded by the box agents,
// stores their imagery in MinIO, records each track in MySQL and fans the
// record out to RabbitMQ.
package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	flags "github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/ingress"
	"github.com/twmsh/fy-admin/go/mysqltz"
	"github.com/twmsh/fy-admin/go/queue"
	"github.com/twmsh/fy-admin/go/service"
	"github.com/twmsh/fy-admin/go/store"
	"github.com/twmsh/fy-admin/go/tracker"
	"github.com/twmsh/fy-admin/go/warehouse"
)

type logConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

type minioConfig struct {
	Endpoint   string `json:"endpoint"`
	AccessKey  string `json:"access_key"`
	SecretKey  string `json:"secret_key"`
	URLPrefix  string `json:"url_prefix"`
	FaceBucket string `json:"face_bucket"`
	CarBucket  string `json:"car_bucket"`
}

type mysqlConfig struct {
	URL string `json:"url"`
	TZ  string `json:"tz"`
}

type config struct {
	Log  logConfig `json:"log"`
	HTTP struct {
		Addr string `json:"addr"`
	} `json:"http"`
	Minio    minioConfig             `json:"minio"`
	MySQL    mysqlConfig             `json:"mysql"`
	RabbitMQ warehouse.PublishConfig `json:"rabbitmq"`
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

	if cfg.HTTP.Addr == "" {
		return nil, fmt.Errorf("http.addr is required")
	}
	if cfg.Minio.Endpoint == "" {
		return nil, fmt.Errorf("minio.endpoint is required")
	}
	if cfg.MySQL.URL == "" {
		return nil, fmt.Errorf("mysql.url is required")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("rabbitmq.url is required")
	}
	if cfg.Minio.FaceBucket == "" {
		cfg.Minio.FaceBucket = "facetrack"
	}
	if cfg.Minio.CarBucket == "" {
		cfg.Minio.CarBucket = "cartrack"
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

	serverTZ, err := mysqltz.Parse(cfg.MySQL.TZ)
	if err != nil {
		fatal(err)
	}
	db, err := sql.Open("mysql", cfg.MySQL.URL)
	if err != nil {
		fatal(fmt.Errorf("opening mysql: %w", err))
	}
	defer db.Close()

	faceBucket, err := store.NewBucket(cfg.Minio.Endpoint, cfg.Minio.AccessKey,
		cfg.Minio.SecretKey, cfg.Minio.FaceBucket, cfg.Minio.URLPrefix)
	if err != nil {
		fatal(err)
	}
	carBucket, err := store.NewBucket(cfg.Minio.Endpoint, cfg.Minio.AccessKey,
		cfg.Minio.SecretKey, cfg.Minio.CarBucket, cfg.Minio.URLPrefix)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := service.SignalContext()
	defer cancel()

	// Pipeline: ingress → object store → mysql → rabbitmq.
	var faceRaw = queue.New[*tracker.FaceItem]()
	var carRaw = queue.New[*tracker.CarItem]()
	var faceStored = queue.New[*tracker.FaceItem]()
	var carStored = queue.New[*tracker.CarItem]()
	var facePub = queue.New[*tracker.FaceItem]()
	var carPub = queue.New[*tracker.CarItem]()

	var web = ingress.NewServer(cfg.HTTP.Addr, &ingress.Handler{
		FaceOut: faceRaw.Push,
		CarOut:  carRaw.Push,
	})

	var group = service.NewGroup(ctx)
	group.Start(web,
		warehouse.NewObjectService(faceRaw, carRaw, faceStored, carStored, faceBucket, carBucket),
		warehouse.NewPersistService(warehouse.NewDao(db, serverTZ), faceStored, carStored, facePub, carPub),
		warehouse.NewPublishService(cfg.RabbitMQ, facePub, carPub))

	log.Info("track-warehouse started")
	group.Wait()
	log.Info("track-warehouse stopped")
}
