// box-agent runs on the capture box: it receives raw notify bursts from the
// analyzer engines, aggregates them into consolidated tracks, annotates face
// tracks with recognizer hits, and uploads everything to the warehouse.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/api"
	"github.com/twmsh/fy-admin/go/ingress"
	"github.com/twmsh/fy-admin/go/queue"
	"github.com/twmsh/fy-admin/go/search"
	"github.com/twmsh/fy-admin/go/service"
	"github.com/twmsh/fy-admin/go/tracker"
	"github.com/twmsh/fy-admin/go/uplink"
)

type logConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

type trackConfig struct {
	Count         int     `json:"count"`
	Quality       float64 `json:"quality"`
	Conf          float64 `json:"conf"`
	ReadyDelaySec int     `json:"ready_delay_sec"`
	CleanDelaySec int     `json:"clean_delay_sec"`
}

type searchConfig struct {
	URL         string `json:"url"`
	Workers     int    `json:"workers"`
	Top         int64  `json:"top"`
	Threshold   int64  `json:"threshold"`
	Skip        bool   `json:"skip"`
	CacheTTLMin int    `json:"cache_ttl_min"`
}

type config struct {
	Log  logConfig `json:"log"`
	HTTP struct {
		Addr string `json:"addr"`
	} `json:"http"`
	Face   trackConfig  `json:"face"`
	Car    trackConfig  `json:"car"`
	Search searchConfig `json:"search"`
	Uplink struct {
		URL string `json:"url"`
	} `json:"uplink"`
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
	if cfg.Uplink.URL == "" {
		return nil, fmt.Errorf("uplink.url is required")
	}
	if cfg.Search.Workers <= 0 {
		cfg.Search.Workers = 1
	}
	// A zero TTL would disable cache expiry and pin a stale db list.
	if cfg.Search.CacheTTLMin <= 0 {
		cfg.Search.CacheTTLMin = 5
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

func main() {
	var opts struct {
		Config string `short:"c" long:"config" description:"configuration file" default:"cfg.json"`
	}
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err = initLog(cfg.Log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := service.SignalContext()
	defer cancel()

	// Pipeline: ingress → aggregators → face search → uplink.
	var faceIn = queue.New[*tracker.FaceItem]()
	var carIn = queue.New[*tracker.CarItem]()
	var searchIn = queue.New[*tracker.FaceItem]()
	var outQ = queue.New[tracker.Output]()

	var faceAgg = tracker.NewFaceAggregator(tracker.FaceConfig{
		Count:      cfg.Face.Count,
		Quality:    cfg.Face.Quality,
		ReadyDelay: time.Duration(cfg.Face.ReadyDelaySec) * time.Second,
		CleanDelay: time.Duration(cfg.Face.CleanDelaySec) * time.Second,
	}, faceIn, func(it *tracker.FaceItem) { searchIn.Push(it) })

	var carAgg = tracker.NewCarAggregator(tracker.CarConfig{
		Count:      cfg.Car.Count,
		Conf:       cfg.Car.Conf,
		ReadyDelay: time.Duration(cfg.Car.ReadyDelaySec) * time.Second,
		CleanDelay: time.Duration(cfg.Car.CleanDelaySec) * time.Second,
	}, carIn, func(it *tracker.CarItem) { outQ.Push(tracker.Output{Car: it}) })

	var web = ingress.NewServer(cfg.HTTP.Addr, &ingress.Handler{
		FaceOut: faceIn.Push,
		CarOut:  carIn.Push,
	})

	var recog = api.NewRecognitionClient(cfg.Search.URL)
	var searchCfg = search.Config{
		Top:        cfg.Search.Top,
		Threshold:  cfg.Search.Threshold,
		SkipSearch: cfg.Search.Skip,
		CacheTTL:   time.Duration(cfg.Search.CacheTTLMin) * time.Minute,
	}

	var group = service.NewGroup(ctx)
	group.Start(web, faceAgg, carAgg, uplink.NewService(cfg.Uplink.URL, outQ))
	for i := 0; i < cfg.Search.Workers; i++ {
		group.Start(search.New(i, searchCfg, recog, searchIn, func(o tracker.Output) { outQ.Push(o) }))
	}

	log.Info("box-agent started")
	group.Wait()
	log.Info("box-agent stopped")
}
