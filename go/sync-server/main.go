// sync-server is the fleet side of the delta sync: it serves the db, camera
// and person delta endpoints the boxes poll, consumes the box status/log
// exchange into MySQL, and prunes aged logs.
package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	flags "github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/broker"
	"github.com/twmsh/fy-admin/go/mysqltz"
	"github.com/twmsh/fy-admin/go/service"
	"github.com/twmsh/fy-admin/go/syncserver"
)

type logConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

type mysqlConfig struct {
	URL string `json:"url"`
	TZ  string `json:"tz"`
}

type rabbitConfig struct {
	URL string          `json:"url"`
	Log broker.Endpoint `json:"log"`
}

type config struct {
	Log      logConfig              `json:"log"`
	Web      syncserver.WebConfig   `json:"web"`
	MySQL    mysqlConfig            `json:"mysql"`
	RabbitMQ rabbitConfig           `json:"rabbitmq"`
	Clean    syncserver.CleanConfig `json:"clean"`
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

	if cfg.Web.Addr == "" {
		return nil, fmt.Errorf("web.addr is required")
	}
	if cfg.MySQL.URL == "" {
		return nil, fmt.Errorf("mysql.url is required")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("rabbitmq.url is required")
	}
	if cfg.Web.Batch <= 0 {
		cfg.Web.Batch = 100
	}
	if cfg.Clean.TTLDay <= 0 {
		cfg.Clean.TTLDay = 30
	}
	if cfg.Clean.IntervalHour <= 0 {
		cfg.Clean.IntervalHour = 24
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

	var dao = syncserver.NewDao(db, serverTZ)

	ctx, cancel := service.SignalContext()
	defer cancel()

	var group = service.NewGroup(ctx)
	group.Start(
		syncserver.NewWeb(cfg.Web, dao),
		syncserver.NewLogConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Log, dao),
		syncserver.NewCleaner(cfg.Clean, dao))

	log.Info("sync-server started")
	group.Wait()
	log.Info("sync-server stopped")
}
