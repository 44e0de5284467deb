package syncserver

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// CleanStore deletes aged box logs.
type CleanStore interface {
	CleanBoxLog(ctx context.Context, before time.Time) (int64, error)
}

// CleanConfig: logs older than TTLDay days are pruned every IntervalHour
// hours.
type CleanConfig struct {
	TTLDay       int `json:"ttl_day"`
	IntervalHour int `json:"interval_hour"`
}

// Cleaner periodically prunes the box log table.
type Cleaner struct {
	cfg   CleanConfig
	store CleanStore
}

func NewCleaner(cfg CleanConfig, store CleanStore) *Cleaner {
	return &Cleaner{cfg: cfg, store: store}
}

func (c *Cleaner) Name() string { return "boxlog-cleaner" }

func (c *Cleaner) Run(ctx context.Context) {
	var ticker = time.NewTicker(time.Duration(c.cfg.IntervalHour) * time.Hour)
	defer ticker.Stop()

	c.clean(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.clean(ctx)
		}
	}
}

func (c *Cleaner) clean(ctx context.Context) {
	var before = time.Now().AddDate(0, 0, -c.cfg.TTLDay)
	n, err := c.store.CleanBoxLog(ctx, before)
	if err != nil {
		log.Errorf("boxlog cleaner: %v", err)
		return
	}
	log.WithFields(log.Fields{
		"deleted": n,
		"before":  before.Format("2006-01-02 15:04:05"),
	}).Info("boxlog cleaned")
}
