package syncclient

import (
	"context"
	"time"

	"github.com/twmsh/fy-admin/go/queue"
)

// TimerService feeds the worker its periodic work: delta syncs and
// heartbeats.
type TimerService struct {
	syncInterval      time.Duration
	heartbeatInterval time.Duration

	tasks *queue.Queue[TaskItem]
}

func NewTimerService(syncInterval, heartbeatInterval time.Duration, tasks *queue.Queue[TaskItem]) *TimerService {
	return &TimerService{
		syncInterval:      syncInterval,
		heartbeatInterval: heartbeatInterval,
		tasks:             tasks,
	}
}

func (s *TimerService) Name() string { return "sync-timer" }

func (s *TimerService) Run(ctx context.Context) {
	var syncTicker = time.NewTicker(s.syncInterval)
	defer syncTicker.Stop()
	var hbTicker = time.NewTicker(s.heartbeatInterval)
	defer hbTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-syncTicker.C:
			s.tasks.Push(TaskItem{Kind: TaskSyncTimer})
		case <-hbTicker.C:
			s.tasks.Push(TaskItem{Kind: TaskHeartBeat})
		}
	}
}
