// Package service runs the long-lived loops of a process and ties their
// lifetimes to a shared shutdown signal.
package service

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// A Service is a long-running loop. Run must return promptly once ctx is
// cancelled.
type Service interface {
	Name() string
	Run(ctx context.Context)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Group starts services and waits for all of them to exit.
type Group struct {
	ctx context.Context
	wg  sync.WaitGroup
}

func NewGroup(ctx context.Context) *Group {
	return &Group{ctx: ctx}
}

func (g *Group) Start(services ...Service) {
	for _, s := range services {
		s := s
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			log.WithField("service", s.Name()).Info("service started")
			s.Run(g.ctx)
			log.WithField("service", s.Name()).Info("service exited")
		}()
	}
}

// Wait blocks until every started service has returned.
func (g *Group) Wait() { g.wg.Wait() }

// Func adapts a bare function into a Service.
type Func struct {
	ServiceName string
	Fn          func(ctx context.Context)
}

func (f Func) Name() string            { return f.ServiceName }
func (f Func) Run(ctx context.Context) { f.Fn(ctx) }
