package ingress

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Server serves /trackupload plus /metrics on one listener.
type Server struct {
	addr string
	srv  *http.Server
}

func NewServer(addr string, handler *Handler) *Server {
	var mux = http.NewServeMux()
	mux.Handle("/trackupload", handler)
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *Server) Name() string { return "web-server" }

func (s *Server) Run(ctx context.Context) {
	var errCh = make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		var shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.WithField("err", err).Warn("web server shutdown")
		}
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithFields(log.Fields{"addr": s.addr, "err": err}).Error("web server failed")
		}
	}
}
