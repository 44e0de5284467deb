package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var tracksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "track_notify_received_total",
	Help: "Notify bursts received from the analyzer, by track kind.",
}, []string{"kind"})

var tracksForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "track_forwarded_total",
	Help: "Consolidated tracks forwarded downstream, by track kind.",
}, []string{"kind"})
