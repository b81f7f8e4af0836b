package config

import (
	"net/http"

	monkithw "github.com/jtolds/monkit-hw/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"
	"gopkg.in/spacemonkeygo/monkit.v2/present"
)

// Gauges are the handful of cluster-standard prometheus metrics a
// worker exposes on /metrics alongside monkit's own function-level
// snapshot on /mon/: outstanding buffer count and worker-pool queue
// depth, the two numbers an operator dashboard actually wants polled on
// a fixed interval rather than read off monkit's richer but
// call-graph-shaped output.
type Gauges struct {
	OutstandingBuffers prometheus.Gauge
	QueueDepth         prometheus.Gauge
}

// NewGauges registers a fresh Gauges set with reg (prometheus.DefaultRegisterer
// if reg is nil).
func NewGauges(reg prometheus.Registerer) *Gauges {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	g := &Gauges{
		OutstandingBuffers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgeflow_outstanding_buffers",
			Help: "Tuple buffers currently acquired from the pool and not yet released.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgeflow_worker_queue_depth",
			Help: "Tasks currently queued for a worker pool's threads.",
		}),
	}
	reg.MustRegister(g.OutstandingBuffers, g.QueueDepth)
	return g
}

// ServeMetrics starts the worker's scrape endpoints per MetricsConfig:
// /metrics (prometheus, cluster-standard polling) and, when enabled,
// /mon/ (monkit's own function-level call counts, durations and
// gauges — the runtime's ambient instrumentation). It
// never blocks: the listener runs on its own goroutine and any bind/
// serve error is delivered on the returned channel.
func ServeMetrics(cfg MetricsConfig) (*http.Server, <-chan error) {
	if cfg.EnableHWGauge {
		monkithw.Register(monkit.Default)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if cfg.EnableMonkit {
		mux.HandleFunc("/mon/", present.HTTP(monkit.Default))
	}

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	return srv, errCh
}
