// Package metrics serves point-in-time gauges of the scheduler stream in the
// prometheus text format.  They are read from redis on every scrape.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// StreamStats reads the size of a consumer group stream.
type StreamStats interface {
	Len(ctx context.Context, stream string) (int64, error)
	Pending(ctx context.Context, stream, group string) (int64, error)
}

// Opts holds the configuration options for the metrics API
type Opts struct {
	AuthMiddleware func(http.Handler) http.Handler
	Streams        StreamStats
	Stream         string
	Group          string
}

// MetricsAPI serves the scheduler stream gauges.
type MetricsAPI struct {
	opts         Opts
	Router       chi.Router
	depthGauge   prometheus.Gauge
	pendingGauge prometheus.Gauge
	registry     *prometheus.Registry
}

func NewMetricsAPI(opts Opts) (*MetricsAPI, error) {
	if opts.Streams == nil {
		return nil, fmt.Errorf("stream stats are required")
	}

	registry := prometheus.NewRegistry()

	depthGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "paysync_scheduler_stream_depth",
		Help:        "Batches on the scheduler stream, including those being processed",
		ConstLabels: prometheus.Labels{"stream": opts.Stream},
	})
	pendingGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "paysync_scheduler_stream_pending",
		Help:        "Batches delivered to a consumer and not yet acknowledged",
		ConstLabels: prometheus.Labels{"stream": opts.Stream, "group": opts.Group},
	})
	registry.MustRegister(depthGauge, pendingGauge)

	api := &MetricsAPI{
		opts:         opts,
		Router:       chi.NewRouter(),
		depthGauge:   depthGauge,
		pendingGauge: pendingGauge,
		registry:     registry,
	}

	api.setupRoutes()
	return api, nil
}

func (api *MetricsAPI) setupRoutes() {
	handler := http.HandlerFunc(api.handleMetrics)

	if api.opts.AuthMiddleware != nil {
		handler = api.opts.AuthMiddleware(handler).ServeHTTP
	}

	api.Router.Get("/", handler)
}

func (api *MetricsAPI) handleMetrics(w http.ResponseWriter, r *http.Request) {
	depth, err := api.opts.Streams.Len(r.Context(), api.opts.Stream)
	if err != nil {
		http.Error(w, "Failed to get stream depth", http.StatusInternalServerError)
		return
	}
	pending, err := api.opts.Streams.Pending(r.Context(), api.opts.Stream, api.opts.Group)
	if err != nil {
		http.Error(w, "Failed to get pending batches", http.StatusInternalServerError)
		return
	}

	api.depthGauge.Set(float64(depth))
	api.pendingGauge.Set(float64(pending))

	metricFamilies, err := api.registry.Gather()
	if err != nil {
		http.Error(w, "Failed to gather metrics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", string(expfmt.FmtText))

	encoder := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			http.Error(w, "Failed to encode metrics", http.StatusInternalServerError)
			return
		}
	}
}
