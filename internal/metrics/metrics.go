package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kumastream_active_streams",
		Help: "Number of transcode streams currently being served",
	})
)

// Counters
var (
	StreamsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kumastream_streams_opened_total",
		Help: "Total transcode streams opened",
	})
	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kumastream_cache_hits_total",
		Help: "Requests served from a promoted artifact",
	})
	BytesServedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kumastream_bytes_served_total",
		Help: "Total audio bytes written to clients",
	})
	SinkOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kumastream_sink_outcomes_total",
		Help: "Persistence sink results by outcome",
	}, []string{"outcome"})
	SourceUnavailableTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kumastream_source_unavailable_total",
		Help: "Requests whose source could not be opened",
	})
)

// Histograms
var (
	FirstByteSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kumastream_first_byte_seconds",
		Help:    "Time from request to the first encoded chunk",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)
