package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_sessions_active",
		Help: "Currently open recording sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_sessions_total",
		Help: "Total recording sessions accepted",
	})

	PacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_packets_total",
		Help: "Sensor packets received by type",
	}, []string{"type"})

	SegmentsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "segments_dispatched_total",
		Help: "Ready segments handed to a segment task",
	})

	SegmentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segment_outcomes_total",
		Help: "Segment task outcomes (result, error, dropped)",
	}, []string{"outcome"})

	TasksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "segment_tasks_rejected_total",
		Help: "Segments rejected because the per-session task cap was reached",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Per-stage analysis latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"stage"})

	SegmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_segment_duration_seconds",
		Help:    "End-to-end latency per segment from dispatch to delivered result",
		Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
	})

	CaptureFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_failures_total",
		Help: "Debug artifact writes that failed, by artifact kind",
	}, []string{"artifact"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})
)
