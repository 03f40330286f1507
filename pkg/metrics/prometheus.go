package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineMoves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffportal_pipeline_moves_total",
			Help: "Total number of successful card moves by target stage",
		},
		[]string{"silo", "to_stage"},
	)

	PipelineMoveFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffportal_pipeline_move_failures_total",
			Help: "Total number of rejected or failed card moves by reason",
		},
		[]string{"reason"},
	)

	PipelineMoveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "staffportal_pipeline_move_duration_seconds",
			Help:    "Duration of the move workflow including side effects",
			Buckets: prometheus.DefBuckets,
		},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffportal_notifications_created_total",
			Help: "Total number of notifications created by audience",
		},
		[]string{"audience", "type"},
	)

	LiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "staffportal_live_connections",
			Help: "Open live-update connections by silo",
		},
		[]string{"silo"},
	)

	LiveMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffportal_live_messages_total",
			Help: "Live-update messages by type and outcome",
		},
		[]string{"type", "result"},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffportal_outbox_events_total",
			Help: "Outbox events relayed by outcome",
		},
		[]string{"result"},
	)
)
