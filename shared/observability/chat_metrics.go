package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat hub metrics, exported on /metrics
var (
	// ActiveConnections tracks currently joined room members
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_active_connections",
		Help: "Number of currently connected chat participants",
	})

	// BroadcastEvents counts room-wide event deliveries by event name
	BroadcastEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_broadcast_events_total",
		Help: "Total events published to the room broadcast channel",
	}, []string{"event"})

	// StreamChunks counts incremental AI reply deltas broadcast to the room
	StreamChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_ai_stream_chunks_total",
		Help: "Total AI stream chunks broadcast to the room",
	})

	// StreamErrors counts per-persona stream failures by error code
	StreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ai_stream_errors_total",
		Help: "Total AI stream errors delivered to requesters",
	}, []string{"code"})
)
