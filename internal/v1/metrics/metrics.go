package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the watch-party hub.
//
// Naming convention: namespace_subsystem_name
// - namespace: watchparty (application-level grouping)
// - subsystem: websocket, room, relay, mirror (feature-level grouping)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, participants)
// - Counter: Cumulative events (frames relayed, frames dropped, terminations)

var (
	// ActiveConnections tracks the current number of live WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "watchparty",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of rooms in the registry.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "watchparty",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomMembers tracks the number of live connections attached to each room.
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "watchparty",
		Subsystem: "room",
		Name:      "members_count",
		Help:      "Number of member connections in each room",
	}, []string{"room_id"})

	// RelayedFrames counts frames fanned out to room members, by inbound type.
	RelayedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchparty",
		Subsystem: "relay",
		Name:      "frames_total",
		Help:      "Total frames relayed to room members",
	}, []string{"type"})

	// DroppedFrames counts frames dropped by the router, by reason.
	// Reasons: malformed, policy, unknown_type, missing_field.
	DroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchparty",
		Subsystem: "relay",
		Name:      "frames_dropped_total",
		Help:      "Total inbound frames dropped without fan-out",
	}, []string{"reason"})

	// LivenessTerminations counts force-closed connections, by cause.
	// Causes: pong_timeout, activity_timeout.
	LivenessTerminations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchparty",
		Subsystem: "websocket",
		Name:      "liveness_terminations_total",
		Help:      "Connections force-closed by the heartbeat monitor",
	}, []string{"cause"})

	// RoomsDeleted counts rooms removed after the empty-grace window elapsed.
	RoomsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watchparty",
		Subsystem: "room",
		Name:      "deleted_total",
		Help:      "Rooms deleted after the empty-grace period",
	})

	// CircuitBreakerState reports the mirror breaker state (0=closed, 1=open, 2=half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "watchparty",
		Subsystem: "mirror",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"backend"})

	// CircuitBreakerFailures counts operations rejected by an open breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchparty",
		Subsystem: "mirror",
		Name:      "circuit_breaker_failures_total",
		Help:      "Operations rejected by an open circuit breaker",
	}, []string{"backend"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
