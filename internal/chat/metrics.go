package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_sessions",
		Help: "Number of currently open client connections",
	})

	RegisteredSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_registered_sessions",
		Help: "Number of sessions holding a nickname",
	})

	Rooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_rooms",
		Help: "Number of rooms in the registry",
	})

	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_commands_total",
		Help: "Total commands processed by type",
	}, []string{"command"})

	CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_command_duration_seconds",
		Help:    "Time to process each command type, including fan-out",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	BroadcastDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_broadcast_deliveries_total",
		Help: "Per-recipient broadcast writes by result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(ConnectedSessions)
	prometheus.MustRegister(RegisteredSessions)
	prometheus.MustRegister(Rooms)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(BroadcastDeliveries)
}
