package ws

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gatewayUpgradeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gateway",
		Name:      "upgrade_seconds",
		Help:      "Latency spent authenticating and upgrading HTTP connections to WebSockets.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	gatewayConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "connections",
		Help:      "Active WebSocket connections.",
	})

	gatewayOnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "online_users",
		Help:      "Users with at least one active connection.",
	})

	broadcastEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "broadcast_events_total",
		Help:      "Room broadcasts delivered locally, by event name.",
	}, []string{"event"})

	once sync.Once
)

func init() {
	once.Do(func() {
		prometheus.MustRegister(gatewayUpgradeLatency, gatewayConnections, gatewayOnlineUsers, broadcastEvents)
	})
}
