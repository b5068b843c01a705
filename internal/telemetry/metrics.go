package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Gauges reports the live sizes of the coordination core. Each field is
// sampled on scrape.
type Gauges struct {
	QueueLength      func() int
	ActiveSessions   func() int
	ConnectedClients func() int
}

func RegisterGauges(g Gauges) {
	register := func(name, help string, f func() int) {
		prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "quizduel",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(f())
		}))
	}

	register("queue_length", "Players waiting for a match.", g.QueueLength)
	register("active_sessions", "Sessions currently playing or in signaling.", g.ActiveSessions)
	register("connected_clients", "Open websocket connections.", g.ConnectedClients)
}
