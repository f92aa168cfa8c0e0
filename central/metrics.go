package central

import "github.com/prometheus/client_golang/prometheus"

var (
	handledRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "centralapi",
		Subsystem: "central",
		Name:      "handled_requests_total",
		Help:      "Store operations handled, by operation and result code.",
	}, []string{"operation", "result"})
	broadcasts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "centralapi",
		Subsystem: "central",
		Name:      "broadcasts_total",
		Help:      "Mutations relayed to other edges, by operation.",
	}, []string{"operation"})
	connectedEdges = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "centralapi",
		Subsystem: "central",
		Name:      "connected_edges",
		Help:      "Edges currently connected.",
	})
)

func init() {
	prometheus.MustRegister(handledRequests, broadcasts, connectedEdges)
}
