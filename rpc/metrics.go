package rpc

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "centralapi",
		Subsystem: "rpc",
		Name:      "requests_received_total",
		Help:      "Inbound requests by operation and outcome.",
	}, []string{"operation", "outcome"})
	requestsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "centralapi",
		Subsystem: "rpc",
		Name:      "requests_sent_total",
		Help:      "Outbound requests by operation.",
	}, []string{"operation"})
	correlationsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "centralapi",
		Subsystem: "rpc",
		Name:      "correlations_dropped_total",
		Help:      "Pending correlations removed without a reply.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(requestsReceived, requestsSent, correlationsDropped)
}
