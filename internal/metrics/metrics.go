// Package metrics holds the process-wide Prometheus collectors. Exposed by
// the api handler under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthDecisions counts verifier outcomes, labelled granted or denied.
	// Every denial path increments the same series; the label set must not
	// leak why a request was denied.
	AuthDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linkstash",
		Name:      "auth_decisions_total",
		Help:      "Request signature verification outcomes.",
	}, []string{"outcome"})

	// Logins counts password exchanges, labelled ok, denied or throttled.
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linkstash",
		Name:      "logins_total",
		Help:      "Password login attempts.",
	}, []string{"outcome"})

	// Requests counts served HTTP requests by method.
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linkstash",
		Name:      "http_requests_total",
		Help:      "Requests served, by method.",
	}, []string{"method"})
)
