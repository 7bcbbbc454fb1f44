package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Pod-coordination specific metrics, registered once per process.
var (
	PodsReporting = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kontrol",
		Subsystem: "sequence",
		Name:      "pods_reporting",
		Help:      "Number of distinct pod keys currently tracked by the sequence actor.",
	})

	KeepaliveEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kontrol",
			Subsystem: "keepalive",
			Name:      "emitted_total",
			Help:      "Total number of keepalive PUTs emitted, by master and outcome.",
		},
		[]string{"master", "outcome"},
	)

	LockObtainedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kontrol",
		Subsystem: "leader",
		Name:      "lock_obtained_total",
		Help:      "Total number of times this process has won the leader lock.",
	})

	DigestChangedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kontrol",
		Subsystem: "leader",
		Name:      "digest_changed_total",
		Help:      "Total number of membership digest changes observed while leading.",
	})

	CallbackRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kontrol",
			Subsystem: "callback",
			Name:      "runs_total",
			Help:      "Total number of callback subprocess executions, by outcome.",
		},
		[]string{"outcome"},
	)

	CallbackDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kontrol",
		Subsystem: "callback",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of callback subprocess executions.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	AutomatonTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kontrol",
			Subsystem: "automaton",
			Name:      "transitions_total",
			Help:      "Total number of admitted/rejected automaton transitions.",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kontrol",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// All returns every kontrol metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		PodsReporting,
		KeepaliveEmittedTotal,
		LockObtainedTotal,
		DigestChangedTotal,
		CallbackRunsTotal,
		CallbackDuration,
		AutomatonTransitionsTotal,
		HTTPRequestDuration,
	}
}

// NewRegistry creates a Prometheus registry with the given collectors registered.
func NewRegistry(collectors ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range collectors {
		reg.MustRegister(c)
	}
	return reg
}
