package allreduce

import "github.com/prometheus/client_golang/prometheus"

var (
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dda_allreduce_calls_total",
			Help: "All-reduce calls by algorithm and outcome.",
		},
		[]string{"algo", "result"},
	)
	bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dda_allreduce_bytes_total",
			Help: "Bytes contributed by enqueued all-reduce calls.",
		},
		[]string{"algo"},
	)
	unitsPerLaunch = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dda_allreduce_units",
			Help:    "Execution units per all-reduce launch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 9),
		},
		[]string{"algo"},
	)
)

func init() {
	prometheus.MustRegister(callsTotal, bytesTotal, unitsPerLaunch)
}

func observeCall(algo Algo, err error, bytes int, geom Geometry) {
	callsTotal.WithLabelValues(algo.String(), resultLabel(err)).Inc()
	if err == nil {
		bytesTotal.WithLabelValues(algo.String()).Add(float64(bytes))
		unitsPerLaunch.WithLabelValues(algo.String()).Observe(float64(geom.Units))
	}
}
