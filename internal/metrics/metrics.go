package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ingestionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "osteria",
			Name:      "ingestion_runs_total",
			Help:      "Count of occupancy ingestion passes by outcome.",
		},
		[]string{"status"},
	)

	recordsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "osteria",
			Name:      "records_skipped_total",
			Help:      "Count of malformed records dropped during ingestion.",
		},
		[]string{"kind"},
	)

	reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "osteria",
			Name:      "reservations_total",
			Help:      "Count of reservation submissions by outcome.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "osteria",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(ingestionRuns, recordsSkipped, reservations, httpRequests)
	})
}

func IncIngestion(status string) {
	ingestionRuns.WithLabelValues(status).Inc()
}

func IncRecordSkipped(kind string) {
	recordsSkipped.WithLabelValues(kind).Inc()
}

func IncReservation(status string) {
	reservations.WithLabelValues(status).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
