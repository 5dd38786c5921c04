// Package observability registers the service-wide Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "health_data_service"

var (
	ingestRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "requests_total",
		Help:      "Ingestion requests by provider and outcome status.",
	}, []string{"provider", "status"})

	recordsStored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "records_total",
		Help:      "Canonical record writes by schema type and outcome.",
	}, []string{"schema_type", "outcome"})

	storeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Latency of record store operations.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"op", "outcome"})

	queryResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "query",
		Name:      "records_returned_total",
		Help:      "Records returned by read queries, labeled by endpoint.",
	}, []string{"endpoint"})

	recordPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "last_record_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent canonical record persisted.",
	})
)

func init() {
	prometheus.MustRegister(ingestRequests, recordsStored, storeDuration, queryResults, recordPersistGauge)
}

// RecordIngest counts one ingestion request.
func RecordIngest(provider, status string) {
	ingestRequests.WithLabelValues(provider, status).Inc()
}

// RecordWrite counts one schema write attempt.
func RecordWrite(schemaType string, err error) {
	recordsStored.WithLabelValues(schemaType, outcome(err)).Inc()
}

// ObserveStoreOperation records the latency of op since start.
func ObserveStoreOperation(op string, start time.Time, err error) {
	storeDuration.WithLabelValues(op, outcome(err)).Observe(time.Since(start).Seconds())
}

// RecordQueryResults counts records returned by endpoint.
func RecordQueryResults(endpoint string, n int) {
	queryResults.WithLabelValues(endpoint).Add(float64(n))
}

// RecordPersisted updates the persistence watermark gauge.
func RecordPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	recordPersistGauge.Set(float64(ts.Unix()))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
