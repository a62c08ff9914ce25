package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters and gauges. Registered on the default registry so the
// /metrics endpoint picks them up without extra wiring.
var (
	RowsParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_rows_parsed_total",
		Help: "CSV rows parsed from uploaded files.",
	})
	MessagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_messages_published_total",
		Help: "Ingest messages published to the queue.",
	})
	MessagesConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_messages_consumed_total",
		Help: "Ingest messages received by the batch consumer.",
	})
	CommitsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_commits_succeeded_total",
		Help: "Atomic product+stock commits that succeeded.",
	})
	CommitsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_commits_failed_total",
		Help: "Atomic product+stock commits that failed.",
	})
	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_events_published_total",
		Help: "Classification events published to the topic.",
	})
	FilesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_files_processed_total",
		Help: "Uploaded files fully dispatched and relocated.",
	})
	FilesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_files_failed_total",
		Help: "Uploaded files whose dispatch aborted.",
	})
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_queue_depth",
		Help: "Messages currently queued or in flight.",
	})
)
