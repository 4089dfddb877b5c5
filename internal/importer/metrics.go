package importer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	documentsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aw_importer_ical",
		Subsystem: "importer",
		Name:      "documents_total",
		Help:      "Number of calendar documents processed, by outcome.",
	}, []string{"outcome"})

	recordsAddedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aw_importer_ical",
		Subsystem: "importer",
		Name:      "records_added_total",
		Help:      "Number of activity records inserted into the destination bucket.",
	})

	eventsSkippedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aw_importer_ical",
		Subsystem: "importer",
		Name:      "events_skipped_total",
		Help:      "Number of VEVENTs skipped because they could not be normalized or expanded.",
	})
)

func init() {
	prometheus.MustRegister(documentsCounter, recordsAddedCounter, eventsSkippedCounter)
}

const (
	outcomeImported  = "imported"
	outcomeMalformed = "malformed"
	outcomeTransport = "transport_error"
)

func recordDocument(outcome string) {
	documentsCounter.WithLabelValues(outcome).Inc()
}

func recordAdded(n int) {
	recordsAddedCounter.Add(float64(n))
}

func recordSkipped(n int) {
	eventsSkippedCounter.Add(float64(n))
}
