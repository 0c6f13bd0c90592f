package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_documents_total",
			Help: "Documents processed by the sync coordinator, by operation kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_retries_total",
			Help: "Retry attempts performed by the sync coordinator, by operation kind",
		},
		[]string{"kind"},
	)
)
