package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "searchsync_store_up",
		Help: "Whether the last probe could reach the index store (1 = up)",
	})

	indexReady = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "searchsync_index_ready",
		Help: "Whether the probed index exists and is ready to serve (1 = ready)",
	})
)
