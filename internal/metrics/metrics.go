package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessioncore",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sessioncore",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	TorrentCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sessioncore",
		Name:      "torrent_count",
		Help:      "Number of torrents currently known to the session.",
	})

	DownloadRateBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sessioncore",
		Name:      "download_rate_bytes",
		Help:      "Current aggregate download rate in bytes per second.",
	})

	UploadRateBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sessioncore",
		Name:      "upload_rate_bytes",
		Help:      "Current aggregate upload rate in bytes per second.",
	})

	DHTNodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sessioncore",
		Name:      "dht_nodes",
		Help:      "Number of DHT nodes the engine currently sees.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sessioncore",
		Name:      "peers_connected",
		Help:      "Total number of peers connected across all torrents.",
	})

	PeersBannedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessioncore",
		Name:      "peers_banned_total",
		Help:      "Total number of peer-filter ban decisions, by reason.",
	}, []string{"reason"})

	TorrentsAddedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sessioncore",
		Name:      "torrents_added_total",
		Help:      "Total number of torrents successfully added.",
	})

	TorrentsRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sessioncore",
		Name:      "torrents_removed_total",
		Help:      "Total number of torrents removed.",
	})

	TorrentErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sessioncore",
		Name:      "torrent_errors_total",
		Help:      "Total number of per-torrent engine faults surfaced as TorrentError.",
	})

	ResumeSaveFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sessioncore",
		Name:      "resume_save_failures_total",
		Help:      "Total number of resume-save acknowledgement failures.",
	})

	RSSFeedChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessioncore",
		Name:      "rss_feed_checks_total",
		Help:      "Total number of RSS feed checks, by result.",
	}, []string{"result"})

	RSSItemsNewTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sessioncore",
		Name:      "rss_items_new_total",
		Help:      "Total number of newly discovered RSS items across all feeds.",
	})

	SnapshotTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sessioncore",
		Name:      "snapshot_tick_duration_seconds",
		Help:      "Duration of one full snapshot/stats tick across all torrents.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TorrentCount,
		DownloadRateBytes,
		UploadRateBytes,
		DHTNodes,
		PeersConnected,
		PeersBannedTotal,
		TorrentsAddedTotal,
		TorrentsRemovedTotal,
		TorrentErrorsTotal,
		ResumeSaveFailuresTotal,
		RSSFeedChecksTotal,
		RSSItemsNewTotal,
		SnapshotTickDuration,
	)
}
