package polling

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess     = "success"
	statusUnavailable = "unavailable"
	statusError       = "error"
	statusPanic       = "panic"
	statusSkipped     = "skipped"
)

type metrics struct {
	startTime prometheus.Gauge
	sources   prometheus.Gauge

	sourceTime    *prometheus.GaugeVec
	sourceStatus  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	cycleDuration *prometheus.HistogramVec
}

func makeMetrics() metrics {
	startTime := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "newsfeed_start_time",
		Help: "Daemon start time",
	})
	startTime.SetToCurrentTime()

	return metrics{
		startTime: startTime,

		sources: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "newsfeed_sources",
			Help: "Number of registered sources",
		}),

		sourceTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "newsfeed_source_time",
			Help: "Time of the last successful source fetch",
		}, []string{"source"}),

		sourceStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsfeed_source_status",
			Help: "Source fetch status",
		}, []string{"source", "status"}),

		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsfeed_fetch_duration",
			Help:    "Document fetch duration",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),

		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsfeed_cycle_duration",
			Help:    "Fetch cycle duration including parsing",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"source"}),
	}
}

type observers struct {
	sourceTime    prometheus.Gauge
	sourceStatus  *prometheus.CounterVec
	fetchDuration prometheus.Observer
	cycleDuration prometheus.Observer
}

func (m *metrics) observers(name string) observers {
	return observers{
		sourceTime:    m.sourceTime.WithLabelValues(name),
		sourceStatus:  m.sourceStatus.MustCurryWith(prometheus.Labels{"source": name}),
		fetchDuration: m.fetchDuration.WithLabelValues(name),
		cycleDuration: m.cycleDuration.WithLabelValues(name),
	}
}

var _ prometheus.Collector = &metrics{}

func (m *metrics) Describe(descs chan<- *prometheus.Desc) {
	m.startTime.Describe(descs)
	m.sources.Describe(descs)
	m.sourceTime.Describe(descs)
	m.sourceStatus.Describe(descs)
	m.fetchDuration.Describe(descs)
	m.cycleDuration.Describe(descs)
}

func (m *metrics) Collect(metrics chan<- prometheus.Metric) {
	m.startTime.Collect(metrics)
	m.sources.Collect(metrics)
	m.sourceTime.Collect(metrics)
	m.sourceStatus.Collect(metrics)
	m.fetchDuration.Collect(metrics)
	m.cycleDuration.Collect(metrics)
}
