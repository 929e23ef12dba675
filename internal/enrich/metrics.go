package enrich

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusError   = "error"
	statusPanic   = "panic"
)

type metrics struct {
	images *prometheus.CounterVec
}

func makeMetrics() metrics {
	return metrics{
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsfeed_images",
			Help: "Generated item images",
		}, []string{"status"}),
	}
}

var _ prometheus.Collector = &metrics{}

func (m *metrics) Describe(descs chan<- *prometheus.Desc) {
	m.images.Describe(descs)
}

func (m *metrics) Collect(metrics chan<- prometheus.Metric) {
	m.images.Collect(metrics)
}
