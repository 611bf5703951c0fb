package leads

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	mutations   *prometheus.CounterVec
	submissions *prometheus.CounterVec
	cache       *prometheus.CounterVec
	generation  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, serviceName string) (*metrics, error) {
	labels := prometheus.Labels{"service": serviceName}
	m := &metrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "leads_schema_mutations_total",
			Help:        "Count of lead column add/remove attempts by outcome",
			ConstLabels: labels,
		}, []string{"op", "result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "leads_submissions_total",
			Help:        "Count of lead submissions by outcome code",
			ConstLabels: labels,
		}, []string{"result"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "leads_cache_requests_total",
			Help:        "Count of listing cache lookups by hit, miss or error",
			ConstLabels: labels,
		}, []string{"result"}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "leads_catalog_generation",
			Help:        "Current lead schema generation",
			ConstLabels: labels,
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.mutations, m.submissions, m.cache, m.generation} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}
