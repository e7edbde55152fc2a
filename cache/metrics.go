package cache

import "github.com/prometheus/client_golang/prometheus"

// Collector exports Store counters to Prometheus.
type Collector struct {
	store *Store

	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	size      *prometheus.Desc
}

// NewCollector returns a collector for s. Register it on a
// prometheus.Registerer.
func NewCollector(s *Store) *Collector {
	return &Collector{
		store:     s,
		hits:      prometheus.NewDesc("gate_cache_hits_total", "Cache lookups that found a live entry.", nil, nil),
		misses:    prometheus.NewDesc("gate_cache_misses_total", "Cache lookups that found nothing or an expired entry.", nil, nil),
		evictions: prometheus.NewDesc("gate_cache_evictions_total", "Entries evicted to make room.", nil, nil),
		size:      prometheus.NewDesc("gate_cache_entries", "Entries currently stored.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.size
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.store.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.HitCount))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(st.MissCount))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(c.store.evictionCount()))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(st.Size))
}
