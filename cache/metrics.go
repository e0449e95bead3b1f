package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "modserver",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Lookups that found a cached file.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "modserver",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Lookups that found nothing cached.",
	})
	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "modserver",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Entries dropped to stay within capacity.",
	})
	cacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "modserver",
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Files currently held in the cache, by static root.",
	}, []string{"root"})
)
