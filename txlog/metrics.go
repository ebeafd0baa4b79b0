package txlog

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	bloomChecks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stm",
			Subsystem: "txlog",
			Name:      "bloom_check_total",
			Help:      "Total number of write-set membership filter probes.",
		})

	slowLookups = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stm",
			Subsystem: "txlog",
			Name:      "slow_lookup_total",
			Help:      "Total number of filter hits resolved by overflow lookup or scan.",
		})

	bloomCollisions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stm",
			Subsystem: "txlog",
			Name:      "bloom_collision_total",
			Help:      "Total number of filter false positives (slow lookups that missed).",
		})

	doubleWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stm",
			Subsystem: "txlog",
			Name:      "double_write_total",
			Help:      "Total number of writes coalesced into an existing record.",
		})

	lockFails = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stm",
			Subsystem: "txlog",
			Name:      "lock_fail_total",
			Help:      "Total number of commit lock acquisitions lost to contention.",
		})

	validateFails = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stm",
			Subsystem: "txlog",
			Name:      "validate_fail_total",
			Help:      "Total number of write-set validations failed after locking.",
		})

	writeWords = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "stm",
			Subsystem: "txlog",
			Name:      "write_words",
			Help:      "Write-set payload size in words at log reset.",

			// lowest bucket 1 word, factor 4, highest 1 * 4^9 == 256Ki words
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		})
)

func init() {
	prometheus.MustRegister(bloomChecks)
	prometheus.MustRegister(slowLookups)
	prometheus.MustRegister(bloomCollisions)
	prometheus.MustRegister(doubleWrites)
	prometheus.MustRegister(lockFails)
	prometheus.MustRegister(validateFails)
	prometheus.MustRegister(writeWords)
}
