package stm

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	commits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stm",
			Subsystem: "engine",
			Name:      "commit_total",
			Help:      "Total number of committed transactions.",
		})

	retries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stm",
			Subsystem: "engine",
			Name:      "retry_total",
			Help:      "Total number of transaction attempts lost to contention.",
		})

	budgetExceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stm",
			Subsystem: "engine",
			Name:      "retry_budget_exceeded_total",
			Help:      "Total number of transactions abandoned after exhausting MaxRetries.",
		})
)

func init() {
	prometheus.MustRegister(commits)
	prometheus.MustRegister(retries)
	prometheus.MustRegister(budgetExceeded)
}
