package statetree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statetree_commits_total",
		Help: "Number of committed transactions",
	})
	metricRawChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statetree_raw_changes_total",
		Help: "Change records harvested before optimization",
	})
	metricOptimizedChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statetree_optimized_changes_total",
		Help: "Change records left after optimization",
	})
	metricPrunedNodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statetree_pruned_nodes_total",
		Help: "Touched nodes dropped because they were unreachable at commit",
	})
	metricCommitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statetree_commit_failures_total",
		Help: "Commits that failed and kept their pending changes",
	})
	metricCommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "statetree_commit_duration_seconds",
		Help:    "Time spent harvesting and optimizing a transaction",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})
)
