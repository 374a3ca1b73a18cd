package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carpool"

var (
	RecommendationsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "recommendations_total", Help: "Total recommendation lists produced"})
	ScoringDuration      = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "scoring_duration_seconds", Help: "Time spent ranking one candidate pool"})
	CandidatesScored     = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "candidates_scored_total", Help: "Candidates that survived every cutoff"})
	CandidatesExcluded   = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "candidates_excluded_total", Help: "Candidates dropped, by first failing check"},
		[]string{"reason"},
	)

	PoolCacheHits   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "pool_cache_hits_total", Help: "Candidate pool reads served from redis"})
	PoolCacheMisses = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "pool_cache_misses_total", Help: "Candidate pool reads that fell through to the store"})

	ProfileEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "profile_events_total", Help: "Profile change events by stage and outcome"},
		[]string{"stage", "outcome"},
	)

	GroupChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "group_changes_total", Help: "Carpool group writes by operation"},
		[]string{"op"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
