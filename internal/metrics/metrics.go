package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CodesGenerated counts allocated codes by prefix code type
	CodesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdm_codes_generated_total",
		Help: "Total codes generated by code type",
	}, []string{"code_type"})

	// StructuresShared counts share operations and the replicas they created
	StructuresShared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdm_structures_shared_total",
		Help: "Total share_structure operations",
	})

	StructuresCloned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdm_structures_cloned_total",
		Help: "Total replica structures created by sharing or resync",
	})

	// ChangeLogs counts tree change log entries by type and significance
	ChangeLogs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdm_tree_change_logs_total",
		Help: "Tree change log entries by change type and significance level",
	}, []string{"change_type", "significance"})

	// Notifications counts stakeholder notifications by result
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdm_notifications_total",
		Help: "Stakeholder notifications by result",
	}, []string{"result"})

	// StructureCache counts structure cache lookups by result
	StructureCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdm_structure_cache_total",
		Help: "Structure cache lookups by result",
	}, []string{"result"})

	// HTTPRequestDuration tracks request latency by route and status
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pdm_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"method", "route", "status"})
)

// RecordChangeLog 记录一条变更日志
func RecordChangeLog(changeType string, significance int) {
	ChangeLogs.WithLabelValues(changeType, strconv.Itoa(significance)).Inc()
}
