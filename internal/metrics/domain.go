package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctonjob",
			Subsystem: "upload",
			Name:      "files_total",
			Help:      "上传文件数，按 bucket 与结果分类。",
		},
		[]string{"bucket", "result"},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctonjob",
			Subsystem: "ratelimit",
			Name:      "rejected_total",
			Help:      "被限流拒绝的请求数。",
		},
		[]string{"rule"},
	)

	applicationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctonjob",
			Subsystem: "applications",
			Name:      "submitted_total",
			Help:      "提交的申请数。",
		},
		[]string{"kind"},
	)

	statusTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctonjob",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "招聘方与申请的状态迁移数。",
		},
		[]string{"entity", "status"},
	)
)

// ObserveUpload records an upload attempt; result is "accepted" or a rejection reason.
func ObserveUpload(bucket, result string) {
	uploadsTotal.WithLabelValues(bucket, result).Inc()
}

func ObserveRateLimited(rule string) {
	rateLimitedTotal.WithLabelValues(rule).Inc()
}

func ObserveApplication(kind string) {
	applicationsTotal.WithLabelValues(kind).Inc()
}

// ObserveTransition counts a state machine transition, e.g. ("recruiter", "approved").
func ObserveTransition(entity, status string) {
	statusTransitionsTotal.WithLabelValues(entity, status).Inc()
}
