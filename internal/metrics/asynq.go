package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	taskProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctonjob",
			Subsystem: "worker",
			Name:      "tasks_processed_total",
			Help:      "邮件等后台任务处理总数。",
		},
		[]string{"queue", "task_type", "outcome"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ctonjob",
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "后台任务耗时（秒）。",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"queue", "task_type"},
	)

	taskInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ctonjob",
			Subsystem: "worker",
			Name:      "tasks_in_progress",
			Help:      "当前正在处理的任务数量。",
		},
		[]string{"queue", "task_type"},
	)
)

// taskOutcome 区分成功、可重试失败与放弃重试。
func taskOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, asynq.SkipRetry):
		return "skipped"
	default:
		return "retry"
	}
}

// AsynqMetricsMiddleware 记录任务处理次数、耗时与结果。
func AsynqMetricsMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			queue, ok := asynq.GetQueueName(ctx)
			if !ok {
				queue = "unknown"
			}
			taskType := task.Type()

			taskInProgress.WithLabelValues(queue, taskType).Inc()
			defer taskInProgress.WithLabelValues(queue, taskType).Dec()

			start := time.Now()
			err := next.ProcessTask(ctx, task)
			taskDuration.WithLabelValues(queue, taskType).Observe(time.Since(start).Seconds())
			taskProcessedTotal.WithLabelValues(queue, taskType, taskOutcome(err)).Inc()

			return err
		})
	}
}
