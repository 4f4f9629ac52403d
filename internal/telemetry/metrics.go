package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal — завершённые запуски по flow и итоговому статусу.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flows_runs_total", Help: "Total finished flow runs.",
	}, []string{"flow", "status"})

	// StepsTotal — завершённые попытки шагов по backend и статусу.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flows_steps_total", Help: "Total finished step attempts.",
	}, []string{"flow", "step", "backend", "status"})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flows_step_duration_seconds",
		Help:    "Step execution duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"flow", "step", "backend"})

	ScheduleTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flows_schedule_triggers_total", Help: "Total runs triggered by schedules.",
	}, []string{"flow", "result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flows_api_http_requests_total", Help: "Total HTTP requests handled by the API.",
	}, []string{"method", "code"})
)
