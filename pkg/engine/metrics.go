package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus counters/histograms around the service façade, grounded on the
// reference engine's own engine-package metric file (same promauto shape,
// renamed from CDC sink/source counters to façade-operation ones) and named
// per SPEC_FULL.md §2.1/§4.8's observability section.
var (
	DeployCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procengine_deploy_total",
		Help: "The total number of process definitions deployed",
	}, []string{"company_id", "result"})

	StartProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procengine_start_process_total",
		Help: "The total number of process instances started",
	}, []string{"process_definition_key", "result"})

	CompleteTaskCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procengine_complete_task_total",
		Help: "The total number of tasks completed",
	}, []string{"result"})

	CompleteTaskLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "procengine_complete_task_duration_seconds",
		Help:    "Time taken to complete a task, including the drained operator queue",
		Buckets: prometheus.DefBuckets,
	})

	QueueDrainDepth = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "procengine_queue_drain_depth",
		Help:    "Number of operators drained from the queue for one façade call",
		Buckets: prometheus.LinearBuckets(1, 2, 10),
	}, []string{"seed_operator"})

	ActiveProcessInstances = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "procengine_active_process_instances",
		Help: "Gauge of process instances currently believed in-flight by this process",
	})
)
