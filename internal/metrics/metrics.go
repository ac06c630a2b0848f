package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "impex_tasks_created_total",
		Help: "Total number of tasks created, labeled by type",
	}, []string{"type"})

	StatusUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "impex_status_updates_total",
		Help: "Status update attempts, labeled by target status and result",
	}, []string{"status", "result"})

	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "impex_dispatch_total",
		Help: "Worker wake-up commands sent, labeled by result",
	}, []string{"result"})

	WorkerWakeups = promauto.NewCounter(prometheus.CounterOpts{
		Name: "impex_worker_wakeups_total",
		Help: "Worker wake-up commands received by the local listener",
	})

	RemoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "impex_remote_requests_total",
		Help: "Remote status lookups, labeled by outcome",
	}, []string{"outcome"})

	RemoteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "impex_remote_request_duration_seconds",
		Help:    "Duration of remote status lookups in seconds",
		Buckets: prometheus.DefBuckets,
	})
)
