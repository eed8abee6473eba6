package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики service grid. Регистрируются в prometheus.DefaultRegisterer
// и отдаются через /metrics.
var (
	// OrchestratorCycles — проходы reconciliation по результату sync.
	OrchestratorCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servicegrid_orchestrator_cycles_total",
		Help: "Reconciliation cycles by sync result",
	}, []string{"synced"})

	// TasksPosted — tasks, добавленные в очереди.
	TasksPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servicegrid_tasks_posted_total",
		Help: "Tasks accepted by the broker",
	}, []string{"type"})

	// TasksDeduplicated — tasks, отброшенные как дубликаты.
	TasksDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servicegrid_tasks_deduplicated_total",
		Help: "Tasks dropped because an equivalent task was pending",
	}, []string{"type"})

	// TasksExecuted — выполненные tasks по типу и результату.
	TasksExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servicegrid_tasks_executed_total",
		Help: "Tasks executed by task runtimes",
	}, []string{"consumer_kind", "type", "result"})

	// TaskDuration — длительность выполнения обработчика.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "servicegrid_task_duration_seconds",
		Help:    "Task handler duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// StateConflicts — конфликты etag при записи (recovered=true для EMPTY).
	StateConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servicegrid_state_conflicts_total",
		Help: "Etag conflicts on state writes",
	}, []string{"recovered"})

	// Agents — агенты плана по классу доступности на последнем проходе.
	Agents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "servicegrid_agents",
		Help: "Planned agents by liveness classification",
	}, []string{"liveness"})
)
