package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agencyline"

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	stageTransitions *prometheus.CounterVec
	hookRuns         *prometheus.CounterVec
	hookDuration     *prometheus.HistogramVec
	overduePauses    prometheus.Counter
	blockerRuns      prometheus.Counter
	healthScore      *prometheus.GaugeVec
	conflicts        prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Approval workflow transitions by kind and decision.",
		}, []string{"transition", "decision"}),
		hookRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_hook_runs_total",
			Help:      "Automation hook executions by hook and outcome.",
		}, []string{"hook", "outcome"}),
		hookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "automation_hook_duration_seconds",
			Help:      "Automation hook latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"hook"}),
		overduePauses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overdue_pauses_total",
			Help:      "Projects paused because of an overdue payment.",
		}),
		blockerRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocker_runs_total",
			Help:      "Blocker inference passes.",
		}),
		healthScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "project_health_score",
			Help:      "Last computed overall health score per project.",
		}, []string{"project_id"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "project_write_conflicts_total",
			Help:      "Project writes rejected by the version check.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stageTransitions, m.hookRuns, m.hookDuration, m.overduePauses, m.blockerRuns, m.healthScore, m.conflicts,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) StageTransition(transition, decision string) {
	if m == nil {
		return
	}
	m.stageTransitions.WithLabelValues(transition, decision).Inc()
}

func (m *Metrics) HookRun(hook, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.hookRuns.WithLabelValues(hook, outcome).Inc()
	m.hookDuration.WithLabelValues(hook).Observe(took.Seconds())
}

func (m *Metrics) OverduePause() {
	if m == nil {
		return
	}
	m.overduePauses.Inc()
}

func (m *Metrics) BlockerRun() {
	if m == nil {
		return
	}
	m.blockerRuns.Inc()
}

func (m *Metrics) HealthScore(projectID string, score int) {
	if m == nil {
		return
	}
	m.healthScore.WithLabelValues(projectID).Set(float64(score))
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}
