// Package metrics exposes a schedcore Scheduler's counters as
// Prometheus metrics, mirroring the
// Describe/Poll/CollectMetrics triad containers-nri-plugins's
// pkg/resmgr/policy.Backend interface uses for the same purpose
// (spec §6's sched_get_stats/sched_get_proc_stats/sched_reset_stats).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-foundations/schedcore/core"
)

// statsSource is the subset of *core.Scheduler the collector needs;
// kept as an interface so tests can supply a fixture instead of a full
// Scheduler.
type statsSource interface {
	GetStats() core.Stats
	ActivePolicy() string
}

var (
	systemTicksDesc = prometheus.NewDesc(
		"schedcore_system_ticks_total", "Cumulative ticks observed by the framework.", nil, nil)
	schedulesDesc = prometheus.NewDesc(
		"schedcore_schedules_total", "Number of times schedule() ran.", nil, nil)
	contextSwitchesDesc = prometheus.NewDesc(
		"schedcore_context_switches_total", "Number of context switches performed.", nil, nil)
	yieldsDesc = prometheus.NewDesc(
		"schedcore_yields_total", "Number of yield() calls.", nil, nil)
	preemptionsDesc = prometheus.NewDesc(
		"schedcore_preemptions_total", "Number of preempt() calls.", nil, nil)
	policySwitchesDesc = prometheus.NewDesc(
		"schedcore_policy_switches_total", "Number of scheduler_switch() calls.", nil, nil)
	poolExhaustionsDesc = prometheus.NewDesc(
		"schedcore_pool_exhaustions_total", "Number of enqueue() calls silently dropped due to pool exhaustion.", nil, nil)
	activePolicyDesc = prometheus.NewDesc(
		"schedcore_active_policy_info", "Always 1; the active_policy label names the installed policy.",
		[]string{"active_policy"}, nil)
)

// Collector adapts a Scheduler to prometheus.Collector.
type Collector struct {
	src statsSource
}

// NewCollector wraps sched for registration with a prometheus.Registry.
func NewCollector(sched *core.Scheduler) *Collector {
	return &Collector{src: sched}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- systemTicksDesc
	ch <- schedulesDesc
	ch <- contextSwitchesDesc
	ch <- yieldsDesc
	ch <- preemptionsDesc
	ch <- policySwitchesDesc
	ch <- poolExhaustionsDesc
	ch <- activePolicyDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.GetStats()

	ch <- prometheus.MustNewConstMetric(systemTicksDesc, prometheus.CounterValue, float64(st.SystemTicks))
	ch <- prometheus.MustNewConstMetric(schedulesDesc, prometheus.CounterValue, float64(st.Schedules))
	ch <- prometheus.MustNewConstMetric(contextSwitchesDesc, prometheus.CounterValue, float64(st.ContextSwitches))
	ch <- prometheus.MustNewConstMetric(yieldsDesc, prometheus.CounterValue, float64(st.Yields))
	ch <- prometheus.MustNewConstMetric(preemptionsDesc, prometheus.CounterValue, float64(st.Preemptions))
	ch <- prometheus.MustNewConstMetric(policySwitchesDesc, prometheus.CounterValue, float64(st.PolicySwitches))
	ch <- prometheus.MustNewConstMetric(poolExhaustionsDesc, prometheus.CounterValue, float64(st.PoolExhaustions))
	ch <- prometheus.MustNewConstMetric(activePolicyDesc, prometheus.GaugeValue, 1, c.src.ActivePolicy())
}
