package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/go-foundations/schedcore/core"
)

type fixtureSource struct {
	stats  core.Stats
	policy string
}

func (f fixtureSource) GetStats() core.Stats  { return f.stats }
func (f fixtureSource) ActivePolicy() string  { return f.policy }

func TestCollectorExportsCounters(t *testing.T) {
	c := &Collector{src: fixtureSource{
		stats:  core.Stats{SystemTicks: 42, Schedules: 7},
		policy: "cfs",
	}}

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)

	var sawTicks, sawPolicy bool
	for _, mf := range families {
		switch mf.GetName() {
		case "schedcore_system_ticks_total":
			sawTicks = true
			require.Equal(t, float64(42), mf.GetMetric()[0].GetCounter().GetValue())
		case "schedcore_active_policy_info":
			sawPolicy = true
			labels := mf.GetMetric()[0].GetLabel()
			require.Len(t, labels, 1)
			require.Equal(t, "active_policy", labels[0].GetName())
			require.Equal(t, "cfs", labels[0].GetValue())
		}
	}
	require.True(t, sawTicks)
	require.True(t, sawPolicy)
}
