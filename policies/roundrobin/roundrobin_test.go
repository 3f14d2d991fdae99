package roundrobin

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/go-foundations/schedcore/core"
	"github.com/go-foundations/schedcore/kernel"
)

type RoundRobinTestSuite struct {
	suite.Suite
	table *kernel.MemTable
	swap  *kernel.CountingSwitcher
	sched *core.Scheduler
}

func TestRoundRobinTestSuite(t *testing.T) {
	suite.Run(t, new(RoundRobinTestSuite))
}

func (ts *RoundRobinTestSuite) SetupTest() {
	ts.table = kernel.NewMemTable(16)
	ts.swap = &kernel.CountingSwitcher{}
	cfg := core.DefaultConfig()
	cfg.NProc = 16
	cfg.DefaultQuantum = 10
	ts.sched = core.NewScheduler(cfg, ts.table, ts.swap.Switch, zerolog.Nop())
	ts.Require().NoError(ts.sched.Init(core.RoundRobin))
}

// TestRotationScenario is spec §8 scenario 1: three pids, quantum 10,
// each runs for its full quantum before rotating, context-switch
// count ends at 2, queue count stays 3.
func (ts *RoundRobinTestSuite) TestRotationScenario() {
	ts.Require().NoError(ts.sched.NewProcess(1))
	ts.Require().NoError(ts.sched.NewProcess(2))
	ts.Require().NoError(ts.sched.NewProcess(3))

	ts.Require().NoError(ts.sched.Schedule()) // dispatch pid 1

	for i := 0; i < 10; i++ {
		ts.Require().NoError(ts.sched.Tick())
	}
	pid, ok := ts.sched.PickNext()
	ts.True(ok)
	ts.Equal(2, pid)

	for i := 0; i < 10; i++ {
		ts.Require().NoError(ts.sched.Tick())
	}
	pid, ok = ts.sched.PickNext()
	ts.True(ok)
	ts.Equal(3, pid)

	ts.Equal(uint64(2), ts.swap.Count)

	// times_scheduled counts every dispatch, including pid 1's
	// bootstrap, which the context-switch count above deliberately
	// excludes.
	p1, ok := ts.sched.GetProcStats(1)
	ts.Require().True(ok)
	ts.EqualValues(1, p1.TimesScheduled)
	p2, ok := ts.sched.GetProcStats(2)
	ts.Require().True(ok)
	ts.EqualValues(1, p2.TimesScheduled)

	ok, err := ts.sched.Validate()
	ts.Require().NoError(err)
	ts.True(ok)
}

func (ts *RoundRobinTestSuite) TestEnqueueDequeueRoundTrip() {
	ts.Require().NoError(ts.sched.NewProcess(5))
	before := ts.sched.GetStats()
	ts.Require().NoError(ts.sched.Exit(5))
	after := ts.sched.GetStats()
	ts.Equal(before.PoolExhaustions, after.PoolExhaustions)

	pid, ok := ts.sched.PickNext()
	ts.False(ok)
	ts.Equal(core.NoPid, pid)
}

func (ts *RoundRobinTestSuite) TestYieldForcesRotation() {
	ts.Require().NoError(ts.sched.NewProcess(1))
	ts.Require().NoError(ts.sched.NewProcess(2))
	ts.Require().NoError(ts.sched.Schedule())

	ts.Require().NoError(ts.sched.Yield())
	pid, ok := ts.sched.PickNext()
	ts.True(ok)
	ts.Equal(2, pid)
}

func (ts *RoundRobinTestSuite) TestSetQuantumClamped() {
	ts.sched.SetQuantum(0)
	ts.Equal(1, ts.sched.GetQuantum())
	ts.sched.SetQuantum(1000)
	ts.Equal(100, ts.sched.GetQuantum())
}
