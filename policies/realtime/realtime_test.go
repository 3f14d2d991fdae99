package realtime

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/go-foundations/schedcore/core"
	"github.com/go-foundations/schedcore/kernel"
)

type RealtimeTestSuite struct {
	suite.Suite
	table *kernel.MemTable
	swap  *kernel.CountingSwitcher
	sched *core.Scheduler
}

func TestRealtimeTestSuite(t *testing.T) {
	suite.Run(t, new(RealtimeTestSuite))
}

func (ts *RealtimeTestSuite) SetupTest() {
	ts.table = kernel.NewMemTable(16)
	ts.swap = &kernel.CountingSwitcher{}
	cfg := core.DefaultConfig()
	cfg.NProc = 16
	ts.sched = core.NewScheduler(cfg, ts.table, ts.swap.Switch, zerolog.Nop())
	ts.Require().NoError(ts.sched.Init(core.RealTime))
}

// TestSingleTaskReleaseRunCompleteCycle traces one task (period=5,
// deadline=5, wcet=2, phase=0) through its first periodic instance:
// it stays WAITING until release on tick 1, runs ticks 2-3, and is
// back to WAITING (one completion, no misses) by tick 5, just before
// its second release at tick 6.
func (ts *RealtimeTestSuite) TestSingleTaskReleaseRunCompleteCycle() {
	ts.Require().NoError(ts.sched.NewProcess(1))
	ts.Require().NoError(ts.sched.SetParams(1, core.RTParams{Period: 5, Deadline: 5, WCET: 2}))

	ts.Require().NoError(ts.sched.Tick()) // release, dispatch
	ts.Equal(kernel.RUNNING, ts.table.State(1))

	ts.Require().NoError(ts.sched.Tick()) // running, remaining 2->1
	ts.Equal(kernel.RUNNING, ts.table.State(1))

	ts.Require().NoError(ts.sched.Tick()) // running, remaining 1->0, completes
	info, ok := ts.sched.GetParams(1)
	ts.Require().True(ok)
	ts.Equal("waiting", info.State)
	ts.EqualValues(1, info.Completions)
	ts.EqualValues(0, info.DeadlineMisses)

	for i := 0; i < 2; i++ {
		ts.Require().NoError(ts.sched.Tick())
	}
	info, _ = ts.sched.GetParams(1)
	ts.Equal("waiting", info.State, "still idle one tick before its second release at tick 6")
	ts.EqualValues(1, info.Instances)
}

// TestSkipPolicyRemovesTaskUntilNextRelease gives a task a deadline
// shorter than its wcet (guaranteed miss): period=10, deadline=3,
// wcet=5. It releases at tick 1, misses its deadline on tick 5 (the
// first tick where now=5 > absolute_deadline=4), and SKIP pulls it
// out of the ready set until its next release at tick 11.
func (ts *RealtimeTestSuite) TestSkipPolicyRemovesTaskUntilNextRelease() {
	ts.Require().NoError(ts.sched.NewProcess(1))
	ts.Require().NoError(ts.sched.SetParams(1, core.RTParams{Period: 10, Deadline: 3, WCET: 5, MissPolicy: core.MissSkip}))

	for i := 0; i < 5; i++ {
		ts.Require().NoError(ts.sched.Tick())
	}

	info, ok := ts.sched.GetParams(1)
	ts.Require().True(ok)
	ts.Equal("waiting", info.State)
	ts.EqualValues(1, info.DeadlineMisses)
	ts.EqualValues(1, info.Instances)

	for i := 0; i < 6; i++ {
		ts.Require().NoError(ts.sched.Tick())
	}
	info, _ = ts.sched.GetParams(1)
	ts.EqualValues(2, info.Instances, "released again at tick 11")
}

// TestAbortPolicyForgetsCurrentInstanceButReleasesAgain gives a task a
// guaranteed miss (period=10, deadline=3, wcet=5) under ABORT. The
// missed instance reports state "aborted" rather than "waiting",
// distinguishing it from SKIP, but the task still comes back for its
// next release at tick 11 — ABORT only forgets the current instance.
func (ts *RealtimeTestSuite) TestAbortPolicyForgetsCurrentInstanceButReleasesAgain() {
	ts.Require().NoError(ts.sched.NewProcess(1))
	ts.Require().NoError(ts.sched.SetParams(1, core.RTParams{Period: 10, Deadline: 3, WCET: 5, MissPolicy: core.MissAbort}))

	for i := 0; i < 5; i++ {
		ts.Require().NoError(ts.sched.Tick())
	}

	info, ok := ts.sched.GetParams(1)
	ts.Require().True(ok)
	ts.Equal("aborted", info.State)
	ts.EqualValues(0, info.RemainingTime)
	ts.EqualValues(1, info.DeadlineMisses)
	ts.EqualValues(1, info.Instances)

	for i := 0; i < 6; i++ {
		ts.Require().NoError(ts.sched.Tick())
	}
	info, _ = ts.sched.GetParams(1)
	ts.EqualValues(2, info.Instances, "released again at tick 11 despite the abort")
}

func (ts *RealtimeTestSuite) TestRMSPriorityAssignedByShortestPeriod() {
	ts.Require().NoError(ts.sched.NewProcess(1))
	ts.Require().NoError(ts.sched.NewProcess(2))
	ts.Require().NoError(ts.sched.NewProcess(3))
	ts.Require().NoError(ts.sched.SetParams(1, core.RTParams{Period: 20, Deadline: 20, WCET: 1}))
	ts.Require().NoError(ts.sched.SetParams(2, core.RTParams{Period: 10, Deadline: 10, WCET: 1}))
	ts.Require().NoError(ts.sched.SetParams(3, core.RTParams{Period: 15, Deadline: 15, WCET: 1}))

	ts.Require().NoError(ts.sched.SetAlgorithm(core.RMS))

	i1, _ := ts.sched.GetParams(1)
	i2, _ := ts.sched.GetParams(2)
	i3, _ := ts.sched.GetParams(3)
	ts.Equal(1, i1.RMSPriority, "longest period gets lowest priority")
	ts.Equal(3, i2.RMSPriority, "shortest period gets highest priority")
	ts.Equal(2, i3.RMSPriority)
}

// TestSchedulabilityUtilizationAndLiuLayland reproduces the worked
// example: three tasks at (10,3), (15,5), (20,4) give utilization
// 0.3+1/3+0.2 ~= 0.8333, schedulable under EDF (<=1) but not under
// RMS (Liu-Layland bound for n=3 is 3*(2^(1/3)-1) ~= 0.7798).
// Raising the third task's wcet to 10 pushes utilization over 1 and
// EDF schedulability flips to false.
func (ts *RealtimeTestSuite) TestSchedulabilityUtilizationAndLiuLayland() {
	ts.Require().NoError(ts.sched.NewProcess(1))
	ts.Require().NoError(ts.sched.NewProcess(2))
	ts.Require().NoError(ts.sched.NewProcess(3))
	ts.Require().NoError(ts.sched.SetParams(1, core.RTParams{Period: 10, Deadline: 10, WCET: 3}))
	ts.Require().NoError(ts.sched.SetParams(2, core.RTParams{Period: 15, Deadline: 15, WCET: 5}))
	ts.Require().NoError(ts.sched.SetParams(3, core.RTParams{Period: 20, Deadline: 20, WCET: 4}))

	result := ts.sched.CheckSchedulable()
	ts.True(result.Schedulable)
	ts.InDelta(0.8333, result.Utilization, 0.001)

	ts.Require().NoError(ts.sched.SetAlgorithm(core.RMS))
	result = ts.sched.CheckSchedulable()
	ts.False(result.Schedulable, "0.8333 exceeds the n=3 Liu-Layland bound of ~0.7798")

	ts.Require().NoError(ts.sched.SetAlgorithm(core.EDF))
	ts.Require().NoError(ts.sched.SetParams(3, core.RTParams{Period: 20, Deadline: 20, WCET: 10}))
	result = ts.sched.CheckSchedulable()
	ts.False(result.Schedulable)
	ts.InDelta(1.1333, result.Utilization, 0.001)
}

// TestResponseTimeAnalysisUnderRMS sets up a classic two-task RMS
// case: A (period 10, wcet 3) preempts B (period 20, wcet 5). B's
// response time converges to 8 (5 + ceil(8/10)*3); A, with no
// higher-priority interference, has a response time equal to its own
// wcet.
func (ts *RealtimeTestSuite) TestResponseTimeAnalysisUnderRMS() {
	ts.Require().NoError(ts.sched.NewProcess(1)) // A
	ts.Require().NoError(ts.sched.NewProcess(2)) // B
	ts.Require().NoError(ts.sched.SetParams(1, core.RTParams{Period: 10, Deadline: 10, WCET: 3}))
	ts.Require().NoError(ts.sched.SetParams(2, core.RTParams{Period: 20, Deadline: 20, WCET: 5}))
	ts.Require().NoError(ts.sched.SetAlgorithm(core.RMS))

	rA, ok := ts.sched.ResponseTime(1)
	ts.Require().True(ok)
	ts.EqualValues(3, rA)

	rB, ok := ts.sched.ResponseTime(2)
	ts.Require().True(ok)
	ts.EqualValues(8, rB)
}

func (ts *RealtimeTestSuite) TestResponseTimeNotMeaningfulUnderEDF() {
	ts.Require().NoError(ts.sched.NewProcess(1))
	ts.Require().NoError(ts.sched.SetParams(1, core.RTParams{Period: 10, Deadline: 10, WCET: 3}))
	_, ok := ts.sched.ResponseTime(1)
	ts.False(ok)
}

func (ts *RealtimeTestSuite) TestValidateOnEmptyAndPopulated() {
	ok, err := ts.sched.Validate()
	ts.Require().NoError(err)
	ts.True(ok)

	ts.Require().NoError(ts.sched.NewProcess(1))
	ts.Require().NoError(ts.sched.SetParams(1, core.RTParams{Period: 5, Deadline: 5, WCET: 2}))
	for i := 0; i < 8; i++ {
		ts.Require().NoError(ts.sched.Tick())
	}
	ok, err = ts.sched.Validate()
	ts.Require().NoError(err)
	ts.True(ok)
}

func (ts *RealtimeTestSuite) TestDequeueRemovesFromPool() {
	ts.Require().NoError(ts.sched.NewProcess(1))
	ts.Require().NoError(ts.sched.Exit(1))

	_, ok := ts.sched.GetParams(1)
	ts.False(ok)
}
