package core

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/go-foundations/schedcore/kernel"
)

// fakePolicyType is registered under the real Priority slot so
// Init's "unknown type falls back to priority" contract (spec §7) can
// be exercised without this package importing policies/priority (that
// package imports core, and core's own test binary pulling it back in
// would be needless coupling for a framework-level unit test). The
// fixture deliberately leaves every optional vtable entry nil so the
// framework's fallback paths are what's under test here.
const fakePolicyType = Priority

func init() {
	Register(fakePolicyType, func(log zerolog.Logger) *VTable {
		return &VTable{
			Name: "priority",
			Type: fakePolicyType,
		}
	})
}

type FrameworkTestSuite struct {
	suite.Suite
	table *kernel.MemTable
	swap  *kernel.CountingSwitcher
	sched *Scheduler
}

func TestFrameworkTestSuite(t *testing.T) {
	suite.Run(t, new(FrameworkTestSuite))
}

func (ts *FrameworkTestSuite) SetupTest() {
	ts.table = kernel.NewMemTable(16)
	ts.swap = &kernel.CountingSwitcher{}
	cfg := DefaultConfig()
	cfg.NProc = 16
	ts.sched = NewScheduler(cfg, ts.table, ts.swap.Switch, zerolog.Nop())
}

func (ts *FrameworkTestSuite) TestInitUnknownFallsBackToPriority() {
	err := ts.sched.Init(PolicyType(999))
	ts.Require().NoError(err)
	ts.Equal("priority", ts.sched.ActivePolicy())
}

func (ts *FrameworkTestSuite) TestFallbackFIFOEnqueueDequeueRoundTrip() {
	ts.Require().NoError(ts.sched.Init(fakePolicyType))

	ts.Require().NoError(ts.sched.NewProcess(1))
	ts.Require().NoError(ts.sched.NewProcess(2))
	ts.Require().NoError(ts.sched.NewProcess(3))

	pid, ok := ts.sched.PickNext()
	ts.True(ok)
	ts.Equal(1, pid)

	ts.Require().NoError(ts.sched.Exit(2))
	ok, err := ts.sched.Validate()
	ts.Require().NoError(err)
	ts.True(ok)

	// dequeue on a non-member is a no-op, not an error
	ts.Require().NoError(ts.sched.Exit(2))
}

func (ts *FrameworkTestSuite) TestSwitchUnknownLeavesCurrentIntact() {
	ts.Require().NoError(ts.sched.Init(fakePolicyType))
	err := ts.sched.Switch(PolicyType(999))
	ts.Require().Error(err)
	ts.Equal("priority", ts.sched.ActivePolicy())
}

func (ts *FrameworkTestSuite) TestSwitchIsIdempotentAfterQuiescence() {
	ts.Require().NoError(ts.sched.Init(fakePolicyType))
	ts.Require().NoError(ts.sched.Switch(fakePolicyType))
	ts.Require().NoError(ts.sched.Switch(fakePolicyType))
	ts.Equal("priority", ts.sched.ActivePolicy())
}

func (ts *FrameworkTestSuite) TestSetPriorityClampsAndReturnsOld() {
	ts.Require().NoError(ts.sched.Init(fakePolicyType))
	ts.Require().NoError(ts.sched.NewProcess(1))
	old, err := ts.sched.SetPriority(1, 50)
	ts.Require().NoError(err)
	ts.Equal(0, old)

	old, err = ts.sched.SetPriority(1, 500)
	ts.Require().NoError(err)
	ts.Equal(50, old)

	p, err := ts.sched.GetPriority(1)
	ts.Require().NoError(err)
	ts.Equal(99, p)
}

func (ts *FrameworkTestSuite) TestSetPriorityInvalidPid() {
	_, err := ts.sched.SetPriority(-1, 10)
	ts.ErrorIs(err, ErrInvalidPid)
	_, err = ts.sched.SetPriority(100, 10)
	ts.ErrorIs(err, ErrInvalidPid)
}

func (ts *FrameworkTestSuite) TestTickAdvancesSystemTimeMonotonically() {
	ts.Require().NoError(ts.sched.Init(fakePolicyType))
	ts.Require().NoError(ts.sched.Tick())
	ts.Require().NoError(ts.sched.Tick())
	ts.Require().NoError(ts.sched.Tick())
	ts.Equal(uint64(3), ts.sched.GetTime())
}

// TestTickAccruesPerProcessRunAndWaitTicks exercises sched_get_proc_stats
// (spec §6, supplemented per SPEC_FULL §11): every tick, whichever pid
// the table reports RUNNING accrues ticks_run, and every READY pid
// accrues wait_ticks.
func (ts *FrameworkTestSuite) TestTickAccruesPerProcessRunAndWaitTicks() {
	ts.Require().NoError(ts.sched.Init(fakePolicyType))
	ts.Require().NoError(ts.sched.NewProcess(1))
	ts.Require().NoError(ts.sched.NewProcess(2))
	ts.table.SetState(1, kernel.RUNNING)

	ts.Require().NoError(ts.sched.Tick())
	ts.Require().NoError(ts.sched.Tick())
	ts.Require().NoError(ts.sched.Tick())

	s1, ok := ts.sched.GetProcStats(1)
	ts.Require().True(ok)
	ts.EqualValues(3, s1.TicksRun)
	ts.EqualValues(0, s1.WaitTicks)

	s2, ok := ts.sched.GetProcStats(2)
	ts.Require().True(ok)
	ts.EqualValues(0, s2.TicksRun)
	ts.EqualValues(3, s2.WaitTicks)
}

// TestPreemptCreditsTheRunningProcess checks times_preempted is
// credited to whatever pid the table reports RUNNING at the moment
// Preempt is called.
func (ts *FrameworkTestSuite) TestPreemptCreditsTheRunningProcess() {
	ts.Require().NoError(ts.sched.Init(fakePolicyType))
	ts.Require().NoError(ts.sched.NewProcess(1))
	ts.table.SetState(1, kernel.RUNNING)

	ts.Require().NoError(ts.sched.Preempt())
	ts.Require().NoError(ts.sched.Preempt())

	s1, ok := ts.sched.GetProcStats(1)
	ts.Require().True(ok)
	ts.EqualValues(2, s1.TimesPreempted)
}

func (ts *FrameworkTestSuite) TestResetStatsKeepsSystemClockMonotonic() {
	ts.Require().NoError(ts.sched.Init(fakePolicyType))
	ts.Require().NoError(ts.sched.NewProcess(1))
	ts.Require().NoError(ts.sched.Tick())
	ts.sched.ResetStats()
	stats := ts.sched.GetStats()
	// system_ticks is the monotonic clock (spec §5), not a cumulative
	// stat: it must survive sched_reset_stats.
	ts.Equal(uint64(1), stats.SystemTicks)
	ts.Equal(uint64(0), stats.Schedules)
}
