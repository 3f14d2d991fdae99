package core

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/go-foundations/schedcore/kernel"
	"github.com/go-foundations/schedcore/pool"
)

// genericNode backs the framework's fallback FIFO ready queue, used
// when the active policy's VTable leaves Enqueue/Dequeue nil (spec
// §4.1: "falls back to a generic FIFO ready queue").
type genericNode struct {
	pid        int
	next, prev int
}

// Scheduler is the framework core: policy selection/switch, global
// stats, tick/resched/yield/preempt, priority syscalls, and the
// generic ready-queue fallback (spec §4.1's "Framework core").
//
// All mutating operations mask interrupts for their scope (spec §5);
// cross-policy transitions additionally hold the binary semaphore.
type Scheduler struct {
	runID uuid.UUID
	log   zerolog.Logger

	cfg   Config
	table kernel.Table
	swap  kernel.ContextSwitchFunc

	irq *kernel.InterruptController
	sem *kernel.Semaphore

	mu sync.Mutex // protects the fields below against concurrent API callers

	active     *VTable
	activeType PolicyType
	initialized bool

	needResched bool
	ticks       uint64
	lastRunning int // pid the table last reported RUNNING, -1 if none

	stats     Stats
	procStats map[int]*ProcStats

	// fallback generic ready queue, used only while the active
	// policy's VTable.Enqueue/Dequeue are nil.
	fbPool *pool.Pool[genericNode]
	fbHead int // -1 when empty
	fbTail int
	fbIdx  map[int]int // pid -> node handle
}

// NewScheduler builds a framework instance over table/swap with cfg's
// tunables. The scheduler starts with no active policy; call Init to
// install one (spec: "initial scheduler_init on unknown type falls
// back to priority").
func NewScheduler(cfg Config, table kernel.Table, swap kernel.ContextSwitchFunc, log zerolog.Logger) *Scheduler {
	cfg.Clamp()
	id := uuid.New()
	s := &Scheduler{
		runID:     id,
		log:       log.With().Str("run_id", id.String()).Logger(),
		cfg:       cfg,
		table:     table,
		swap:      swap,
		irq:         &kernel.InterruptController{},
		sem:         kernel.NewSemaphore(),
		lastRunning: -1,
		procStats:   make(map[int]*ProcStats),
		fbPool:    pool.New[genericNode](cfg.NProc),
		fbHead:    -1,
		fbTail:    -1,
		fbIdx:     make(map[int]int),
	}
	return s
}

// RunID returns the scheduler instance's diagnostic identifier.
func (s *Scheduler) RunID() uuid.UUID { return s.runID }

// Config returns a copy of the active tunables.
func (s *Scheduler) Config() Config { return s.cfg }

// ---- scheduler_init / scheduler_shutdown / scheduler_switch ----

// Init installs typ as the active policy. An unknown type falls back
// to Priority (spec §7).
func (s *Scheduler) Init(typ PolicyType) error {
	s.sem.Wait()
	defer s.sem.Signal()

	mask := s.irq.Disable()
	defer s.irq.Restore(mask)

	vt, err := Create(typ, s.log)
	if err != nil {
		s.log.Warn().Stringer("requested", typ).Msg("unknown policy type on init, falling back to priority")
		vt, err = Create(Priority, s.log)
		if err != nil {
			return err
		}
		typ = Priority
	}
	return s.installLocked(typ, vt)
}

// Shutdown tears down the active policy, if any.
func (s *Scheduler) Shutdown() error {
	s.sem.Wait()
	defer s.sem.Signal()

	mask := s.irq.Disable()
	defer s.irq.Restore(mask)

	return s.shutdownActiveLocked()
}

// Switch tears down the current policy and installs typ (spec
// scheduler_switch). Processes already queued in the old policy's
// structures are NOT migrated — documented behavior, see DESIGN.md's
// Open Question on scheduler_switch. An unknown typ returns
// ErrUnknownPolicy and leaves the current policy running.
func (s *Scheduler) Switch(typ PolicyType) error {
	s.sem.Wait()
	defer s.sem.Signal()

	vt, err := Create(typ, s.log)
	if err != nil {
		return err
	}

	mask := s.irq.Disable()
	defer s.irq.Restore(mask)

	if err := s.shutdownActiveLocked(); err != nil {
		return err
	}
	if err := s.installLocked(typ, vt); err != nil {
		return err
	}
	s.stats.PolicySwitches++
	return nil
}

func (s *Scheduler) shutdownActiveLocked() error {
	if s.active == nil {
		return nil
	}
	if s.active.Shutdown != nil {
		if err := s.active.Shutdown(); err != nil {
			return err
		}
	}
	s.active = nil
	s.initialized = false
	s.lastRunning = -1
	return nil
}

func (s *Scheduler) installLocked(typ PolicyType, vt *VTable) error {
	deps := &Deps{
		NProc:  s.cfg.NProc,
		Config: s.cfg,
		Table:  s.table,
		Switch: s.swap,
		Resched: func() {
			s.mu.Lock()
			s.needResched = true
			s.mu.Unlock()
		},
		Log: s.log.With().Str("policy", typ.String()).Logger(),
	}
	if vt.Init != nil {
		if err := vt.Init(deps); err != nil {
			return fmt.Errorf("policy %s init: %w", typ, err)
		}
	}
	s.active = vt
	s.activeType = typ
	s.initialized = true
	return nil
}

// procStatsLocked returns pid's stats record, creating it on first
// touch. Callers must hold s.mu.
func (s *Scheduler) procStatsLocked(pid int) *ProcStats {
	ps, ok := s.procStats[pid]
	if !ok {
		ps = &ProcStats{Pid: pid}
		s.procStats[pid] = ps
	}
	return ps
}

// ActivePolicy returns the name of the currently active policy, or ""
// if none is installed.
func (s *Scheduler) ActivePolicy() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.Name
}

// ---- schedule / resched / yield / preempt ----

// Schedule runs the active policy's Schedule. It is idempotent when
// need_resched is false in the common path (spec §4.1 contract): it
// always clears need_resched and either performs a context switch or
// leaves all state unchanged.
func (s *Scheduler) Schedule() error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)

	s.mu.Lock()
	s.needResched = false
	active := s.active
	nproc := s.cfg.NProc
	s.mu.Unlock()

	if active == nil || active.Schedule == nil {
		return nil
	}
	switched, err := active.Schedule()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.stats.Schedules++
	if switched {
		s.stats.ContextSwitches++
	}
	s.mu.Unlock()
	s.creditNewlyRunning(nproc)
	return nil
}

// creditNewlyRunning scans the table for the currently RUNNING pid and
// credits its times_scheduled the first time it's seen running since
// the last scan. This covers both an ordinary context switch and the
// very first dispatch, which Dispatch itself deliberately doesn't
// count as a switch (spec: no outgoing context to save on bootstrap) —
// but a process's first dispatch is still a time it was scheduled.
func (s *Scheduler) creditNewlyRunning(nproc int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	running := -1
	for pid := 0; pid < nproc; pid++ {
		if s.table.State(pid) == kernel.RUNNING {
			running = pid
			break
		}
	}
	if running != -1 && running != s.lastRunning {
		s.procStatsLocked(running).TimesScheduled++
	}
	s.lastRunning = running
}

// Resched checks need_resched and, if set, runs Schedule. Call this on
// any return from interrupt or syscall (spec §2).
func (s *Scheduler) Resched() error {
	s.mu.Lock()
	pending := s.needResched
	s.mu.Unlock()
	if !pending {
		return nil
	}
	return s.Schedule()
}

// Yield forces the running process to give up the remainder of its
// quantum and reschedules.
func (s *Scheduler) Yield() error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)

	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil {
		return nil
	}
	if active.Yield != nil {
		if err := active.Yield(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.stats.Yields++
	s.mu.Unlock()
	return s.Resched()
}

// Preempt forces a reschedule point, e.g. from an external priority
// change or a higher-priority process becoming ready.
func (s *Scheduler) Preempt() error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)

	s.mu.Lock()
	active := s.active
	nproc := s.cfg.NProc
	for pid := 0; pid < nproc; pid++ {
		if s.table.State(pid) == kernel.RUNNING {
			s.procStatsLocked(pid).TimesPreempted++
		}
	}
	s.mu.Unlock()
	if active == nil {
		return nil
	}
	if active.Preempt != nil {
		if err := active.Preempt(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.stats.Preemptions++
	s.mu.Unlock()
	return s.Resched()
}

// ---- sched_ready / sched_block / sched_wakeup / sched_new_process / sched_exit ----

// Ready enqueues pid and transitions it to READY.
func (s *Scheduler) Ready(pid int) error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)

	if err := s.enqueueLocked(pid); err != nil {
		return err
	}
	s.table.SetState(pid, kernel.READY)
	return nil
}

// Block dequeues pid; the blocker is responsible for calling this
// before the process is externally moved out of READY (spec §5,
// "Cancellation and timeouts").
func (s *Scheduler) Block(pid int) error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)

	if err := s.dequeueLocked(pid); err != nil {
		return err
	}
	s.table.SetState(pid, kernel.BLOCKED)
	return nil
}

// Wakeup re-enqueues a blocked/sleeping process.
func (s *Scheduler) Wakeup(pid int) error {
	return s.Ready(pid)
}

// NewProcess enqueues a freshly created process.
func (s *Scheduler) NewProcess(pid int) error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)

	s.mu.Lock()
	s.procStatsLocked(pid)
	s.mu.Unlock()

	if err := s.enqueueLocked(pid); err != nil {
		return err
	}
	s.table.SetState(pid, kernel.READY)
	return nil
}

// Exit dequeues pid and marks it FREE. Per-process stats are kept
// (spec §7: "persist across policy switches").
func (s *Scheduler) Exit(pid int) error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)

	if err := s.dequeueLocked(pid); err != nil {
		return err
	}
	s.table.SetState(pid, kernel.FREE)
	return nil
}

func (s *Scheduler) enqueueLocked(pid int) error {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active != nil && active.Enqueue != nil {
		return active.Enqueue(pid)
	}
	return s.fallbackEnqueue(pid)
}

func (s *Scheduler) dequeueLocked(pid int) error {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active != nil && active.Dequeue != nil {
		return active.Dequeue(pid)
	}
	return s.fallbackDequeue(pid)
}

// PickNext exposes pick_next for diagnostics/tests.
func (s *Scheduler) PickNext() (int, bool) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active != nil && active.PickNext != nil {
		return active.PickNext()
	}
	return s.fallbackPickNext()
}

// ---- priority syscalls ----

// SetPriority clamps p to [0,99] and applies it, returning the process's
// previous priority. ErrInvalidPid is returned for pids outside
// [0,NProc) or in state FREE.
func (s *Scheduler) SetPriority(pid, p int) (int, error) {
	if pid < 0 || pid >= s.cfg.NProc || s.table.State(pid) == kernel.FREE {
		return 0, ErrInvalidPid
	}
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)

	old := s.table.Priority(pid)
	p = ClampPriority(p)
	s.table.SetPriority(pid, p)

	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active != nil && active.SetPriority != nil {
		if err := active.SetPriority(pid, p); err != nil {
			return old, err
		}
	}
	return old, nil
}

// GetPriority returns pid's current priority.
func (s *Scheduler) GetPriority(pid int) (int, error) {
	if pid < 0 || pid >= s.cfg.NProc || s.table.State(pid) == kernel.FREE {
		return 0, ErrInvalidPid
	}
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active != nil && active.GetPriority != nil {
		return active.GetPriority(pid)
	}
	return s.table.Priority(pid), nil
}

// Nice adjusts pid's priority by increment (negative raises priority,
// the classic nice() sign convention), returning the new priority. The
// single-argument signature spec §6 gives for nice() is read here as
// "nice(pid, increment)".
func (s *Scheduler) Nice(pid int, increment int) (int, error) {
	old, err := s.GetPriority(pid)
	if err != nil {
		return 0, err
	}
	_, err = s.SetPriority(pid, old-increment)
	if err != nil {
		return 0, err
	}
	return s.GetPriority(pid)
}

// BoostPriority and DecayPriority expose the corresponding vtable
// entries directly, so callers and tests can drive a boost or decay
// step on demand; the policies' own aging runs inside their Tick.
func (s *Scheduler) BoostPriority(pid int) error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.BoostPriority == nil {
		return nil
	}
	return active.BoostPriority(pid)
}

func (s *Scheduler) DecayPriority(pid int) error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.DecayPriority == nil {
		return nil
	}
	return active.DecayPriority(pid)
}

// ---- lottery syscalls ----

func (s *Scheduler) SetTickets(pid, tickets int) error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.SetTickets == nil {
		return nil
	}
	return active.SetTickets(pid, tickets)
}

func (s *Scheduler) GetTickets(pid int) (int, error) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.GetTickets == nil {
		return 0, nil
	}
	return active.GetTickets(pid)
}

func (s *Scheduler) Transfer(from, to, n int) error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.Transfer == nil {
		return nil
	}
	return active.Transfer(from, to, n)
}

func (s *Scheduler) Inflate(factor int) error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.Inflate == nil {
		return nil
	}
	return active.Inflate(factor)
}

func (s *Scheduler) Fairness() float64 {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.Fairness == nil {
		return 1
	}
	return active.Fairness()
}

func (s *Scheduler) LocalToGlobal(pid, localTicket int) (int, error) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.LocalToGlobal == nil {
		return 0, ErrNoActivePolicy
	}
	return active.LocalToGlobal(pid, localTicket)
}

// ---- CFS syscalls ----

func (s *Scheduler) SetNice(pid, nice int) error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.SetNice == nil {
		return nil
	}
	return active.SetNice(pid, nice)
}

func (s *Scheduler) GetNice(pid int) (int, error) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.GetNice == nil {
		return 0, nil
	}
	return active.GetNice(pid)
}

// ---- real-time syscalls ----

func (s *Scheduler) SetAlgorithm(alg RTAlgorithm) error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.SetAlgorithm == nil {
		return nil
	}
	return active.SetAlgorithm(alg)
}

func (s *Scheduler) GetAlgorithm() RTAlgorithm {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.GetAlgorithm == nil {
		return EDF
	}
	return active.GetAlgorithm()
}

func (s *Scheduler) SetParams(pid int, params RTParams) error {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.SetParams == nil {
		return nil
	}
	return active.SetParams(pid, params)
}

func (s *Scheduler) GetParams(pid int) (RTTaskInfo, bool) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.GetParams == nil {
		return RTTaskInfo{}, false
	}
	return active.GetParams(pid)
}

func (s *Scheduler) CheckSchedulable() RTSchedulability {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.CheckSchedulable == nil {
		return RTSchedulability{Schedulable: true}
	}
	return active.CheckSchedulable()
}

func (s *Scheduler) ResponseTime(pid int) (int64, bool) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.ResponseTime == nil {
		return 0, false
	}
	return active.ResponseTime(pid)
}

// ---- quantum ----

func (s *Scheduler) SetQuantum(q int) {
	mask := s.irq.Disable()
	defer s.irq.Restore(mask)
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active != nil && active.SetQuantum != nil {
		active.SetQuantum(q)
		return
	}
	s.cfg.DefaultQuantum = ClampRRQuantum(q)
}

func (s *Scheduler) GetQuantum() int {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active != nil && active.GetQuantum != nil {
		return active.GetQuantum()
	}
	return s.cfg.DefaultQuantum
}

// ---- tick ----

// Tick advances the global tick, delegates to the active policy's
// Tick, and then runs Resched if need_resched was raised (spec §2: "on
// any return from interrupt ... if need_resched is set, schedule
// runs").
func (s *Scheduler) Tick() error {
	mask := s.irq.Disable()
	s.mu.Lock()
	s.ticks++
	active := s.active
	nproc := s.cfg.NProc
	s.mu.Unlock()
	s.irq.Restore(mask)

	if active != nil && active.Tick != nil {
		active.Tick()
	}

	s.accrueProcTicks(nproc)

	return s.Resched()
}

// accrueProcTicks scans the process table once per tick, crediting
// ticks_run to whichever pid is RUNNING and wait_ticks to every pid
// READY, per §6's sched_get_proc_stats contract (SPEC_FULL §11).
func (s *Scheduler) accrueProcTicks(nproc int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pid := 0; pid < nproc; pid++ {
		switch s.table.State(pid) {
		case kernel.RUNNING:
			s.procStatsLocked(pid).TicksRun++
		case kernel.READY:
			s.procStatsLocked(pid).WaitTicks++
		}
	}
}

// GetTime returns the monotone system tick counter.
func (s *Scheduler) GetTime() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// ---- stats / validate / dump ----

// GetStats returns a snapshot of the global counters. SystemTicks
// always reflects the live system clock, even across ResetStats: it is
// the monotonic clock spec §5 requires, not a cumulative stat.
func (s *Scheduler) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.SystemTicks = s.ticks
	return out
}

func (s *Scheduler) GetProcStats(pid int) (ProcStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.procStats[pid]
	if !ok {
		return ProcStats{}, false
	}
	return *ps, true
}

func (s *Scheduler) ResetStats() {
	s.mu.Lock()
	s.stats = Stats{}
	for _, ps := range s.procStats {
		*ps = ProcStats{Pid: ps.Pid}
	}
	active := s.active
	s.mu.Unlock()
	if active != nil && active.ResetStats != nil {
		active.ResetStats()
	}
}

func (s *Scheduler) PrintStats(w io.Writer) {
	s.mu.Lock()
	st := s.stats
	st.SystemTicks = s.ticks
	active := s.active
	s.mu.Unlock()

	fmt.Fprintf(w, "system_ticks=%d schedules=%d context_switches=%d yields=%d preemptions=%d policy_switches=%d pool_exhaustions=%d\n",
		st.SystemTicks, st.Schedules, st.ContextSwitches, st.Yields, st.Preemptions, st.PolicySwitches, st.PoolExhaustions)
	if active != nil && active.PrintStats != nil {
		active.PrintStats(w)
	}
}

// Validate runs the active policy's own Validate, plus the generic
// fallback structure's bookkeeping invariant, aggregating every
// violation found into one *multierror.Error (spec §7: "Invariant
// violation ... reported through the log and returned as false; the
// core continues to run").
func (s *Scheduler) Validate() (bool, error) {
	var result *multierror.Error

	s.mu.Lock()
	active := s.active
	fbInUse := s.fbPool.InUse()
	s.mu.Unlock()

	if n := s.fallbackCount(); n != fbInUse {
		result = multierror.Append(result, fmt.Errorf("fallback queue: counted %d nodes but pool reports %d in use", n, fbInUse))
	}

	if active != nil && active.Validate != nil {
		ok, err := active.Validate()
		if !ok && err != nil {
			result = multierror.Append(result, err)
		}
	}

	if result != nil {
		s.log.Warn().Err(result).Msg("sched_validate found invariant violations")
		return false, result
	}
	return true, nil
}

func (s *Scheduler) Dump(w io.Writer) {
	s.mu.Lock()
	fmt.Fprintf(w, "schedcore run=%s policy=%s ticks=%d\n", s.runID, s.activeType, s.ticks)
	active := s.active
	s.mu.Unlock()
	if active != nil && active.Dump != nil {
		active.Dump(w)
	}
}

// ---- generic fallback FIFO ready queue ----

func (s *Scheduler) fallbackEnqueue(pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.fbIdx[pid]; exists {
		return nil
	}
	h, ok := s.fbPool.Alloc()
	if !ok {
		s.stats.PoolExhaustions++
		return nil // silent no-op per spec §4.8/§7
	}
	node := s.fbPool.At(h)
	node.pid = pid
	if s.fbHead == -1 {
		node.next, node.prev = h, h
		s.fbHead, s.fbTail = h, h
	} else {
		tail := s.fbPool.At(s.fbTail)
		head := s.fbPool.At(s.fbHead)
		node.prev = s.fbTail
		node.next = s.fbHead
		tail.next = h
		head.prev = h
		s.fbTail = h
	}
	s.fbIdx[pid] = h
	return nil
}

func (s *Scheduler) fallbackDequeue(pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.fbIdx[pid]
	if !ok {
		return nil // dequeue on non-member is a no-op
	}
	delete(s.fbIdx, pid)
	node := s.fbPool.At(h)

	if node.next == h { // sole element
		s.fbHead, s.fbTail = -1, -1
	} else {
		prev := s.fbPool.At(node.prev)
		next := s.fbPool.At(node.next)
		prev.next = node.next
		next.prev = node.prev
		if s.fbHead == h {
			s.fbHead = node.next
		}
		if s.fbTail == h {
			s.fbTail = node.prev
		}
	}
	s.fbPool.Free(h)
	return nil
}

func (s *Scheduler) fallbackPickNext() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fbHead == -1 {
		return NoPid, false
	}
	return s.fbPool.At(s.fbHead).pid, true
}

func (s *Scheduler) fallbackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fbIdx)
}
