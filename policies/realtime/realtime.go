// Package realtime implements the real-time scheduling policy (spec
// §4.7): a fixed-cap pool of periodic tasks selected by EDF, RMS, DMS,
// or LLF, released on their period, and disciplined by a per-task
// deadline-miss policy.
package realtime

import (
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog"

	"github.com/go-foundations/schedcore/core"
	"github.com/go-foundations/schedcore/kernel"
	"github.com/go-foundations/schedcore/pool"
)

func init() {
	core.Register(core.RealTime, New)
}

type taskState int

const (
	waiting taskState = iota // not released, or finished its current instance
	ready
	running
	aborted // current instance abandoned by MissAbort; still released again next period
)

type node struct {
	pid    int
	params core.RTParams

	st taskState

	nextRelease      int64
	releaseTime      int64
	absoluteDeadline int64
	remainingTime    int64

	instances      int64
	completions    int64
	deadlineMisses int64
	missedInstance bool // guards against re-counting the same miss every tick

	rmsPriority int
	laxity      int64
}

type policy struct {
	deps  *core.Deps
	log   zerolog.Logger
	nodes *pool.Pool[node]
	byPid map[int]int

	algorithm core.RTAlgorithm
	running   int
	now       int64

	defaultPeriod, defaultDeadline, defaultWCET int64
}

// New builds the real-time policy's VTable.
func New(log zerolog.Logger) *core.VTable {
	p := &policy{running: -1, byPid: map[int]int{}}
	return &core.VTable{
		Name:             "realtime",
		Type:             core.RealTime,
		Init:             p.init,
		Shutdown:         p.shutdown,
		Schedule:         p.schedule,
		Yield:            p.yield,
		Preempt:          p.preempt,
		Enqueue:          p.enqueue,
		Dequeue:          p.dequeue,
		PickNext:         p.pickNext,
		Tick:             p.tick,
		SetAlgorithm:     p.setAlgorithm,
		GetAlgorithm:     p.getAlgorithm,
		SetParams:        p.setParams,
		GetParams:        p.getParams,
		CheckSchedulable: p.checkSchedulable,
		ResponseTime:     p.responseTime,
		PrintStats:       p.printStats,
		Validate:         p.validate,
		Dump:             p.dump,
	}
}

func (p *policy) init(d *core.Deps) error {
	p.deps = d
	p.log = d.Log
	poolCap := d.Config.RTMaxTasks
	if poolCap <= 0 || poolCap > d.NProc {
		poolCap = d.NProc
	}
	p.nodes = pool.New[node](poolCap)
	p.byPid = make(map[int]int)
	p.running, p.now = -1, 0
	p.algorithm = core.EDF

	p.defaultPeriod = int64(d.Config.RTDefaultPeriod)
	p.defaultDeadline = int64(d.Config.RTDefaultDeadline)
	p.defaultWCET = int64(d.Config.RTDefaultWCET)
	return nil
}

func (p *policy) shutdown() error {
	p.nodes.Reset()
	p.byPid = map[int]int{}
	p.running, p.now = -1, 0
	return nil
}

func (p *policy) enqueue(pid int) error {
	if _, exists := p.byPid[pid]; exists {
		return nil
	}
	h, ok := p.nodes.Alloc()
	if !ok {
		return nil
	}
	params := core.RTParams{Period: p.defaultPeriod, Deadline: p.defaultDeadline, WCET: p.defaultWCET}
	*p.nodes.At(h) = node{pid: pid, params: params, st: waiting, nextRelease: p.now + params.Phase}
	p.byPid[pid] = h
	p.recomputeStaticPriorities()
	return nil
}

func (p *policy) dequeue(pid int) error {
	h, ok := p.byPid[pid]
	if !ok {
		return nil
	}
	p.nodes.Free(h)
	delete(p.byPid, pid)
	if p.running == pid {
		p.running = -1
	}
	p.recomputeStaticPriorities()
	return nil
}

// selectionKey reports the value pickNext minimizes for n under the
// active algorithm; smaller wins, ties break on pid.
func (p *policy) selectionKey(n *node) int64 {
	switch p.algorithm {
	case core.RMS, core.DMS:
		return int64(-n.rmsPriority) // highest priority (largest number) sorts first
	case core.LLF:
		return n.laxity
	default: // EDF
		return n.absoluteDeadline
	}
}

func (p *policy) pickNext() (int, bool) {
	best := -1
	var bestKey int64
	var bestPid int
	for pid, h := range p.byPid {
		n := p.nodes.At(h)
		if n.st != ready && n.st != running {
			continue
		}
		key := p.selectionKey(n)
		if best == -1 || key < bestKey || (key == bestKey && pid < bestPid) {
			best, bestKey, bestPid = h, key, pid
		}
	}
	if best == -1 {
		return core.NoPid, false
	}
	return bestPid, true
}

func (p *policy) schedule() (bool, error) {
	next, ok := p.pickNext()
	if !ok {
		next = -1
	}
	if oldH, exists := p.byPid[p.running]; exists && p.running != next {
		old := p.nodes.At(oldH)
		if old.st == running {
			old.st = ready
		}
	}
	switched := kernel.Dispatch(p.deps.Table, p.deps.Switch, &p.running, next)
	if next != -1 {
		if h, exists := p.byPid[next]; exists {
			p.nodes.At(h).st = running
		}
	}
	return switched, nil
}

func (p *policy) yield() error {
	p.deps.Resched()
	return nil
}

func (p *policy) preempt() error {
	p.deps.Resched()
	return nil
}

// release makes n runnable for its next instance.
func (p *policy) release(n *node) {
	n.releaseTime = p.now
	n.absoluteDeadline = p.now + n.params.Deadline
	n.remainingTime = n.params.WCET
	n.st = ready
	n.instances++
	n.missedInstance = false
	n.nextRelease = n.releaseTime + n.params.Period
}

func (p *policy) tick() {
	p.now++

	if h, exists := p.byPid[p.running]; exists {
		n := p.nodes.At(h)
		n.remainingTime--
		if n.remainingTime <= 0 {
			n.completions++
			n.st = waiting
			p.running = -1
		}
	}

	for _, h := range p.byPid {
		n := p.nodes.At(h)
		if n.st != ready && n.st != running {
			continue
		}
		if p.now > n.absoluteDeadline && !n.missedInstance {
			n.deadlineMisses++
			n.missedInstance = true
			switch n.params.MissPolicy {
			case core.MissSkip:
				n.st = waiting
			case core.MissAbort:
				n.st = aborted
				n.remainingTime = 0
			case core.MissNotify:
				p.log.Warn().Int("pid", n.pid).Int64("now", p.now).Int64("deadline", n.absoluteDeadline).Msg("realtime: deadline miss")
			case core.MissContinue:
				// keep running/ready as-is
			}
		}
	}

	for _, h := range p.byPid {
		n := p.nodes.At(h)
		if (n.st == waiting || n.st == aborted) && p.now >= n.nextRelease {
			p.release(n)
		}
	}

	if p.algorithm == core.LLF {
		for _, h := range p.byPid {
			n := p.nodes.At(h)
			if n.st == ready || n.st == running {
				n.laxity = n.absoluteDeadline - p.now - n.remainingTime
			}
		}
	}

	if next, ok := p.pickNext(); !ok || next != p.running {
		p.deps.Resched()
	}
}

// recomputeStaticPriorities assigns RMS/DMS priorities by sorting all
// tracked tasks by period (RMS) or deadline (DMS) ascending and
// numbering them N down to 1, per spec §4.7.
func (p *policy) recomputeStaticPriorities() {
	if p.algorithm != core.RMS && p.algorithm != core.DMS {
		return
	}
	type entry struct {
		h   int
		key int64
		pid int
	}
	entries := make([]entry, 0, len(p.byPid))
	for pid, h := range p.byPid {
		n := p.nodes.At(h)
		key := n.params.Period
		if p.algorithm == core.DMS {
			key = n.params.Deadline
		}
		entries = append(entries, entry{h: h, key: key, pid: pid})
	}
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && (entries[j].key < entries[j-1].key ||
			(entries[j].key == entries[j-1].key && entries[j].pid < entries[j-1].pid)) {
			entries[j], entries[j-1] = entries[j-1], entries[j]
			j--
		}
	}
	n := len(entries)
	for i, e := range entries {
		p.nodes.At(e.h).rmsPriority = n - i
	}
}

func (p *policy) setAlgorithm(alg core.RTAlgorithm) error {
	p.algorithm = alg
	p.recomputeStaticPriorities()
	if alg == core.LLF {
		for _, h := range p.byPid {
			n := p.nodes.At(h)
			if n.st == ready || n.st == running {
				n.laxity = n.absoluteDeadline - p.now - n.remainingTime
			}
		}
	}
	p.deps.Resched()
	return nil
}

func (p *policy) getAlgorithm() core.RTAlgorithm { return p.algorithm }

func (p *policy) setParams(pid int, params core.RTParams) error {
	h, ok := p.byPid[pid]
	if !ok {
		return core.ErrInvalidPid
	}
	n := p.nodes.At(h)
	n.params = params
	if n.st == waiting {
		n.nextRelease = p.now + params.Phase
	}
	p.recomputeStaticPriorities()
	return nil
}

func (p *policy) stateName(st taskState) string {
	switch st {
	case waiting:
		return "waiting"
	case ready:
		return "ready"
	case running:
		return "running"
	case aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

func (p *policy) getParams(pid int) (core.RTTaskInfo, bool) {
	h, ok := p.byPid[pid]
	if !ok {
		return core.RTTaskInfo{}, false
	}
	n := p.nodes.At(h)
	return core.RTTaskInfo{
		Pid:              n.pid,
		Params:           n.params,
		State:            p.stateName(n.st),
		ReleaseTime:      n.releaseTime,
		AbsoluteDeadline: n.absoluteDeadline,
		RemainingTime:    n.remainingTime,
		Instances:        n.instances,
		Completions:      n.completions,
		DeadlineMisses:   n.deadlineMisses,
		RMSPriority:      n.rmsPriority,
		Laxity:           n.laxity,
	}, true
}

// checkSchedulable runs the advisory test for the active algorithm
// (spec §4.7): EDF/DMS/LLF use total utilization against 1; RMS uses
// the Liu-Layland bound.
func (p *policy) checkSchedulable() core.RTSchedulability {
	var util float64
	n := 0
	for _, h := range p.byPid {
		t := p.nodes.At(h)
		if t.params.Period <= 0 {
			continue
		}
		util += float64(t.params.WCET) / float64(t.params.Period)
		n++
	}
	if p.algorithm == core.RMS && n > 0 {
		bound := float64(n) * (math.Pow(2, 1.0/float64(n)) - 1)
		return core.RTSchedulability{Schedulable: util <= bound, Utilization: util}
	}
	return core.RTSchedulability{Schedulable: util <= 1.0, Utilization: util}
}

// responseTime runs the classic fixed-point response-time recurrence
// R = wcet + sum(ceil(R/Tj)*wcetj) over higher-priority tasks,
// declared infeasible (ok=false) once R exceeds pid's deadline. Only
// meaningful under RMS/DMS, where "higher priority" is well-defined
// independent of current remaining_time; EDF/LLF report ok=false.
func (p *policy) responseTime(pid int) (int64, bool) {
	if p.algorithm != core.RMS && p.algorithm != core.DMS {
		return 0, false
	}
	h, ok := p.byPid[pid]
	if !ok {
		return 0, false
	}
	target := p.nodes.At(h)

	type hp struct{ period, wcet int64 }
	var higher []hp
	for other, oh := range p.byPid {
		if other == pid {
			continue
		}
		on := p.nodes.At(oh)
		if on.rmsPriority > target.rmsPriority {
			higher = append(higher, hp{period: on.params.Period, wcet: on.params.WCET})
		}
	}

	r := target.params.WCET
	for iter := 0; iter < 1000; iter++ {
		next := target.params.WCET
		for _, j := range higher {
			if j.period <= 0 {
				continue
			}
			next += ceilDiv(r, j.period) * j.wcet
		}
		if next == r {
			break
		}
		r = next
		if r > target.params.Deadline {
			return r, false
		}
	}
	return r, r <= target.params.Deadline
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func (p *policy) printStats(w io.Writer) {
	sched := p.checkSchedulable()
	fmt.Fprintf(w, "realtime: algorithm=%s tasks=%d utilization=%.3f schedulable=%t\n",
		p.algorithm, len(p.byPid), sched.Utilization, sched.Schedulable)
}

func (p *policy) dump(w io.Writer) {
	fmt.Fprintf(w, "realtime tasks (algorithm=%s, now=%d):\n", p.algorithm, p.now)
	for pid, h := range p.byPid {
		n := p.nodes.At(h)
		fmt.Fprintf(w, "  pid=%d state=%s period=%d deadline=%d wcet=%d remaining=%d misses=%d\n",
			pid, p.stateName(n.st), n.params.Period, n.params.Deadline, n.params.WCET, n.remainingTime, n.deadlineMisses)
	}
}

// validate checks spec §3's RT invariant: once released, a task's
// absolute_deadline matches release_time+deadline, and remaining_time
// never exceeds wcet.
func (p *policy) validate() (bool, error) {
	for pid, h := range p.byPid {
		n := p.nodes.At(h)
		if n.st == ready || n.st == running {
			if n.absoluteDeadline != n.releaseTime+n.params.Deadline {
				return false, fmt.Errorf("realtime: pid %d absolute_deadline=%d != release_time+deadline=%d", pid, n.absoluteDeadline, n.releaseTime+n.params.Deadline)
			}
			if n.remainingTime > n.params.WCET {
				return false, fmt.Errorf("realtime: pid %d remaining_time=%d > wcet=%d", pid, n.remainingTime, n.params.WCET)
			}
		}
	}
	return true, nil
}
