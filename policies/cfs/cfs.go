// Package cfs implements the completely fair scheduler policy (spec
// §4.6): a vruntime-ordered ready list with a cached leftmost, nice
// weighting, scheduling-latency-derived slices, and sleeper credit on
// wakeup. The canonical structure is a red-black tree; this
// implementation uses a sorted linked list over the same fixed
// node-pool pattern the rest of the package uses — see DESIGN.md for
// why that tradeoff was made here.
package cfs

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/go-foundations/schedcore/core"
	"github.com/go-foundations/schedcore/kernel"
	"github.com/go-foundations/schedcore/pool"
)

func init() {
	core.Register(core.CFS, New)
}

// niceToWeight is the standard nice[-20,19] -> scheduling weight table
// (index 0 == nice -20), giving each nice step roughly a 1.25x change
// in CPU share relative to its neighbor.
var niceToWeight = [40]int64{
	88761, 71755, 56483, 46273, 36291,
	29154, 23254, 18705, 14949, 11916,
	9548, 7620, 6100, 4904, 3906,
	3121, 2501, 1991, 1586, 1277,
	1024, 820, 655, 526, 423,
	335, 272, 215, 172, 137,
	110, 87, 70, 56, 45,
	36, 29, 23, 18, 15,
}

func weightForNice(nice int) int64 {
	if nice < -20 {
		nice = -20
	}
	if nice > 19 {
		nice = 19
	}
	return niceToWeight[nice+20]
}

type node struct {
	pid         int
	nice        int
	weight      int64
	vruntime    int64
	sumExec     int64
	sliceUsed   int64
	next, prev  int
}

type policy struct {
	deps  *core.Deps
	log   zerolog.Logger
	nodes *pool.Pool[node]
	byPid map[int]int
	head  int // leftmost (smallest vruntime); -1 when empty
	count int

	// savedVRuntime/savedNice survive a dequeue so a process that
	// blocks and wakes resumes near where it left off (with sleeper
	// credit) instead of being treated as a brand-new task.
	savedVRuntime map[int]int64
	savedNice     map[int]int

	minVRuntime int64
	running     int

	targetLatency  int64
	minGranularity int64
	weightNice0    int64
}

// New builds the CFS policy's VTable.
func New(log zerolog.Logger) *core.VTable {
	p := &policy{head: -1, running: -1, byPid: map[int]int{}}
	return &core.VTable{
		Name:       "cfs",
		Type:       core.CFS,
		Init:       p.init,
		Shutdown:   p.shutdown,
		Schedule:   p.schedule,
		Yield:      p.yield,
		Preempt:    p.preempt,
		Enqueue:    p.enqueue,
		Dequeue:    p.dequeue,
		PickNext:   p.pickNext,
		SetNice:    p.setNice,
		GetNice:    p.getNice,
		Tick:       p.tick,
		PrintStats: p.printStats,
		Validate:   p.validate,
		Dump:       p.dump,
	}
}

func (p *policy) init(d *core.Deps) error {
	p.deps = d
	p.log = d.Log
	p.nodes = pool.New[node](d.NProc)
	p.byPid = make(map[int]int)
	p.savedVRuntime = make(map[int]int64)
	p.savedNice = make(map[int]int)
	p.head, p.running, p.count, p.minVRuntime = -1, -1, 0, 0

	p.targetLatency = d.Config.CFSTargetLatency
	p.minGranularity = d.Config.CFSMinGranularity
	p.weightNice0 = d.Config.CFSWeightNice0
	return nil
}

func (p *policy) shutdown() error {
	p.nodes.Reset()
	p.byPid = map[int]int{}
	p.head, p.running, p.count, p.minVRuntime = -1, -1, 0, 0
	return nil
}

// calcDelta converts deltaExec real ticks into vruntime ticks scaled
// by weight relative to nice-0: heavier weight accrues vruntime more
// slowly, so it stays the leftmost (runnable) longer.
func (p *policy) calcDelta(deltaExec int64, weight int64) int64 {
	if weight <= 0 {
		weight = 1
	}
	d := deltaExec * p.weightNice0 / weight
	if d < 1 {
		d = 1
	}
	return d
}

func (p *policy) idealSlice() int64 {
	n := int64(p.count)
	if n <= 0 {
		n = 1
	}
	period := p.targetLatency
	if n*p.minGranularity > period {
		period = n * p.minGranularity
	}
	slice := period / n
	if slice < p.minGranularity {
		slice = p.minGranularity
	}
	return slice
}

func (p *policy) insertSorted(h int) {
	n := p.nodes.At(h)
	if p.head == -1 {
		n.next, n.prev = h, h
		p.head = h
		return
	}
	// Walk from the leftmost until we find the first node whose
	// vruntime is greater, and insert before it (a node that ties goes
	// behind the nodes it ties with).
	cur := p.head
	for {
		cn := p.nodes.At(cur)
		if cn.vruntime > n.vruntime {
			break
		}
		cur = cn.next
		if cur == p.head {
			break
		}
	}
	curNode := p.nodes.At(cur)
	prevHandle := curNode.prev
	prevNode := p.nodes.At(prevHandle)
	n.prev, n.next = prevHandle, cur
	prevNode.next = h
	curNode.prev = h
	if cur == p.head && n.vruntime < curNode.vruntime {
		p.head = h
	}
}

func (p *policy) unlink(h int) {
	n := p.nodes.At(h)
	if n.next == h {
		p.head = -1
		return
	}
	prevNode := p.nodes.At(n.prev)
	nextNode := p.nodes.At(n.next)
	prevNode.next = n.next
	nextNode.prev = n.prev
	if p.head == h {
		p.head = n.next
	}
}

func (p *policy) enqueue(pid int) error {
	if _, exists := p.byPid[pid]; exists {
		return nil
	}
	h, ok := p.nodes.Alloc()
	if !ok {
		return nil
	}

	nice := 0
	var vr int64
	if saved, seen := p.savedVRuntime[pid]; seen {
		nice = p.savedNice[pid]
		vr = saved
	} else {
		// Brand-new task: max(curr_vruntime, min_vruntime +
		// calc_delta(target_latency/2, weight)) per spec §4.6. A fresh
		// task's curr_vruntime is 0, so this is just a floor — the
		// placement penalty keeps it from cutting in front of tasks
		// that have already accrued runtime.
		vr = p.minVRuntime + p.calcDelta(p.targetLatency/2, weightForNice(nice))
		if vr < 0 {
			vr = 0
		}
	}

	*p.nodes.At(h) = node{pid: pid, nice: nice, weight: weightForNice(nice), vruntime: vr}
	p.byPid[pid] = h
	p.count++
	if _, seen := p.savedVRuntime[pid]; seen {
		p.applySleeperCredit(h)
	}
	p.insertSorted(h)
	return nil
}

func (p *policy) dequeue(pid int) error {
	h, ok := p.byPid[pid]
	if !ok {
		return nil
	}
	n := p.nodes.At(h)
	p.savedVRuntime[pid] = n.vruntime
	p.savedNice[pid] = n.nice

	p.unlink(h)
	delete(p.byPid, pid)
	p.nodes.Free(h)
	p.count--
	if p.running == pid {
		p.running = -1
	}
	return nil
}

func (p *policy) pickNext() (int, bool) {
	if p.head == -1 {
		return core.NoPid, false
	}
	return p.nodes.At(p.head).pid, true
}

func (p *policy) schedule() (bool, error) {
	next, ok := p.pickNext()
	if !ok {
		next = -1
	}
	if next != -1 {
		if h, exists := p.byPid[next]; exists {
			p.nodes.At(h).sliceUsed = 0
		}
	}
	switched := kernel.Dispatch(p.deps.Table, p.deps.Switch, &p.running, next)
	return switched, nil
}

func (p *policy) yield() error {
	h, ok := p.byPid[p.running]
	if !ok {
		return nil
	}
	n := p.nodes.At(h)
	// Raise this process's vruntime to the current leftmost's,
	// forfeiting its fairness lead for one round (spec §4.6).
	if p.head != -1 && p.head != h {
		target := p.nodes.At(p.head).vruntime
		if target > n.vruntime {
			p.unlink(h)
			n.vruntime = target
			p.insertSorted(h)
		}
	}
	p.deps.Resched()
	return nil
}

func (p *policy) preempt() error {
	p.deps.Resched()
	return nil
}

func (p *policy) tick() {
	h, ok := p.byPid[p.running]
	if !ok {
		return
	}
	n := p.nodes.At(h)
	delta := p.calcDelta(1, n.weight)
	n.sumExec++
	n.sliceUsed++

	p.unlink(h)
	n.vruntime += delta
	p.insertSorted(h)

	if p.head != -1 {
		leftmost := p.nodes.At(p.head).vruntime
		if leftmost < p.minVRuntime {
			leftmost = p.minVRuntime
		}
		if n.vruntime < leftmost {
			leftmost = n.vruntime
		}
		if leftmost > p.minVRuntime {
			p.minVRuntime = leftmost
		}
	}

	if p.head != h || n.sliceUsed >= p.idealSlice() {
		p.deps.Resched()
	}
}

// setNice reassigns pid's weight; a lower nice value accrues vruntime
// more slowly from this point on, gradually pulling it toward the
// leftmost over subsequent ticks.
func (p *policy) setNice(pid, nice int) error {
	h, ok := p.byPid[pid]
	if !ok {
		return core.ErrInvalidPid
	}
	if nice < -20 {
		nice = -20
	}
	if nice > 19 {
		nice = 19
	}
	n := p.nodes.At(h)
	n.nice = nice
	n.weight = weightForNice(nice)
	return nil
}

func (p *policy) getNice(pid int) (int, error) {
	h, ok := p.byPid[pid]
	if !ok {
		return 0, core.ErrInvalidPid
	}
	return p.nodes.At(h).nice, nil
}

// applySleeperCredit pulls a waking process's stored vruntime back
// toward min_vruntime (never below min_vruntime - target_latency), so
// a process that just blocked for I/O doesn't reappear hopelessly
// behind the CPU-bound crowd.
func (p *policy) applySleeperCredit(h int) {
	n := p.nodes.At(h)
	floor := p.minVRuntime - p.targetLatency
	if n.vruntime < floor {
		n.vruntime = floor
	}
	if n.vruntime > p.minVRuntime {
		n.vruntime = p.minVRuntime
	}
}

func (p *policy) printStats(w io.Writer) {
	fmt.Fprintf(w, "cfs: count=%d min_vruntime=%d ideal_slice=%d\n", p.count, p.minVRuntime, p.idealSlice())
}

func (p *policy) dump(w io.Writer) {
	fmt.Fprintln(w, "cfs timeline (leftmost first):")
	h := p.head
	for i := 0; i < p.count; i++ {
		n := p.nodes.At(h)
		fmt.Fprintf(w, "  pid=%d nice=%d vruntime=%d sum_exec=%d\n", n.pid, n.nice, n.vruntime, n.sumExec)
		h = n.next
	}
}

// validate checks spec §3's CFS invariant: the list is sorted
// ascending by vruntime and the leftmost's vruntime is no more than
// target_latency below min_vruntime.
func (p *policy) validate() (bool, error) {
	if p.head == -1 {
		return true, nil
	}
	h := p.head
	prev := int64(-1)
	steps := 0
	for {
		n := p.nodes.At(h)
		if prev >= 0 && n.vruntime < prev {
			return false, fmt.Errorf("cfs: pid %d vruntime=%d sorted after larger vruntime %d", n.pid, n.vruntime, prev)
		}
		prev = n.vruntime
		h = n.next
		steps++
		if h == p.head {
			break
		}
		if steps > p.count {
			return false, fmt.Errorf("cfs: traversal did not return to head within count=%d", p.count)
		}
	}
	if steps != p.count {
		return false, fmt.Errorf("cfs: traversal length %d != count %d", steps, p.count)
	}
	if p.nodes.At(p.head).vruntime < p.minVRuntime-p.targetLatency {
		return false, fmt.Errorf("cfs: leftmost vruntime %d far below min_vruntime %d", p.nodes.At(p.head).vruntime, p.minVRuntime)
	}
	return true, nil
}
