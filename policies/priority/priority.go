// Package priority implements the aging priority policy (spec §4.3): a
// single list kept sorted descending by current_priority, with an
// aging loop, a starvation guard, and decay of the running process.
package priority

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/go-foundations/schedcore/core"
	"github.com/go-foundations/schedcore/kernel"
	"github.com/go-foundations/schedcore/pool"
)

func init() {
	core.Register(core.Priority, New)
}

type node struct {
	pid                        int
	basePriority, currentPrio  int
	waitTime                   int
	lastRun                    uint64
	next                       int
}

type policy struct {
	deps  *core.Deps
	log   zerolog.Logger
	nodes *pool.Pool[node]
	byPid map[int]int
	head  int // -1 when empty
	count int

	running int
	ticks   uint64

	agingInterval, agingAmount int
	starvationTicks, starvationBoost int
	decayAmount int
}

// New builds the priority policy's VTable.
func New(log zerolog.Logger) *core.VTable {
	p := &policy{head: -1, running: -1, byPid: map[int]int{}}
	return &core.VTable{
		Name:          "priority",
		Type:          core.Priority,
		Init:          p.init,
		Shutdown:      p.shutdown,
		Schedule:      p.schedule,
		Preempt:       p.preempt,
		Enqueue:       p.enqueue,
		Dequeue:       p.dequeue,
		PickNext:      p.pickNext,
		SetPriority:   p.setPriority,
		GetPriority:   p.getPriority,
		BoostPriority: p.boostPriority,
		DecayPriority: p.decayPriority,
		Tick:          p.tick,
		PrintStats:    p.printStats,
		Validate:      p.validate,
		Dump:          p.dump,
	}
}

func (p *policy) init(d *core.Deps) error {
	p.deps = d
	p.log = d.Log
	p.nodes = pool.New[node](d.NProc)
	p.byPid = make(map[int]int)
	p.head, p.running, p.count, p.ticks = -1, -1, 0, 0

	p.agingInterval = d.Config.AgingInterval
	p.agingAmount = d.Config.AgingAmount
	p.starvationTicks = d.Config.StarvationTicks
	p.starvationBoost = d.Config.StarvationBoost
	p.decayAmount = d.Config.PriorityDecayAmount
	return nil
}

func (p *policy) shutdown() error {
	p.nodes.Reset()
	p.byPid = map[int]int{}
	p.head, p.running, p.count = -1, -1, 0
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
	prio := core.ClampPriority(p.deps.Table.Priority(pid))
	*p.nodes.At(h) = node{pid: pid, basePriority: prio, currentPrio: prio}
	p.byPid[pid] = h
	p.count++
	p.insertSorted(h)
	return nil
}

func (p *policy) dequeue(pid int) error {
	h, ok := p.byPid[pid]
	if !ok {
		return nil
	}
	p.unlink(h)
	delete(p.byPid, pid)
	p.nodes.Free(h)
	p.count--
	if p.running == pid {
		p.running = -1
	}
	return nil
}

// insertSorted links an already-populated, detached node h into the
// list at the position that keeps current_priority descending.
func (p *policy) insertSorted(h int) {
	n := p.nodes.At(h)
	if p.head == -1 {
		n.next = -1
		p.head = h
		return
	}
	if p.nodes.At(p.head).currentPrio <= n.currentPrio {
		n.next = p.head
		p.head = h
		return
	}
	prev := p.head
	for p.nodes.At(prev).next != -1 && p.nodes.At(p.nodes.At(prev).next).currentPrio > n.currentPrio {
		prev = p.nodes.At(prev).next
	}
	prevNode := p.nodes.At(prev)
	n.next = prevNode.next
	prevNode.next = h
}

// unlink removes h from the list without freeing it.
func (p *policy) unlink(h int) {
	if p.head == h {
		p.head = p.nodes.At(h).next
		return
	}
	prev := p.head
	for prev != -1 && p.nodes.At(prev).next != h {
		prev = p.nodes.At(prev).next
	}
	if prev != -1 {
		p.nodes.At(prev).next = p.nodes.At(h).next
	}
}

// resort rebuilds the sorted order from the existing set of nodes,
// used after a bulk priority change (aging/starvation pass) touches
// more than one node at once.
func (p *policy) resort() {
	handles := make([]int, 0, p.count)
	h := p.head
	for h != -1 {
		handles = append(handles, h)
		h = p.nodes.At(h).next
	}
	p.head = -1
	for _, h := range handles {
		p.insertSorted(h)
	}
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
	switched := kernel.Dispatch(p.deps.Table, p.deps.Switch, &p.running, next)
	if next != -1 {
		if h, ok := p.byPid[next]; ok {
			p.nodes.At(h).waitTime = 0
			p.nodes.At(h).lastRun = p.ticks
		}
	}
	return switched, nil
}

func (p *policy) preempt() error {
	p.deps.Resched()
	return nil
}

// setPriority clamps p to [0,99] and re-inserts the node under a fresh
// handle, per spec §4.3 — this loses wait_time/last_run, matching the
// (possibly unintended) behavior spec §9's Open Questions flags; see
// DESIGN.md for the decision to keep it.
func (p *policy) setPriority(pid, newPrio int) error {
	h, ok := p.byPid[pid]
	if !ok {
		return nil
	}
	oldHead := p.head
	p.unlink(h)
	p.nodes.Free(h)

	nh, ok := p.nodes.Alloc()
	if !ok {
		delete(p.byPid, pid)
		p.count--
		return nil
	}
	clamped := core.ClampPriority(newPrio)
	*p.nodes.At(nh) = node{pid: pid, basePriority: clamped, currentPrio: clamped}
	p.byPid[pid] = nh
	p.insertSorted(nh)

	if p.head != oldHead {
		p.deps.Resched()
	}
	return nil
}

func (p *policy) getPriority(pid int) (int, error) {
	h, ok := p.byPid[pid]
	if !ok {
		return 0, core.ErrInvalidPid
	}
	return p.nodes.At(h).currentPrio, nil
}

func (p *policy) boostPriority(pid int) error {
	h, ok := p.byPid[pid]
	if !ok {
		return nil
	}
	p.unlink(h)
	n := p.nodes.At(h)
	n.currentPrio = core.ClampPriority(n.currentPrio + p.starvationBoost)
	n.waitTime = 0
	p.insertSorted(h)
	return nil
}

func (p *policy) decayPriority(pid int) error {
	h, ok := p.byPid[pid]
	if !ok {
		return nil
	}
	p.unlink(h)
	n := p.nodes.At(h)
	n.currentPrio -= p.decayAmount
	if n.currentPrio < n.basePriority {
		n.currentPrio = n.basePriority
	}
	p.insertSorted(h)
	return nil
}

func (p *policy) tick() {
	p.ticks++

	// Starvation guard: every queued node's wait_time advances; any
	// node over the threshold gets boosted and reset.
	boosted := false
	for h := p.head; h != -1; h = p.nodes.At(h).next {
		n := p.nodes.At(h)
		n.waitTime++
		if n.waitTime > p.starvationTicks {
			n.currentPrio = core.ClampPriority(n.currentPrio + p.starvationBoost)
			n.waitTime = 0
			boosted = true
		}
	}

	// Periodic global aging.
	aged := false
	if p.agingInterval > 0 && p.ticks%uint64(p.agingInterval) == 0 {
		for h := p.head; h != -1; h = p.nodes.At(h).next {
			n := p.nodes.At(h)
			n.currentPrio = core.ClampPriority(n.currentPrio + p.agingAmount)
		}
		aged = true
	}

	// Decay the running process's current_priority toward its base,
	// charging it for the CPU time it just consumed.
	if p.running != -1 {
		if h, ok := p.byPid[p.running]; ok {
			n := p.nodes.At(h)
			n.currentPrio -= p.decayAmount
			if n.currentPrio < n.basePriority {
				n.currentPrio = n.basePriority
			}
		}
	}

	if boosted || aged || p.running != -1 {
		oldHead, _ := p.pickNext()
		p.resort()
		newHead, _ := p.pickNext()
		if oldHead != newHead {
			p.deps.Resched()
		}
	}
}

func (p *policy) printStats(w io.Writer) {
	fmt.Fprintf(w, "priority: count=%d ticks=%d\n", p.count, p.ticks)
}

func (p *policy) dump(w io.Writer) {
	fmt.Fprintln(w, "priority ready list (head first):")
	for h := p.head; h != -1; h = p.nodes.At(h).next {
		n := p.nodes.At(h)
		fmt.Fprintf(w, "  pid=%d base=%d current=%d wait_time=%d\n", n.pid, n.basePriority, n.currentPrio, n.waitTime)
	}
}

// validate checks spec §3's PRIO invariant: adjacent pairs are
// non-increasing in current_priority, and base <= current <= 99 for
// every node.
func (p *policy) validate() (bool, error) {
	count := 0
	prevPrio := 100
	for h := p.head; h != -1; h = p.nodes.At(h).next {
		n := p.nodes.At(h)
		if n.currentPrio > prevPrio {
			return false, fmt.Errorf("priority: pid %d (current=%d) sorted after higher-priority node", n.pid, n.currentPrio)
		}
		if n.currentPrio < n.basePriority || n.currentPrio > 99 || n.basePriority < 0 {
			return false, fmt.Errorf("priority: pid %d violates base<=current<=99 (base=%d current=%d)", n.pid, n.basePriority, n.currentPrio)
		}
		prevPrio = n.currentPrio
		count++
	}
	if count != p.count {
		return false, fmt.Errorf("priority: traversal length %d != count %d", count, p.count)
	}
	return true, nil
}
