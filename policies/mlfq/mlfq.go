// Package mlfq implements the multi-level feedback queue policy (spec
// §4.4): eight FIFO levels with quantum 2*2^level, demotion on
// allotment exhaustion, periodic global boost, and an I/O bonus for
// processes that repeatedly re-enter the ready list.
package mlfq

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/go-foundations/schedcore/core"
	"github.com/go-foundations/schedcore/kernel"
	"github.com/go-foundations/schedcore/pool"
)

const numLevelsCap = 8

func init() {
	core.Register(core.MLFQ, New)
}

type node struct {
	pid        int
	level      int
	next, prev int
}

// meta is per-pid bookkeeping that survives a dequeue/enqueue pair, so
// a process that blocks and wakes keeps its level and accrued I/O
// credit instead of restarting at its banded initial level every time.
type meta struct {
	valid         bool
	level         int
	timeUsed      int
	sliceRemain   int
	ioCount       int
}

type policy struct {
	deps  *core.Deps
	log   zerolog.Logger
	nodes *pool.Pool[node]
	byPid map[int]int

	numLevels     int
	boostInterval int
	ioBonusLevels int
	ioEventsBump  int

	heads [numLevelsCap]int // -1 when a level is empty
	count [numLevelsCap]int

	metaByPid map[int]*meta
	running   int
	ticks     uint64
}

// New builds the MLFQ policy's VTable.
func New(log zerolog.Logger) *core.VTable {
	p := &policy{running: -1, byPid: map[int]int{}, metaByPid: map[int]*meta{}}
	for i := range p.heads {
		p.heads[i] = -1
	}
	return &core.VTable{
		Name:       "mlfq",
		Type:       core.MLFQ,
		Init:       p.init,
		Shutdown:   p.shutdown,
		Schedule:   p.schedule,
		Yield:      p.yield,
		Preempt:    p.preempt,
		Enqueue:    p.enqueue,
		Dequeue:    p.dequeue,
		PickNext:   p.pickNext,
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
	p.metaByPid = make(map[int]*meta)
	p.running = -1
	p.ticks = 0
	for i := range p.heads {
		p.heads[i] = -1
		p.count[i] = 0
	}

	p.numLevels = d.Config.MLFQNumLevels
	if p.numLevels <= 0 || p.numLevels > numLevelsCap {
		p.numLevels = numLevelsCap
	}
	p.boostInterval = d.Config.MLFQBoostInterval
	p.ioBonusLevels = d.Config.MLFQIOBonusLevels
	p.ioEventsBump = d.Config.MLFQIOEventsToBump
	return nil
}

func (p *policy) shutdown() error {
	p.nodes.Reset()
	p.byPid = map[int]int{}
	p.metaByPid = map[int]*meta{}
	p.running = -1
	for i := range p.heads {
		p.heads[i] = -1
		p.count[i] = 0
	}
	return nil
}

func (p *policy) quantum(level int) int { return 2 << uint(level) } // 2*2^level
func (p *policy) allotment(level int) int { return 2 * p.quantum(level) }

func (p *policy) bandedLevel(prio int) int {
	switch {
	case prio >= 75:
		return 0
	case prio >= 50:
		return 2
	case prio >= 25:
		return 4
	default:
		return 6
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

	m, seen := p.metaByPid[pid]
	if !seen {
		m = &meta{valid: true, level: p.bandedLevel(p.deps.Table.Priority(pid))}
		p.metaByPid[pid] = m
	} else {
		// Re-entering the ready list: credit this as a possible I/O
		// wakeup. Once the count exceeds ioEventsBump the process is
		// promoted by ioBonusLevels (capped at level 0) and the count
		// resets, rewarding interactive/I/O-bound behavior over CPU-bound.
		m.ioCount++
		if m.ioCount > p.ioEventsBump {
			m.level -= p.ioBonusLevels
			if m.level < 0 {
				m.level = 0
			}
			m.ioCount = 0
			m.timeUsed = 0
		}
	}
	m.sliceRemain = p.quantum(m.level)

	*p.nodes.At(h) = node{pid: pid, level: m.level}
	p.byPid[pid] = h
	p.enqueueTail(m.level, h)
	return nil
}

func (p *policy) enqueueTail(level, h int) {
	n := p.nodes.At(h)
	n.level = level
	if p.heads[level] == -1 {
		n.next, n.prev = h, h
		p.heads[level] = h
	} else {
		tail := p.nodes.At(p.heads[level]).prev
		tailNode := p.nodes.At(tail)
		headNode := p.nodes.At(p.heads[level])
		n.prev = tail
		n.next = p.heads[level]
		tailNode.next = h
		headNode.prev = h
	}
	p.count[level]++
}

func (p *policy) unlinkFrom(level, h int) {
	n := p.nodes.At(h)
	if n.next == h {
		p.heads[level] = -1
	} else {
		prevNode := p.nodes.At(n.prev)
		nextNode := p.nodes.At(n.next)
		prevNode.next = n.next
		nextNode.prev = n.prev
		if p.heads[level] == h {
			p.heads[level] = n.next
		}
	}
	p.count[level]--
}

func (p *policy) dequeue(pid int) error {
	h, ok := p.byPid[pid]
	if !ok {
		return nil
	}
	n := p.nodes.At(h)
	p.unlinkFrom(n.level, h)
	delete(p.byPid, pid)
	p.nodes.Free(h)
	if p.running == pid {
		p.running = -1
	}
	return nil
}

func (p *policy) lowestNonEmpty() int {
	for lvl := 0; lvl < p.numLevels; lvl++ {
		if p.heads[lvl] != -1 {
			return lvl
		}
	}
	return -1
}

func (p *policy) pickNext() (int, bool) {
	lvl := p.lowestNonEmpty()
	if lvl == -1 {
		return core.NoPid, false
	}
	return p.nodes.At(p.heads[lvl]).pid, true
}

func (p *policy) schedule() (bool, error) {
	next, ok := p.pickNext()
	if !ok {
		next = -1
	}
	switched := kernel.Dispatch(p.deps.Table, p.deps.Switch, &p.running, next)
	return switched, nil
}

func (p *policy) yield() error {
	lvl := p.lowestNonEmpty()
	if lvl == -1 {
		return nil
	}
	h := p.heads[lvl]
	if m, ok := p.metaByPid[p.nodes.At(h).pid]; ok {
		m.sliceRemain = 0
	}
	p.rotateCurrent()
	p.deps.Resched()
	return nil
}

func (p *policy) preempt() error {
	p.deps.Resched()
	return nil
}

// rotateCurrent applies one slice-expiry step to the head of the
// currently-running level: demote if the level's full allotment was
// consumed, otherwise requeue at the tail of the same level.
func (p *policy) rotateCurrent() {
	lvl := p.lowestNonEmpty()
	if lvl == -1 {
		return
	}
	h := p.heads[lvl]
	pid := p.nodes.At(h).pid
	m := p.metaByPid[pid]

	p.unlinkFrom(lvl, h)

	newLevel := lvl
	if m.timeUsed >= p.allotment(lvl) {
		newLevel = lvl + 1
		if newLevel > p.numLevels-1 {
			newLevel = p.numLevels - 1
		}
		m.timeUsed = 0
	}
	m.sliceRemain = p.quantum(newLevel)
	p.enqueueTail(newLevel, h)
}

func (p *policy) tick() {
	p.ticks++

	lvl := p.lowestNonEmpty()
	if lvl != -1 {
		h := p.heads[lvl]
		pid := p.nodes.At(h).pid
		if m, ok := p.metaByPid[pid]; ok {
			m.sliceRemain--
			m.timeUsed++
			if m.sliceRemain <= 0 {
				p.rotateCurrent()
				p.deps.Resched()
			}
		}
	}

	if p.boostInterval > 0 && p.ticks%uint64(p.boostInterval) == 0 {
		p.boost()
		p.deps.Resched()
	}
}

// boost implements the periodic global priority boost: every process
// outside level 0 moves there with a clean slate, preventing
// starvation and letting CPU-bound processes periodically re-compete.
func (p *policy) boost() {
	for lvl := 1; lvl < p.numLevels; lvl++ {
		for p.heads[lvl] != -1 {
			h := p.heads[lvl]
			pid := p.nodes.At(h).pid
			p.unlinkFrom(lvl, h)
			if m, ok := p.metaByPid[pid]; ok {
				m.level, m.timeUsed, m.ioCount = 0, 0, 0
				m.sliceRemain = p.quantum(0)
			}
			p.enqueueTail(0, h)
		}
	}
}

func (p *policy) printStats(w io.Writer) {
	fmt.Fprintf(w, "mlfq: ticks=%d levels=%v\n", p.ticks, p.count[:p.numLevels])
}

func (p *policy) dump(w io.Writer) {
	fmt.Fprintln(w, "mlfq levels (0=highest):")
	for lvl := 0; lvl < p.numLevels; lvl++ {
		if p.count[lvl] == 0 {
			continue
		}
		fmt.Fprintf(w, "  level %d (quantum=%d allotment=%d):", lvl, p.quantum(lvl), p.allotment(lvl))
		h := p.heads[lvl]
		for i := 0; i < p.count[lvl]; i++ {
			n := p.nodes.At(h)
			fmt.Fprintf(w, " %d", n.pid)
			h = n.next
		}
		fmt.Fprintln(w)
	}
}

// validate checks every level's circular list is internally consistent
// and that every tracked node's level field matches the level it's
// linked into (spec §3's MLFQ invariant).
func (p *policy) validate() (bool, error) {
	total := 0
	for lvl := 0; lvl < p.numLevels; lvl++ {
		if p.heads[lvl] == -1 {
			if p.count[lvl] != 0 {
				return false, fmt.Errorf("mlfq: level %d empty head but count=%d", lvl, p.count[lvl])
			}
			continue
		}
		h := p.heads[lvl]
		steps := 0
		for {
			n := p.nodes.At(h)
			if n.level != lvl {
				return false, fmt.Errorf("mlfq: pid %d linked into level %d but tagged level %d", n.pid, lvl, n.level)
			}
			if p.nodes.At(n.next).prev != h {
				return false, fmt.Errorf("mlfq: level %d node %d's next.prev != node", lvl, n.pid)
			}
			h = n.next
			steps++
			if h == p.heads[lvl] {
				break
			}
			if steps > p.count[lvl] {
				return false, fmt.Errorf("mlfq: level %d traversal did not return within count=%d steps", lvl, p.count[lvl])
			}
		}
		if steps != p.count[lvl] {
			return false, fmt.Errorf("mlfq: level %d traversal length %d != count %d", lvl, steps, p.count[lvl])
		}
		total += steps
	}
	if total != len(p.byPid) {
		return false, fmt.Errorf("mlfq: total queued %d != tracked pids %d", total, len(p.byPid))
	}
	return true, nil
}
