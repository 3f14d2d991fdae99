// Package roundrobin implements the circular doubly-linked FIFO
// round-robin policy (spec §4.2).
package roundrobin

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/go-foundations/schedcore/core"
	"github.com/go-foundations/schedcore/kernel"
	"github.com/go-foundations/schedcore/pool"
)

func init() {
	core.Register(core.RoundRobin, New)
}

type node struct {
	pid                      int
	timeRemaining, totalTime int
	rounds                   int
	next, prev               int
}

// policy is the RR ready structure plus the bits Schedule/Tick need.
type policy struct {
	deps    *core.Deps
	log     zerolog.Logger
	nodes   *pool.Pool[node]
	byPid   map[int]int // pid -> node handle
	head    int         // -1 when empty
	quantum int
	count   int
	running int // pid currently RUNNING, or -1
}

// New builds the round-robin policy's VTable.
func New(log zerolog.Logger) *core.VTable {
	p := &policy{head: -1, running: -1, byPid: map[int]int{}}
	return &core.VTable{
		Name:       "round-robin",
		Type:       core.RoundRobin,
		Init:       p.init,
		Shutdown:   p.shutdown,
		Schedule:   p.schedule,
		Yield:      p.yield,
		Preempt:    p.preempt,
		Enqueue:    p.enqueue,
		Dequeue:    p.dequeue,
		PickNext:   p.pickNext,
		SetQuantum: p.setQuantum,
		GetQuantum: p.getQuantum,
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
	p.head = -1
	p.running = -1
	p.count = 0
	p.quantum = core.ClampRRQuantum(d.Config.DefaultQuantum)
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
		return nil // silent no-op, spec §4.8/§7
	}
	n := p.nodes.At(h)
	*n = node{pid: pid, timeRemaining: p.quantum}

	if p.head == -1 {
		n.next, n.prev = h, h
		p.head = h
	} else {
		tailHandle := p.nodes.At(p.head).prev
		tail := p.nodes.At(tailHandle)
		headNode := p.nodes.At(p.head)
		n.prev = tailHandle
		n.next = p.head
		tail.next = h
		headNode.prev = h
	}
	p.byPid[pid] = h
	p.count++
	return nil
}

func (p *policy) dequeue(pid int) error {
	h, ok := p.byPid[pid]
	if !ok {
		return nil
	}
	delete(p.byPid, pid)
	n := p.nodes.At(h)

	if n.next == h {
		p.head = -1
	} else {
		prevNode := p.nodes.At(n.prev)
		nextNode := p.nodes.At(n.next)
		prevNode.next = n.next
		nextNode.prev = n.prev
		if p.head == h {
			p.head = n.next
		}
	}
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
	switched := kernel.Dispatch(p.deps.Table, p.deps.Switch, &p.running, next)
	return switched, nil
}

func (p *policy) yield() error {
	if p.head == -1 {
		return nil
	}
	p.nodes.At(p.head).timeRemaining = 0
	p.rotate()
	p.deps.Resched()
	return nil
}

func (p *policy) preempt() error {
	p.deps.Resched()
	return nil
}

func (p *policy) tick() {
	if p.head == -1 {
		return
	}
	n := p.nodes.At(p.head)
	n.timeRemaining--
	if n.timeRemaining <= 0 {
		p.rotate()
		p.deps.Resched()
	}
}

// rotate advances the cursor to the next node and gives it a fresh
// slice (spec §4.2: "advance cursor, reset its slice"); the node being
// left behind has its round/total-time accounting closed out.
func (p *policy) rotate() {
	if p.head == -1 {
		return
	}
	out := p.nodes.At(p.head)
	ran := p.quantum - out.timeRemaining
	if ran < 0 {
		ran = 0
	}
	out.totalTime += ran
	out.rounds++
	p.head = out.next
	p.nodes.At(p.head).timeRemaining = p.quantum
}

func (p *policy) setQuantum(q int) { p.quantum = core.ClampRRQuantum(q) }
func (p *policy) getQuantum() int  { return p.quantum }

func (p *policy) printStats(w io.Writer) {
	fmt.Fprintf(w, "round-robin: count=%d quantum=%d\n", p.count, p.quantum)
}

func (p *policy) dump(w io.Writer) {
	if p.head == -1 {
		fmt.Fprintln(w, "round-robin: (empty)")
		return
	}
	fmt.Fprintln(w, "round-robin ready queue (head first):")
	h := p.head
	for i := 0; i < p.count; i++ {
		n := p.nodes.At(h)
		fmt.Fprintf(w, "  pid=%d time_remaining=%d total_time=%d rounds=%d\n",
			n.pid, n.timeRemaining, n.totalTime, n.rounds)
		h = n.next
	}
}

// validate checks spec §3's RR invariant: either the list is empty or
// every node's next.prev == node, and traversal from head returns to
// head in exactly count steps.
func (p *policy) validate() (bool, error) {
	if p.head == -1 {
		if p.count != 0 || len(p.byPid) != 0 {
			return false, fmt.Errorf("round-robin: empty head but count=%d tracked=%d", p.count, len(p.byPid))
		}
		return true, nil
	}
	h := p.head
	steps := 0
	for {
		n := p.nodes.At(h)
		if p.nodes.At(n.next).prev != h {
			return false, fmt.Errorf("round-robin: node %d's next.prev != node", n.pid)
		}
		h = n.next
		steps++
		if h == p.head {
			break
		}
		if steps > p.count {
			return false, fmt.Errorf("round-robin: traversal from head did not return within count=%d steps", p.count)
		}
	}
	if steps != p.count {
		return false, fmt.Errorf("round-robin: traversal length %d != count %d", steps, p.count)
	}
	if steps != len(p.byPid) {
		return false, fmt.Errorf("round-robin: traversal length %d != tracked pids %d", steps, len(p.byPid))
	}
	return true, nil
}
