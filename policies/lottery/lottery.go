// Package lottery implements the lottery scheduling policy (spec
// §4.5): a ticket-weighted random draw over a tail-appended list, a
// seeded linear congruential generator, compensation tickets for
// processes that yield early, and ticket transfer/inflation.
package lottery

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/go-foundations/schedcore/core"
	"github.com/go-foundations/schedcore/kernel"
	"github.com/go-foundations/schedcore/pool"
)

func init() {
	core.Register(core.Lottery, New)
}

type node struct {
	pid                    int
	base, tickets, bonus   int
	timeRemaining          int
	serviceTime            int
	wins                   int64
	next, prev             int
}

type policy struct {
	deps  *core.Deps
	log   zerolog.Logger
	nodes *pool.Pool[node]
	byPid map[int]int
	head  int
	count int
	total int
	draws int64 // number of pickNext draws, the denominator for observed win rate

	rng     *rng
	quantum int
	running int

	minTickets, maxTickets, defaultTickets int
}

// New builds the lottery policy's VTable.
func New(log zerolog.Logger) *core.VTable {
	p := &policy{head: -1, running: -1, byPid: map[int]int{}}
	return &core.VTable{
		Name:        "lottery",
		Type:        core.Lottery,
		Init:        p.init,
		Shutdown:    p.shutdown,
		Schedule:    p.schedule,
		Yield:       p.yield,
		Preempt:     p.preempt,
		Enqueue:     p.enqueue,
		Dequeue:     p.dequeue,
		PickNext:    p.pickNext,
		SetQuantum:  p.setQuantum,
		GetQuantum:  p.getQuantum,
		Tick:        p.tick,
		SetTickets:  p.setTickets,
		GetTickets:  p.getTickets,
		Transfer:    p.transfer,
		Inflate:     p.inflate,
		Fairness:    p.fairness,
		LocalToGlobal: p.localToGlobal,
		PrintStats:  p.printStats,
		Validate:    p.validate,
		Dump:        p.dump,
	}
}

func (p *policy) init(d *core.Deps) error {
	p.deps = d
	p.log = d.Log
	p.nodes = pool.New[node](d.NProc)
	p.byPid = make(map[int]int)
	p.head, p.running, p.count, p.total, p.draws = -1, -1, 0, 0, 0

	p.minTickets = d.Config.LotteryMinTickets
	p.maxTickets = d.Config.LotteryMaxTickets
	p.defaultTickets = core.ClampTickets(d.Config.LotteryDefaultTickets, p.minTickets, p.maxTickets)
	p.quantum = core.ClampRRQuantum(d.Config.DefaultQuantum)
	p.rng = newRNG(d.Config.LotteryRNGSeed)
	return nil
}

func (p *policy) shutdown() error {
	p.nodes.Reset()
	p.byPid = map[int]int{}
	p.head, p.running, p.count, p.total, p.draws = -1, -1, 0, 0, 0
	return nil
}

// SetSeed reseeds the draw generator, used by tests and diagnostic
// replay to make a run reproducible.
func (p *policy) SetSeed(seed uint32) { p.rng.seed(seed) }

func (p *policy) enqueue(pid int) error {
	if _, exists := p.byPid[pid]; exists {
		return nil
	}
	h, ok := p.nodes.Alloc()
	if !ok {
		return nil
	}
	*p.nodes.At(h) = node{pid: pid, base: p.defaultTickets, tickets: p.defaultTickets}

	if p.head == -1 {
		p.nodes.At(h).next, p.nodes.At(h).prev = h, h
		p.head = h
	} else {
		tailHandle := p.nodes.At(p.head).prev
		tail := p.nodes.At(tailHandle)
		headNode := p.nodes.At(p.head)
		n := p.nodes.At(h)
		n.prev = tailHandle
		n.next = p.head
		tail.next = h
		headNode.prev = h
	}
	p.byPid[pid] = h
	p.count++
	p.total += p.defaultTickets
	return nil
}

func (p *policy) dequeue(pid int) error {
	h, ok := p.byPid[pid]
	if !ok {
		return nil
	}
	n := p.nodes.At(h)
	p.total -= n.tickets

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
	delete(p.byPid, pid)
	p.nodes.Free(h)
	p.count--
	if p.running == pid {
		p.running = -1
	}
	return nil
}

// pickNext runs one lottery draw: a winning ticket number in
// [0,total_tickets) and a cumulative walk over the insertion-ordered
// list. It is NOT side-effect free — it advances the RNG, records the
// winner's win for fairness (spec §4.5), and consumes any pending
// compensation bonus on the winner — because the draw itself is the
// policy's source of scheduling decisions.
func (p *policy) pickNext() (int, bool) {
	if p.head == -1 {
		return core.NoPid, false
	}
	if p.total <= 0 {
		n := p.nodes.At(p.head)
		n.wins++
		p.draws++
		return n.pid, true
	}

	winning := p.rng.next() % uint32(p.total)
	cum := 0
	h := p.head
	for i := 0; i < p.count; i++ {
		n := p.nodes.At(h)
		cum += n.tickets
		if uint32(cum) > winning {
			break
		}
		h = n.next
	}
	winner := p.nodes.At(h)
	winner.wins++
	p.draws++
	if winner.bonus > 0 {
		p.total -= winner.bonus
		winner.tickets -= winner.bonus
		winner.bonus = 0
	}
	return winner.pid, true
}

func (p *policy) schedule() (bool, error) {
	oldRunning := p.running
	next, ok := p.pickNext()
	if !ok {
		next = -1
	}

	if oldH, exists := p.byPid[oldRunning]; exists && oldRunning != next {
		old := p.nodes.At(oldH)
		ran := p.quantum - old.timeRemaining
		if ran < 0 {
			ran = 0
		}
		old.serviceTime += ran
	}

	switched := kernel.Dispatch(p.deps.Table, p.deps.Switch, &p.running, next)
	if next != -1 && next != oldRunning {
		if h, exists := p.byPid[next]; exists {
			p.nodes.At(h).timeRemaining = p.quantum
		}
	}
	return switched, nil
}

func (p *policy) yield() error {
	h, ok := p.byPid[p.running]
	if !ok {
		return nil
	}
	n := p.nodes.At(h)
	unused := n.timeRemaining
	if unused > 0 && p.quantum > 0 {
		bonus := n.base * unused / p.quantum
		if bonus < 1 {
			bonus = 1
		}
		n.tickets = core.ClampTickets(n.base+bonus, p.minTickets, p.maxTickets)
		actual := n.tickets - n.base
		p.total += actual - n.bonus
		n.bonus = actual
	}
	n.timeRemaining = 0
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
	n.timeRemaining--
	if n.timeRemaining <= 0 {
		p.deps.Resched()
	}
}

func (p *policy) setQuantum(q int) { p.quantum = core.ClampRRQuantum(q) }
func (p *policy) getQuantum() int  { return p.quantum }

func (p *policy) setTickets(pid, tickets int) error {
	h, ok := p.byPid[pid]
	if !ok {
		return core.ErrInvalidPid
	}
	n := p.nodes.At(h)
	clamped := core.ClampTickets(tickets, p.minTickets, p.maxTickets)
	p.total += clamped - n.tickets
	n.base, n.tickets, n.bonus = clamped, clamped, 0
	return nil
}

func (p *policy) getTickets(pid int) (int, error) {
	h, ok := p.byPid[pid]
	if !ok {
		return 0, core.ErrInvalidPid
	}
	return p.nodes.At(h).tickets, nil
}

// transfer moves up to n tickets from one process to another, clamped
// so neither side leaves [min,max]; the sum is conserved.
func (p *policy) transfer(from, to, n int) error {
	fh, ok := p.byPid[from]
	if !ok {
		return core.ErrInvalidPid
	}
	th, ok := p.byPid[to]
	if !ok {
		return core.ErrInvalidPid
	}
	fromNode := p.nodes.At(fh)
	toNode := p.nodes.At(th)

	amount := n
	if room := fromNode.tickets - p.minTickets; amount > room {
		amount = room
	}
	if room := p.maxTickets - toNode.tickets; amount > room {
		amount = room
	}
	if amount <= 0 {
		return nil
	}
	fromNode.tickets -= amount
	fromNode.base -= amount
	toNode.tickets += amount
	toNode.base += amount
	return nil
}

// inflate scales every process's ticket count by factor (clamped to
// [min,max] each) and recomputes total_tickets from scratch rather
// than scaling the cached total, avoiding compounding clamp error.
func (p *policy) inflate(factor int) error {
	if factor <= 0 {
		factor = 1
	}
	sum := 0
	h := p.head
	for i := 0; i < p.count; i++ {
		n := p.nodes.At(h)
		scaled := core.ClampTickets(n.base*factor, p.minTickets, p.maxTickets)
		n.base, n.tickets, n.bonus = scaled, scaled, 0
		sum += scaled
		h = n.next
	}
	p.total = sum
	return nil
}

// fairness reports Jain's fairness index over each process's ratio of
// observed win rate (wins/draws) to expected share (tickets/total), per
// spec §4.5; 1.0 is perfectly fair, 1/n is maximally unfair. Undefined
// with fewer than two participants or before any draw has happened, so
// those report 1.0.
func (p *policy) fairness() float64 {
	if p.count < 2 || p.draws == 0 || p.total <= 0 {
		return 1
	}
	var sum, sumSq float64
	h := p.head
	for i := 0; i < p.count; i++ {
		n := p.nodes.At(h)
		expectedShare := float64(n.tickets) / float64(p.total)
		observedRate := float64(n.wins) / float64(p.draws)
		ratio := observedRate / expectedShare
		sum += ratio
		sumSq += ratio * ratio
		h = n.next
	}
	if sumSq == 0 {
		return 1
	}
	return (sum * sum) / (float64(p.count) * sumSq)
}

// localToGlobal maps pid's localTicket-th ticket (0-based, within its
// own allocation) to its position in the global [0,total_tickets)
// numbering the draw operates over.
func (p *policy) localToGlobal(pid, localTicket int) (int, error) {
	h, ok := p.byPid[pid]
	if !ok {
		return 0, core.ErrInvalidPid
	}
	if localTicket < 0 || localTicket >= p.nodes.At(h).tickets {
		return 0, fmt.Errorf("lottery: local ticket %d out of range for pid %d", localTicket, pid)
	}
	offset := 0
	cur := p.head
	for cur != h {
		offset += p.nodes.At(cur).tickets
		cur = p.nodes.At(cur).next
	}
	return offset + localTicket, nil
}

func (p *policy) printStats(w io.Writer) {
	fmt.Fprintf(w, "lottery: count=%d total_tickets=%d quantum=%d fairness=%.4f\n", p.count, p.total, p.quantum, p.fairness())
}

func (p *policy) dump(w io.Writer) {
	fmt.Fprintln(w, "lottery pool (insertion order):")
	h := p.head
	for i := 0; i < p.count; i++ {
		n := p.nodes.At(h)
		fmt.Fprintf(w, "  pid=%d tickets=%d (base=%d bonus=%d) service_time=%d\n", n.pid, n.tickets, n.base, n.bonus, n.serviceTime)
		h = n.next
	}
}

// validate checks the cached total_tickets matches the sum over the
// list, every node's tickets fall within [min,max], and the circular
// list is internally consistent (spec §3's LOTTERY invariant).
func (p *policy) validate() (bool, error) {
	if p.head == -1 {
		if p.count != 0 || p.total != 0 {
			return false, fmt.Errorf("lottery: empty list but count=%d total=%d", p.count, p.total)
		}
		return true, nil
	}
	sum := 0
	h := p.head
	for i := 0; i < p.count; i++ {
		n := p.nodes.At(h)
		if n.tickets < p.minTickets || n.tickets > p.maxTickets {
			return false, fmt.Errorf("lottery: pid %d tickets=%d outside [%d,%d]", n.pid, n.tickets, p.minTickets, p.maxTickets)
		}
		if p.nodes.At(n.next).prev != h {
			return false, fmt.Errorf("lottery: pid %d's next.prev != node", n.pid)
		}
		sum += n.tickets
		h = n.next
	}
	if sum != p.total {
		return false, fmt.Errorf("lottery: traversal ticket sum %d != cached total %d", sum, p.total)
	}
	return true, nil
}
