// Package kernel models the external collaborators spec.md §6 names by
// contract only: the process table, context_switch, interrupt masking,
// and the binary semaphore used for cross-policy serialization. The
// core (package core and the policies) only ever sees these through
// the interfaces/function types declared here; this package's
// in-memory implementations exist so schedcore is runnable and
// testable standalone, exactly the role a unit-test double or the
// demo CLI needs, not a claim that this is how a real kernel would
// implement them.
package kernel

import "sync"

// State is a process's scheduling state (spec §3).
type State int

const (
	FREE State = iota
	READY
	RUNNING
	BLOCKED
	SLEEPING
	SUSPENDED
)

func (s State) String() string {
	switch s {
	case FREE:
		return "FREE"
	case READY:
		return "READY"
	case RUNNING:
		return "RUNNING"
	case BLOCKED:
		return "BLOCKED"
	case SLEEPING:
		return "SLEEPING"
	case SUSPENDED:
		return "SUSPENDED"
	default:
		return "UNKNOWN"
	}
}

// Table is the narrow read/write contract the core needs against the
// process table: state and priority. Everything else about a process
// (memory, file descriptors, …) is out of scope.
type Table interface {
	State(pid int) State
	SetState(pid int, s State)
	Priority(pid int) int
	SetPriority(pid int, p int)
}

// MemTable is a fixed-size, array-backed reference Table implementation.
type MemTable struct {
	mu    sync.Mutex
	procs []procEntry
}

type procEntry struct {
	state    State
	priority int
}

// NewMemTable builds a table with room for exactly nproc process slots,
// all initially FREE.
func NewMemTable(nproc int) *MemTable {
	return &MemTable{procs: make([]procEntry, nproc)}
}

func (t *MemTable) valid(pid int) bool {
	return pid >= 0 && pid < len(t.procs)
}

func (t *MemTable) State(pid int) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.valid(pid) {
		return FREE
	}
	return t.procs[pid].state
}

func (t *MemTable) SetState(pid int, s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.valid(pid) {
		return
	}
	t.procs[pid].state = s
}

func (t *MemTable) Priority(pid int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.valid(pid) {
		return 0
	}
	return t.procs[pid].priority
}

func (t *MemTable) SetPriority(pid int, p int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.valid(pid) {
		return
	}
	t.procs[pid].priority = p
}

// NProc returns the pool size the table was constructed with.
func (t *MemTable) NProc() int {
	return len(t.procs)
}

// ContextSwitchFunc saves the caller's context and restores new's,
// returning to the caller only when old is next elected to run. The
// reference implementation below is a bookkeeping stub: schedcore is a
// simulation, so "switching" just records the transition.
type ContextSwitchFunc func(old, new int)

// CountingSwitcher is a ContextSwitchFunc that records how many times
// it has been invoked, useful for asserting on scheduling behavior in
// tests (see spec §8 scenario 1: "context-switch count = 2").
type CountingSwitcher struct {
	mu    sync.Mutex
	Count uint64
	Last  [2]int // [old, new] of the most recent switch
}

func (s *CountingSwitcher) Switch(old, new int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Count++
	s.Last = [2]int{old, new}
}

// Dispatch performs the RUNNING→READY / READY→RUNNING transitions and
// invokes swap when next differs from *running, updating *running in
// place. It is shared by every policy's Schedule implementation the
// same way the teacher's strategies/common.go shared processJob across
// its distribution strategies.
//
// Bootstrapping (old == -1, nothing was running yet) updates state but
// does not invoke the hardware primitive or count as a switch: there is
// no outgoing register context to save, only an incoming one to load.
// switched reports whether context_switch was actually invoked.
func Dispatch(table Table, swap ContextSwitchFunc, running *int, next int) (switched bool) {
	old := *running
	if next == old {
		return false
	}
	if old != -1 && table.State(old) == RUNNING {
		table.SetState(old, READY)
	}
	if next != -1 {
		table.SetState(next, RUNNING)
	}
	*running = next
	if old == -1 {
		return false
	}
	if swap != nil {
		swap(old, next)
	}
	return true
}

// Mask is the opaque token returned by disabling interrupts.
type Mask struct{ depth int }

// InterruptController models the disable/restore primitive used to make
// an operation atomic against tick (spec §5). It is re-entrant: nested
// Disable calls are allowed, and interrupts are only truly re-enabled
// once the outermost Restore runs.
type InterruptController struct {
	mu    sync.Mutex
	depth int
}

// Disable masks interrupts and returns a token to pass to Restore. Use
// as: mask := ic.Disable(); defer ic.Restore(mask) so the release is
// guaranteed on every exit path, including panics.
func (ic *InterruptController) Disable() Mask {
	ic.mu.Lock()
	ic.depth++
	m := Mask{depth: ic.depth}
	ic.mu.Unlock()
	return m
}

// Restore releases the interrupt mask acquired by the matching Disable.
func (ic *InterruptController) Restore(Mask) {
	ic.mu.Lock()
	if ic.depth > 0 {
		ic.depth--
	}
	ic.mu.Unlock()
}

// Semaphore is a binary semaphore used to serialize transitions that
// cross policies (scheduler_switch), per spec §4.1/§5.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore returns a semaphore in the signaled (available) state.
func NewSemaphore() *Semaphore {
	s := &Semaphore{ch: make(chan struct{}, 1)}
	s.ch <- struct{}{}
	return s
}

// Wait blocks until the semaphore is available, then acquires it.
func (s *Semaphore) Wait() {
	<-s.ch
}

// Signal releases the semaphore.
func (s *Semaphore) Signal() {
	select {
	case s.ch <- struct{}{}:
	default:
		// already signaled; a double-signal is a caller bug we
		// don't want to deadlock or panic on in a best-effort core.
	}
}
