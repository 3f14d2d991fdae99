package core

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/go-foundations/schedcore/kernel"
)

// Deps is handed to a policy's Init so it can reach the external
// collaborators (spec §6) — the process table, the context switch,
// the resched hook and its logger — without holding the Scheduler.
type Deps struct {
	// NProc bounds the policy's own node pool sizing.
	NProc int
	// Config carries every tunable (spec §6); a policy reads only the
	// fields relevant to it.
	Config Config
	// Table is the read/write view onto process state/priority.
	Table kernel.Table
	// Switch performs the actual context switch (spec: "invokes
	// context_switch").
	Switch kernel.ContextSwitchFunc
	// Resched is called by a policy to raise the framework's
	// need_resched flag (e.g. from Tick on quantum expiry).
	Resched func()
	// Log is a child logger the policy may use directly; already
	// tagged with the policy's name.
	Log zerolog.Logger
}

// VTable is the capability record spec §4.1 calls the "policy vtable":
// a policy fills in the entries it supports as plain function fields,
// leaving the rest nil. The framework (package core's Scheduler) checks
// each field before calling it and falls back to a generic FIFO ready
// queue for Enqueue/Dequeue, or a no-op otherwise, exactly as §4.1
// specifies. Using a struct-of-funcs instead of a Go interface lets a
// policy genuinely omit capabilities instead of providing empty-body
// methods to satisfy an interface.
type VTable struct {
	Name string
	Type PolicyType

	Init     func(*Deps) error
	Shutdown func() error

	// Schedule picks the next runnable process, performs the
	// RUNNING→READY / READY→RUNNING transitions, and invokes
	// context_switch if a different process was chosen. switched
	// reports whether a context switch actually happened.
	Schedule func() (switched bool, err error)
	Yield    func() error
	Preempt  func() error

	Enqueue  func(pid int) error
	Dequeue  func(pid int) error
	PickNext func() (pid int, ok bool)

	SetPriority   func(pid, p int) error
	GetPriority   func(pid int) (int, error)
	BoostPriority func(pid int) error
	DecayPriority func(pid int) error

	SetQuantum func(q int)
	GetQuantum func() int
	Tick       func()

	// Lottery-specific syscalls (spec §4.5). Left nil by every other
	// policy.
	SetTickets  func(pid, tickets int) error
	GetTickets  func(pid int) (int, error)
	Transfer    func(from, to, n int) error
	Inflate     func(factor int) error
	Fairness    func() float64
	LocalToGlobal func(pid, localTicket int) (int, error)

	// CFS-specific syscalls (spec §4.6): nice is the classic [-20,19]
	// scale, distinct from the generic [0,99] SetPriority/GetPriority
	// used by RR/priority/MLFQ.
	SetNice func(pid, nice int) error
	GetNice func(pid int) (int, error)

	// Real-time-specific syscalls (spec §4.7). Left nil by every other
	// policy.
	SetAlgorithm     func(alg RTAlgorithm) error
	GetAlgorithm     func() RTAlgorithm
	SetParams        func(pid int, params RTParams) error
	GetParams        func(pid int) (RTTaskInfo, bool)
	CheckSchedulable func() RTSchedulability
	ResponseTime     func(pid int) (int64, bool)

	GetStats    func(out *ProcStats, pid int) bool
	ResetStats  func()
	PrintStats  func(w io.Writer)

	// Validate checks the policy's own structural invariants (spec
	// §8). It returns at the first violation found, as a plain error;
	// ok is false exactly when err is non-nil.
	Validate func() (ok bool, err error)
	Dump     func(w io.Writer)
}
