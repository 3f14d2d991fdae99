package core

// Pid is a small non-negative process id bounded by NPROC; NoPid (-1)
// denotes "none" (spec §3).
type Pid = int

// NoPid is the sentinel pid meaning "none".
const NoPid Pid = -1

// PolicyType enumerates the closed set of schedulable policies (spec
// §1). The set is closed at build time (spec §9 design note); adding a
// seventh policy means adding a PolicyType constant and a registry
// entry, not an open-ended plugin mechanism.
type PolicyType int

const (
	RoundRobin PolicyType = iota
	Priority
	MLFQ
	Lottery
	CFS
	RealTime

	numPolicyTypes
)

func (t PolicyType) String() string {
	switch t {
	case RoundRobin:
		return "round-robin"
	case Priority:
		return "priority"
	case MLFQ:
		return "mlfq"
	case Lottery:
		return "lottery"
	case CFS:
		return "cfs"
	case RealTime:
		return "realtime"
	default:
		return "unknown"
	}
}

// ParsePolicyType maps a configuration-file/CLI string onto a
// PolicyType. ok is false for anything not in the closed set.
func ParsePolicyType(s string) (PolicyType, bool) {
	for t := PolicyType(0); t < numPolicyTypes; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return Priority, false
}

// RTAlgorithm selects which key orders the real-time policy's ready
// list (spec §4.7).
type RTAlgorithm int

const (
	EDF RTAlgorithm = iota
	RMS
	DMS
	LLF
)

func (a RTAlgorithm) String() string {
	switch a {
	case EDF:
		return "edf"
	case RMS:
		return "rms"
	case DMS:
		return "dms"
	case LLF:
		return "llf"
	default:
		return "unknown"
	}
}

// ParseRTAlgorithm maps a configuration-file/CLI string onto an
// RTAlgorithm. ok is false for anything unrecognized.
func ParseRTAlgorithm(s string) (RTAlgorithm, bool) {
	for a := EDF; a <= LLF; a++ {
		if a.String() == s {
			return a, true
		}
	}
	return EDF, false
}

// RTMissPolicy decides what happens to a periodic task instance that
// blows its deadline (spec §4.7).
type RTMissPolicy int

const (
	MissSkip RTMissPolicy = iota
	MissContinue
	MissAbort
	MissNotify
)

func (m RTMissPolicy) String() string {
	switch m {
	case MissSkip:
		return "skip"
	case MissContinue:
		return "continue"
	case MissAbort:
		return "abort"
	case MissNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// RTParams are a periodic task's release parameters (spec §3's RT
// task "params" field).
type RTParams struct {
	Period     int64
	Deadline   int64
	WCET       int64
	Phase      int64
	MissPolicy RTMissPolicy
}

// RTTaskInfo is realtime_get_params' full output: every field spec
// §3's RT task struct names. Spec §9 flags the original
// realtime_get_params as never writing its out-parameters; this
// implementation populates all of them.
type RTTaskInfo struct {
	Pid              int
	Params           RTParams
	State            string
	ReleaseTime      int64
	AbsoluteDeadline int64
	RemainingTime    int64
	Instances        int64
	Completions      int64
	DeadlineMisses   int64
	RMSPriority      int
	Laxity           int64
}

// RTSchedulability is the advisory result of a schedulability test
// (spec §4.7).
type RTSchedulability struct {
	Schedulable bool
	Utilization float64
}
