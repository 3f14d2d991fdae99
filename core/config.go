package core

// Config holds the compile-time tunables spec §6 lists as recognized
// options. Kept as a plain struct with a DefaultConfig constructor and
// constructor-time clamping, the same shape the teacher's
// workerpool.DefaultConfig/NewWithConfig used for its Config.
type Config struct {
	// NProc is the upper bound on pids and per-policy node pool size.
	NProc int `yaml:"nproc"`

	// DefaultQuantum is the initial quantum for RR/generic fallback,
	// clamped to [1,1000].
	DefaultQuantum int `yaml:"default_quantum"`

	// Priority bands (clamped to [0,99]).
	PriorityIdle     int `yaml:"priority_idle"`     // 0
	PriorityLow      int `yaml:"priority_low"`      // 25
	PriorityNormal   int `yaml:"priority_normal"`   // 50
	PriorityHigh     int `yaml:"priority_high"`     // 75
	PriorityRealtime int `yaml:"priority_realtime"` // 99

	// Priority-policy aging tunables.
	AgingInterval      int `yaml:"aging_interval"`      // default 100
	AgingAmount        int `yaml:"aging_amount"`        // default 1
	StarvationTicks    int `yaml:"starvation_ticks"`    // threshold, default 300
	StarvationBoost    int `yaml:"starvation_boost"`    // default 10
	PriorityDecayAmount int `yaml:"priority_decay_amount"` // default 1

	// MLFQ tunables.
	MLFQNumLevels      int `yaml:"mlfq_num_levels"`      // 8
	MLFQBoostInterval  int `yaml:"mlfq_boost_interval"`  // 1000
	MLFQIOBonusLevels  int `yaml:"mlfq_io_bonus_levels"` // 2
	MLFQIOEventsToBump int `yaml:"mlfq_io_events_to_bump"` // >3 events

	// Lottery tunables.
	LotteryDefaultTickets int    `yaml:"lottery_default_tickets"` // 100
	LotteryMinTickets     int    `yaml:"lottery_min_tickets"`     // 1
	LotteryMaxTickets     int    `yaml:"lottery_max_tickets"`     // 10000
	LotteryRNGSeed        uint32 `yaml:"lottery_rng_seed"`

	// CFS tunables.
	CFSTargetLatency  int64 `yaml:"cfs_target_latency"`  // 20
	CFSMinGranularity int64 `yaml:"cfs_min_granularity"` // 4
	CFSWeightNice0    int64 `yaml:"cfs_weight_nice0"`    // 1024

	// Real-time tunables.
	RTMaxTasks        int `yaml:"rt_max_tasks"`        // 64
	RTDefaultPeriod   int `yaml:"rt_default_period"`   // 100
	RTDefaultDeadline int `yaml:"rt_default_deadline"` // 100
	RTDefaultWCET     int `yaml:"rt_default_wcet"`     // 10
}

// DefaultConfig returns the defaults spec §6 names for every tunable.
func DefaultConfig() Config {
	c := Config{
		NProc:          256,
		DefaultQuantum: 10,

		PriorityIdle:     0,
		PriorityLow:      25,
		PriorityNormal:   50,
		PriorityHigh:     75,
		PriorityRealtime: 99,

		AgingInterval:       100,
		AgingAmount:         1,
		StarvationTicks:     300,
		StarvationBoost:     10,
		PriorityDecayAmount: 1,

		MLFQNumLevels:      8,
		MLFQBoostInterval:  1000,
		MLFQIOBonusLevels:  2,
		MLFQIOEventsToBump: 3,

		LotteryDefaultTickets: 100,
		LotteryMinTickets:     1,
		LotteryMaxTickets:     10000,
		LotteryRNGSeed:        1,

		CFSTargetLatency:  20,
		CFSMinGranularity: 4,
		CFSWeightNice0:    1024,

		RTMaxTasks:        64,
		RTDefaultPeriod:   100,
		RTDefaultDeadline: 100,
		RTDefaultWCET:     10,
	}
	c.clamp()
	return c
}

// clamp applies the bounds spec §6 documents for each tunable, the way
// the teacher's NewWithConfig clamped NumWorkers/BufferSize/Timeout.
func (c *Config) clamp() {
	if c.NProc <= 0 {
		c.NProc = 256
	}
	if c.DefaultQuantum < 1 {
		c.DefaultQuantum = 1
	}
	if c.DefaultQuantum > 1000 {
		c.DefaultQuantum = 1000
	}
	if c.MLFQNumLevels <= 0 {
		c.MLFQNumLevels = 8
	}
	if c.LotteryMinTickets < 1 {
		c.LotteryMinTickets = 1
	}
	if c.LotteryMaxTickets < c.LotteryMinTickets {
		c.LotteryMaxTickets = c.LotteryMinTickets
	}
	if c.RTMaxTasks <= 0 {
		c.RTMaxTasks = 64
	}
}

// Clamp exposes clamp for callers building a Config by hand (e.g. the
// YAML loader in package config) rather than via DefaultConfig.
func (c *Config) Clamp() { c.clamp() }

// ClampPriority clamps p to [0,99], the bound used throughout §4 for
// base/current priority.
func ClampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > 99 {
		return 99
	}
	return p
}

// ClampRRQuantum clamps q to RR's quantum bound, [1,100].
func ClampRRQuantum(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// ClampTickets clamps a lottery ticket count to [min,max].
func ClampTickets(t, min, max int) int {
	if t < min {
		return min
	}
	if t > max {
		return max
	}
	return t
}
