package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Factory builds a fresh VTable for one policy instance.
type Factory func(log zerolog.Logger) *VTable

var (
	registryMu sync.Mutex
	registry   = map[PolicyType]Factory{}
)

// Register installs factory under typ. Policy packages call this from
// an init() func (the same self-registration idiom the standard
// library uses for database/sql drivers), so importing a policy
// package for side effects is enough to make it selectable by
// scheduler_init/scheduler_switch.
func Register(typ PolicyType, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[typ] = factory
}

// Create builds a VTable for typ. It returns ErrUnknownPolicy if no
// policy package registered that type — the caller (Scheduler.Switch)
// is responsible for the "unknown policy leaves the current policy
// intact" half of spec §7; Create itself is a pure lookup.
func Create(typ PolicyType, log zerolog.Logger) (*VTable, error) {
	registryMu.Lock()
	factory, ok := registry[typ]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, typ)
	}
	return factory(log), nil
}

// Registered lists the currently registered policy types, sorted, for
// diagnostics.
func Registered() []PolicyType {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]PolicyType, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
