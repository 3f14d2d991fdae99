package core

import "errors"

// Error kinds surfaced to callers (spec §7).
var (
	// ErrInvalidPid is returned by setpriority/getpriority for a pid
	// outside [0,NPROC) or in state FREE.
	ErrInvalidPid = errors.New("schedcore: invalid pid")
	// ErrUnknownPolicy is returned by scheduler_switch for an
	// unrecognized policy type; the current policy is left intact.
	ErrUnknownPolicy = errors.New("schedcore: unknown policy type")
	// ErrNoActivePolicy is returned by operations that require an
	// initialized policy before one has been installed.
	ErrNoActivePolicy = errors.New("schedcore: no active policy")
)
