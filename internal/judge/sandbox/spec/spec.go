// Package spec defines the execution specification and resource limits.
package spec

import "time"

// ResourceLimit describes limits enforced by the supervisor.
// Zero means unlimited.
type ResourceLimit struct {
	WallTimeMs int64 `yaml:"wallTimeMs" json:"wall_time_ms"`
	// OutputBytes caps each captured stream independently.
	OutputBytes int64 `yaml:"outputBytes" json:"output_bytes"`
	// MemoryMB and PIDs are only enforced when cgroups are enabled.
	MemoryMB int64 `yaml:"memoryMB" json:"memory_mb"`
	PIDs     int64 `yaml:"pids" json:"pids"`
}

// WallTime returns the wall-clock limit as a duration.
func (l ResourceLimit) WallTime() time.Duration {
	if l.WallTimeMs <= 0 {
		return 0
	}
	return time.Duration(l.WallTimeMs) * time.Millisecond
}

// RunSpec is the unified execution specification for one subject run.
type RunSpec struct {
	RunID   string
	WorkDir string
	Cmd     []string
	// Env is appended to the supervisor's own environment.
	Env    []string
	Stdin  []byte
	Limits ResourceLimit
}
