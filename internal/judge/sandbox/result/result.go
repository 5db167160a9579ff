// Package result defines what the supervisor observed about one subject run.
package result

import "time"

// Signal describes the signal that terminated a process.
type Signal struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	// Fault is set for signals raised by the program itself going wrong
	// (segmentation violation, illegal instruction, abort ...).
	Fault bool `json:"fault"`
}

// ResourceSnapshot is best-effort resource accounting. Nil means unknown.
type ResourceSnapshot struct {
	PeakMemoryBytes   *int64 `json:"peak_memory_bytes,omitempty"`
	OutstandingAllocs *int64 `json:"outstanding_allocs,omitempty"`
	LeakedBytes       *int64 `json:"leaked_bytes,omitempty"`
	MemoryErrors      *int64 `json:"memory_errors,omitempty"`
}

// RunResult is the raw observation of one run. It is not modified after
// the supervisor returns it.
type RunResult struct {
	RunID  string `json:"run_id"`
	Stdout []byte `json:"-"`
	Stderr []byte `json:"-"`
	// ExitCode is nil when the process was terminated by a signal or never started.
	ExitCode        *int             `json:"exit_code,omitempty"`
	Signal          *Signal          `json:"signal,omitempty"`
	Duration        time.Duration    `json:"duration"`
	TimedOut        bool             `json:"timed_out"`
	OutputTruncated bool             `json:"output_truncated,omitempty"`
	Resources       ResourceSnapshot `json:"resources"`
	// LaunchErr is set when the subject could not be started at all.
	LaunchErr string `json:"launch_error,omitempty"`
}

// Launched reports whether a process was actually started.
func (r RunResult) Launched() bool {
	return r.LaunchErr == ""
}

// Exited reports a normal exit, whatever the status.
func (r RunResult) Exited() bool {
	return r.ExitCode != nil
}

// ExitStatus returns the exit code, or -1 when the process did not exit normally.
func (r RunResult) ExitStatus() int {
	if r.ExitCode == nil {
		return -1
	}
	return *r.ExitCode
}

// Int64 returns a pointer to v, for filling snapshots.
func Int64(v int64) *int64 {
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}
