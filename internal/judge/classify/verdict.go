// Package classify turns one run's observations and output diff into a
// single prioritized verdict.
package classify

import (
	"pvjudge/internal/judge/compare"
	"pvjudge/internal/judge/sandbox/result"
)

// FaultKind is the outcome category of a judged run.
type FaultKind string

const (
	LaunchError         FaultKind = "LaunchError"
	TimedOut            FaultKind = "TimedOut"
	Crashed             FaultKind = "Crashed"
	NonZeroExit         FaultKind = "NonZeroExit"
	OutputLimitExceeded FaultKind = "OutputLimitExceeded"
	ResourceLeak        FaultKind = "ResourceLeak"
	MissingSection      FaultKind = "MissingSection"
	UnexpectedSection   FaultKind = "UnexpectedSection"
	OrderMismatch       FaultKind = "OrderMismatch"
	ValueMismatch       FaultKind = "ValueMismatch"
	Nondeterministic    FaultKind = "Nondeterministic"
	Correct             FaultKind = "Correct"
)

// Kinds lists every fault kind in descending priority.
var Kinds = []FaultKind{
	LaunchError,
	TimedOut,
	Crashed,
	NonZeroExit,
	OutputLimitExceeded,
	ResourceLeak,
	MissingSection,
	UnexpectedSection,
	OrderMismatch,
	ValueMismatch,
	Nondeterministic,
	Correct,
}

// Verdict is the terminal outcome of one judged run.
type Verdict struct {
	RunID string    `json:"run_id"`
	Name  string    `json:"name,omitempty"`
	Kind  FaultKind `json:"kind"`
	// Reason is a one-line human readable explanation.
	Reason string `json:"reason"`
	// Sections names the sections that justified the verdict, if any.
	Sections []string          `json:"sections,omitempty"`
	Diff     *compare.Diff     `json:"diff,omitempty"`
	Run      *result.RunResult `json:"run,omitempty"`
}

// Passed reports whether the run was judged correct.
func (v Verdict) Passed() bool {
	return v.Kind == Correct
}
