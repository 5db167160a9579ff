package model

import (
	"time"

	"pvjudge/internal/judge/classify"
)

// VerdictRecord is the stored form of a verdict. Captured streams are kept
// as text so the record reads well over the API.
type VerdictRecord struct {
	classify.Verdict
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
	// Runs is the number of runs folded into the verdict.
	Runs      int   `json:"runs"`
	CreatedAt int64 `json:"created_at"`
}

// NewVerdictRecord captures a verdict and the evidence of its run.
func NewVerdictRecord(v classify.Verdict, runs int, now time.Time) VerdictRecord {
	rec := VerdictRecord{
		Verdict:   v,
		Runs:      runs,
		CreatedAt: now.Unix(),
	}
	if v.Run != nil {
		rec.Stdout = string(v.Run.Stdout)
		rec.Stderr = string(v.Run.Stderr)
	}
	return rec
}

// VerdictEventType identifies verdict events.
type VerdictEventType string

const (
	VerdictEventFinal VerdictEventType = "final"
)

// VerdictEvent is published when a verdict is stored.
type VerdictEvent struct {
	Type      VerdictEventType `json:"type"`
	Record    VerdictRecord    `json:"record"`
	CreatedAt int64            `json:"created_at"`
}

// RunResponse lists the verdicts produced by one judge request.
type RunResponse struct {
	RunID    string          `json:"run_id"`
	Passed   bool            `json:"passed"`
	Verdicts []VerdictRecord `json:"verdicts"`
}
