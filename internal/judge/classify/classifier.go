package classify

import (
	"fmt"
	"strings"
	"time"

	"pvjudge/internal/judge/compare"
	"pvjudge/internal/judge/sandbox/result"
)

// Policy holds the resource thresholds. A negative threshold disables its check.
type Policy struct {
	// MaxOutstandingAllocs is the number of allocations allowed to survive exit.
	MaxOutstandingAllocs int64 `yaml:"maxOutstandingAllocs"`
	// MaxLeakedBytes applies only when the probe reports leaked bytes.
	MaxLeakedBytes int64 `yaml:"maxLeakedBytes"`
	// MaxPeakMemoryBytes is disabled unless positive.
	MaxPeakMemoryBytes int64 `yaml:"maxPeakMemoryBytes"`
}

// Classifier applies the fixed priority order. It keeps no state between calls.
type Classifier struct {
	Policy Policy
}

func NewClassifier(policy Policy) *Classifier {
	return &Classifier{Policy: policy}
}

// Classify returns exactly one verdict for a run. diff is nil when output
// was not compared; the section rules are skipped in that case.
func (c *Classifier) Classify(run result.RunResult, diff *compare.Diff) Verdict {
	v := c.classify(run, diff)
	v.RunID = run.RunID
	v.Run = &run
	switch v.Kind {
	case MissingSection, UnexpectedSection, OrderMismatch, ValueMismatch, Correct:
		v.Diff = diff
	}
	return v
}

func (c *Classifier) classify(run result.RunResult, diff *compare.Diff) Verdict {
	if !run.Launched() {
		return Verdict{Kind: LaunchError, Reason: "subject could not be started: " + run.LaunchErr}
	}
	if run.TimedOut {
		return Verdict{Kind: TimedOut, Reason: fmt.Sprintf("no exit after %s", run.Duration.Round(time.Millisecond))}
	}
	if run.Signal != nil {
		reason := "terminated by " + run.Signal.Name
		if !run.Signal.Fault {
			reason += " (not a fault signal)"
		}
		return Verdict{Kind: Crashed, Reason: reason}
	}
	if code := run.ExitStatus(); code != 0 {
		return Verdict{Kind: NonZeroExit, Reason: fmt.Sprintf("exited with status %d", code)}
	}
	if run.OutputTruncated {
		return Verdict{Kind: OutputLimitExceeded, Reason: "output exceeded the capture limit"}
	}
	if reason, leaked := c.leak(run.Resources); leaked {
		return Verdict{Kind: ResourceLeak, Reason: reason}
	}
	if diff == nil {
		return Verdict{Kind: Correct, Reason: "exited normally, output not compared"}
	}

	if names := diff.Names(compare.KindMissingInActual); len(names) > 0 {
		return Verdict{Kind: MissingSection, Reason: "missing " + sectionList(names), Sections: names}
	}
	if names := diff.Names(compare.KindMissingInExpected); len(names) > 0 {
		return Verdict{Kind: UnexpectedSection, Reason: "unexpected " + sectionList(names), Sections: names}
	}
	mismatches := diff.Filter(compare.KindValueMismatch)
	if diff.OrderMismatch && len(mismatches) == 0 {
		return Verdict{Kind: OrderMismatch, Reason: "sections printed out of order"}
	}
	if len(mismatches) > 0 {
		return Verdict{
			Kind:     ValueMismatch,
			Reason:   describeMismatch(mismatches[0]),
			Sections: diff.Names(compare.KindValueMismatch),
		}
	}
	return Verdict{Kind: Correct, Reason: "all sections match"}
}

func (c *Classifier) leak(snap result.ResourceSnapshot) (string, bool) {
	p := c.Policy
	if p.MaxOutstandingAllocs >= 0 && snap.OutstandingAllocs != nil && *snap.OutstandingAllocs > p.MaxOutstandingAllocs {
		reason := fmt.Sprintf("%d allocations outstanding at exit", *snap.OutstandingAllocs)
		if snap.LeakedBytes != nil {
			reason += fmt.Sprintf(" (%d bytes)", *snap.LeakedBytes)
		}
		return reason, true
	}
	if p.MaxLeakedBytes >= 0 && snap.LeakedBytes != nil && *snap.LeakedBytes > p.MaxLeakedBytes {
		return fmt.Sprintf("%d bytes in use at exit", *snap.LeakedBytes), true
	}
	if p.MaxPeakMemoryBytes > 0 && snap.PeakMemoryBytes != nil && *snap.PeakMemoryBytes > p.MaxPeakMemoryBytes {
		return fmt.Sprintf("peak memory %d bytes exceeds %d", *snap.PeakMemoryBytes, p.MaxPeakMemoryBytes), true
	}
	return "", false
}

func sectionList(names []string) string {
	noun := "section"
	if len(names) > 1 {
		noun = "sections"
	}
	return noun + " " + strings.Join(names, ", ")
}

func describeMismatch(e compare.Entry) string {
	mm := e.Mismatch
	return fmt.Sprintf("section %s line %d: expected %s, got %s",
		e.Name, mm.LineNumber(), quoteLine(mm.Expected), quoteLine(mm.Actual))
}

func quoteLine(line *string) string {
	if line == nil {
		return "nothing"
	}
	return fmt.Sprintf("%q", *line)
}
