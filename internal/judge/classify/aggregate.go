package classify

import (
	"fmt"
	"sort"
	"strings"
)

// Aggregate folds the verdicts of repeated runs on identical input.
// Uniform kinds yield the first verdict; anything else is Nondeterministic,
// carrying the evidence of the first run that disagreed.
func Aggregate(verdicts []Verdict) Verdict {
	if len(verdicts) == 0 {
		return Verdict{Kind: Nondeterministic, Reason: "no runs"}
	}
	first := verdicts[0]
	counts := map[FaultKind]int{}
	var odd *Verdict
	for i := range verdicts {
		counts[verdicts[i].Kind]++
		if odd == nil && verdicts[i].Kind != first.Kind {
			odd = &verdicts[i]
		}
	}
	if odd == nil {
		return first
	}

	parts := make([]string, 0, len(counts))
	for kind, n := range counts {
		parts = append(parts, fmt.Sprintf("%s x%d", kind, n))
	}
	sort.Strings(parts)
	return Verdict{
		RunID:    odd.RunID,
		Name:     first.Name,
		Kind:     Nondeterministic,
		Reason:   fmt.Sprintf("%d runs disagree: %s", len(verdicts), strings.Join(parts, ", ")),
		Sections: odd.Sections,
		Diff:     odd.Diff,
		Run:      odd.Run,
	}
}
