// Package observer defines logging and metrics hooks for judged runs.
package observer

import (
	"context"
	"sort"
	"sync"

	"pvjudge/internal/judge/classify"
	"pvjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// MetricsRecorder records the outcome of judged runs.
type MetricsRecorder interface {
	ObserveRun(ctx context.Context, verdict classify.Verdict)
}

// LogRecorder writes one structured log line per verdict.
type LogRecorder struct{}

func (LogRecorder) ObserveRun(ctx context.Context, verdict classify.Verdict) {
	fields := []zap.Field{
		zap.String("run_id", verdict.RunID),
		zap.String("kind", string(verdict.Kind)),
		zap.String("reason", verdict.Reason),
	}
	if verdict.Name != "" {
		fields = append(fields, zap.String("case", verdict.Name))
	}
	if run := verdict.Run; run != nil {
		fields = append(fields, zap.Duration("duration", run.Duration))
		if run.Resources.PeakMemoryBytes != nil {
			fields = append(fields, zap.Int64("peak_memory_bytes", *run.Resources.PeakMemoryBytes))
		}
	}
	if verdict.Passed() {
		logger.Info(ctx, "run judged", fields...)
		return
	}
	logger.Warn(ctx, "run judged", fields...)
}

// Tally counts verdicts per fault kind. It is safe for concurrent use.
type Tally struct {
	mu     sync.Mutex
	counts map[classify.FaultKind]int
	total  int
}

func NewTally() *Tally {
	return &Tally{counts: make(map[classify.FaultKind]int)}
}

func (t *Tally) ObserveRun(_ context.Context, verdict classify.Verdict) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[verdict.Kind]++
	t.total++
}

// Counts returns a copy of the per-kind counts.
func (t *Tally) Counts() map[classify.FaultKind]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[classify.FaultKind]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

func (t *Tally) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Kinds returns the observed kinds sorted by name.
func (t *Tally) Kinds() []classify.FaultKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	kinds := make([]classify.FaultKind, 0, len(t.counts))
	for k := range t.counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Multi fans a verdict out to several recorders.
type Multi []MetricsRecorder

func (m Multi) ObserveRun(ctx context.Context, verdict classify.Verdict) {
	for _, r := range m {
		if r != nil {
			r.ObserveRun(ctx, verdict)
		}
	}
}
