// Package engine supervises one subject process per run: it starts the
// process in its own group, drains its streams, enforces the wall-clock
// deadline and reports what happened.
package engine

import (
	"bytes"
	"context"
	"sync"

	"pvjudge/internal/judge/sandbox/result"
	"pvjudge/internal/judge/sandbox/spec"
)

// Engine executes a RunSpec and observes the subject.
//
// Subject misbehaviour is reported inside the RunResult. A non-nil error
// always means the judge itself failed.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
}

// capWriter keeps the first limit bytes written to it and discards the rest,
// remembering that it did so. A limit <= 0 keeps everything.
type capWriter struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func newCapWriter(limit int64) *capWriter {
	return &capWriter{limit: limit}
}

func (w *capWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.limit <= 0 {
		return w.buf.Write(p)
	}
	remaining := w.limit - int64(w.buf.Len())
	if remaining <= 0 {
		if len(p) > 0 {
			w.truncated = true
		}
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		w.buf.Write(p[:remaining])
		w.truncated = true
		// Report everything as consumed so the copier keeps draining.
		return len(p), nil
	}
	return w.buf.Write(p)
}

func (w *capWriter) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]byte, w.buf.Len())
	copy(out, w.buf.Bytes())
	return out
}

func (w *capWriter) Truncated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.truncated
}
