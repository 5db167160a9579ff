// Package instrument wraps subject commands with resource probes and
// collects what the probe observed once the run has finished.
package instrument

import "pvjudge/internal/judge/sandbox/result"

// Probe instruments a subject run.
type Probe interface {
	// Name identifies the probe in logs.
	Name() string
	// Wrap returns the command actually executed for cmd.
	Wrap(cmd []string) []string
	// Collect fills res.Resources from the run evidence. It may strip the
	// probe's own diagnostics from res.Stderr.
	Collect(res *result.RunResult) error
}

// NopProbe runs the subject as-is and records nothing.
type NopProbe struct{}

func (NopProbe) Name() string { return "none" }

func (NopProbe) Wrap(cmd []string) []string { return cmd }

func (NopProbe) Collect(*result.RunResult) error { return nil }

// New returns the probe registered under name. Empty and "none" select NopProbe.
func New(name string, cfg ValgrindConfig) (Probe, error) {
	switch name {
	case "", "none":
		return NopProbe{}, nil
	case "valgrind":
		return NewValgrindProbe(cfg), nil
	default:
		return nil, &UnknownProbeError{Name: name}
	}
}

// UnknownProbeError reports an unsupported probe name.
type UnknownProbeError struct {
	Name string
}

func (e *UnknownProbeError) Error() string {
	return "unknown probe: " + e.Name
}
