//go:build !linux

package engine

import (
	"context"

	"pvjudge/internal/judge/sandbox/instrument"
	"pvjudge/internal/judge/sandbox/result"
	"pvjudge/internal/judge/sandbox/spec"
	appErr "pvjudge/pkg/errors"
)

type stubEngine struct{}

func NewEngine(cfg Config, probe instrument.Probe) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	return result.RunResult{RunID: runSpec.RunID}, appErr.Infrastructure(nil, "execution supervisor is only supported on linux")
}
