// Package dispatch turns judge requests from the HTTP API and the message
// queue into stored verdicts.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"pvjudge/internal/judge/classify"
	"pvjudge/internal/judge/model"
	"pvjudge/internal/judge/repository"
	"pvjudge/internal/judge/service"
	"pvjudge/internal/judge/suite"
	appErr "pvjudge/pkg/errors"
	"pvjudge/pkg/utils/contextkey"
	"pvjudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxRepeat = 100

// Judger is the part of service.Service the runner drives.
type Judger interface {
	Judge(ctx context.Context, req service.Request) (classify.Verdict, error)
	JudgeMany(ctx context.Context, reqs []service.Request) []service.Outcome
	JudgeRepeated(ctx context.Context, req service.Request, n int) (service.Aggregate, error)
}

// SuiteLoader resolves a suite key into a parsed suite.
type SuiteLoader interface {
	Load(ctx context.Context, key string) (suite.Suite, error)
}

// VerdictStore persists verdict records.
type VerdictStore interface {
	Save(ctx context.Context, rec model.VerdictRecord) error
}

// Runner judges a request, stores every verdict and announces it.
type Runner struct {
	judger   Judger
	suites   SuiteLoader
	verdicts VerdictStore
	events   repository.VerdictEventPublisher
	subjects map[string]Subject
	// rawCommands lets requests carry their own command line.
	rawCommands bool
	now         func() time.Time
}

// RunnerConfig wires a Runner. Suites, Verdicts and Events are optional.
// Requests name one of Subjects; RawCommands additionally accepts a
// command from the request and is meant for the local CLI only.
type RunnerConfig struct {
	Judger      Judger
	Suites      SuiteLoader
	Verdicts    VerdictStore
	Events      repository.VerdictEventPublisher
	Subjects    map[string]Subject
	RawCommands bool
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Judger == nil {
		return nil, fmt.Errorf("judger is required")
	}
	return &Runner{
		judger:      cfg.Judger,
		suites:      cfg.Suites,
		verdicts:    cfg.Verdicts,
		events:      cfg.Events,
		subjects:    cfg.Subjects,
		rawCommands: cfg.RawCommands,
		now:         time.Now,
	}, nil
}

// Run judges req. A suite request yields one verdict per case, run ids
// suffixed with the case number.
func (r *Runner) Run(ctx context.Context, req model.JudgeRequest) (model.RunResponse, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = contextkey.WithRunID(ctx, runID)

	if req.Repeat < 0 || req.Repeat > maxRepeat {
		return model.RunResponse{}, appErr.Newf(appErr.RepeatCountInvalid, "repeat must be between 1 and %d", maxRepeat)
	}
	repeat := req.Repeat
	if repeat == 0 {
		repeat = 1
	}

	reqs, err := r.buildRequests(ctx, runID, req)
	if err != nil {
		return model.RunResponse{}, err
	}

	records, err := r.judge(ctx, reqs, repeat)
	if err != nil {
		return model.RunResponse{}, err
	}

	resp := model.RunResponse{RunID: runID, Passed: true, Verdicts: records}
	for i := range records {
		if !records[i].Passed() {
			resp.Passed = false
		}
		r.persist(ctx, records[i])
	}
	return resp, nil
}

func (r *Runner) buildRequests(ctx context.Context, runID string, req model.JudgeRequest) ([]service.Request, error) {
	command, env, err := r.resolveSubject(req)
	if err != nil {
		return nil, err
	}

	var reqs []service.Request
	if req.HasSuite() {
		if r.suites == nil {
			return nil, appErr.New(appErr.ServiceUnavailable).WithMessage("suite storage is not configured")
		}
		st, err := r.suites.Load(ctx, req.SuiteKey)
		if err != nil {
			return nil, err
		}
		reqs = service.SuiteRequests(st, command)
		for i := range reqs {
			reqs[i].RunID = fmt.Sprintf("%s.%d", runID, i+1)
		}
	} else {
		if req.Expected == "" {
			return nil, appErr.New(appErr.ExpectedOutputMissing)
		}
		reqs = []service.Request{{
			RunID:       runID,
			Command:     command,
			ExpectedRaw: []byte(req.Expected),
			Stdin:       []byte(req.Stdin),
			TempFile:    req.File,
		}}
	}

	unordered := make(map[string]bool, len(req.Unordered))
	for _, name := range req.Unordered {
		unordered[name] = true
	}
	for i := range reqs {
		reqs[i].Env = env
		if req.TimeoutMs > 0 {
			reqs[i].Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
		}
		if len(unordered) > 0 {
			merged := make(map[string]bool, len(unordered)+len(reqs[i].Unordered))
			for name := range reqs[i].Unordered {
				merged[name] = true
			}
			for name := range unordered {
				merged[name] = true
			}
			reqs[i].Unordered = merged
		}
	}
	return reqs, nil
}

func (r *Runner) judge(ctx context.Context, reqs []service.Request, repeat int) ([]model.VerdictRecord, error) {
	now := r.now()
	records := make([]model.VerdictRecord, 0, len(reqs))

	if repeat > 1 {
		for _, req := range reqs {
			agg, err := r.judger.JudgeRepeated(ctx, req, repeat)
			if err != nil {
				return nil, err
			}
			v := agg.Verdict
			v.RunID = req.RunID
			v.Name = req.Name
			records = append(records, model.NewVerdictRecord(v, len(agg.Runs), now))
		}
		return records, nil
	}

	if len(reqs) == 1 {
		v, err := r.judger.Judge(ctx, reqs[0])
		if err != nil {
			return nil, err
		}
		return append(records, model.NewVerdictRecord(v, 1, now)), nil
	}

	for _, o := range r.judger.JudgeMany(ctx, reqs) {
		if o.Err != nil {
			return nil, o.Err
		}
		records = append(records, model.NewVerdictRecord(o.Verdict, 1, now))
	}
	return records, nil
}

// persist stores and announces a record. Failures are logged; the
// verdict has already been decided.
func (r *Runner) persist(ctx context.Context, rec model.VerdictRecord) {
	if r.verdicts != nil {
		if err := r.verdicts.Save(ctx, rec); err != nil {
			logger.Error(ctx, "store verdict failed", zap.String("run_id", rec.RunID), zap.Error(err))
		}
	}
	if r.events != nil {
		if err := r.events.PublishFinal(ctx, rec); err != nil {
			logger.Warn(ctx, "publish verdict event failed", zap.String("run_id", rec.RunID), zap.Error(err))
		}
	}
}
