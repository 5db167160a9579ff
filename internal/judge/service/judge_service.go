package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"pvjudge/internal/common/mq"
	"pvjudge/internal/judge/classify"
	"pvjudge/internal/judge/compare"
	"pvjudge/internal/judge/sandbox/engine"
	"pvjudge/internal/judge/sandbox/observer"
	"pvjudge/internal/judge/sandbox/result"
	"pvjudge/internal/judge/sandbox/spec"
	"pvjudge/internal/judge/section"
	"pvjudge/internal/judge/suite"
	appErr "pvjudge/pkg/errors"
	"pvjudge/pkg/utils/contextkey"
	"pvjudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultTimeout        = 10 * time.Second
	defaultAcquireTimeout = 2 * time.Second

	// FilePlaceholder in a command template is replaced with the temp file path.
	FilePlaceholder = "{file}"
)

// Service judges subject runs.
type Service struct {
	engine         engine.Engine
	classifier     *classify.Classifier
	limiter        *mq.TokenLimiter
	recorder       observer.MetricsRecorder
	defaultTimeout time.Duration
	acquireTimeout time.Duration
	outputLimit    int64
	tempDir        string
}

// Config holds service dependencies and settings.
type Config struct {
	Engine     engine.Engine
	Classifier *classify.Classifier
	// Limiter is shared by every judgment; nil allows one run at a time.
	Limiter  *mq.TokenLimiter
	Recorder observer.MetricsRecorder

	DefaultTimeout time.Duration
	AcquireTimeout time.Duration
	// OutputLimitBytes caps each captured stream; zero defers to the engine.
	OutputLimitBytes int64
	// TempDir holds per-run temp files; empty uses the OS default.
	TempDir string
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classify.NewClassifier(classify.Policy{})
	}
	if cfg.Limiter == nil {
		cfg.Limiter = mq.NewTokenLimiter(1)
	}
	if cfg.Recorder == nil {
		cfg.Recorder = observer.LogRecorder{}
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}
	return &Service{
		engine:         cfg.Engine,
		classifier:     cfg.Classifier,
		limiter:        cfg.Limiter,
		recorder:       cfg.Recorder,
		defaultTimeout: cfg.DefaultTimeout,
		acquireTimeout: cfg.AcquireTimeout,
		outputLimit:    cfg.OutputLimitBytes,
		tempDir:        cfg.TempDir,
	}, nil
}

// Request describes one subject invocation and its reference output.
type Request struct {
	RunID   string
	Name    string
	Command []string
	// Expected wins over ExpectedRaw when both are set.
	Expected    *section.ParsedOutput
	ExpectedRaw []byte
	Stdin       []byte
	Env         []string
	WorkDir     string
	// TempFile content is written to a fresh file whose path replaces
	// FilePlaceholder and suite.FileArg in Command.
	TempFile  *string
	Timeout   time.Duration
	Unordered map[string]bool
}

// Outcome pairs a request index with its verdict or infrastructure error.
type Outcome struct {
	Index   int              `json:"index"`
	Verdict classify.Verdict `json:"verdict"`
	Err     error            `json:"-"`
}

// Aggregate is the folded result of repeated runs.
type Aggregate struct {
	Verdict classify.Verdict   `json:"verdict"`
	Runs    []classify.Verdict `json:"runs"`
}

// Judge runs the subject once and classifies it. Subject misbehaviour is
// always a verdict; the error is reserved for caller and judge failures.
// It waits at most the configured acquire timeout for a free slot.
func (s *Service) Judge(ctx context.Context, req Request) (classify.Verdict, error) {
	return s.judge(ctx, req, s.acquireTimeout)
}

func (s *Service) judge(ctx context.Context, req Request, acquireWait time.Duration) (classify.Verdict, error) {
	if err := validateRequest(req); err != nil {
		return classify.Verdict{}, err
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = contextkey.WithRunID(ctx, runID)
	if req.Name != "" {
		ctx = contextkey.WithCase(ctx, req.Name)
	}

	expected := resolveExpected(req)
	command := req.Command
	if req.TempFile != nil {
		path, cleanup, err := s.writeTempFile(*req.TempFile)
		if err != nil {
			return classify.Verdict{}, err
		}
		defer cleanup()
		command = substituteFile(command, path)
	}

	if err := s.limiter.AcquireWithin(ctx, acquireWait); err != nil {
		if appErr.Is(err, appErr.JudgeQueueFull) {
			return classify.Verdict{}, err
		}
		return classify.Verdict{}, appErr.Infrastructure(err, "wait for judge slot")
	}
	defer s.limiter.Release()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	run, err := s.engine.Run(ctx, spec.RunSpec{
		RunID:   runID,
		WorkDir: req.WorkDir,
		Cmd:     command,
		Env:     req.Env,
		Stdin:   req.Stdin,
		Limits: spec.ResourceLimit{
			WallTimeMs:  timeout.Milliseconds(),
			OutputBytes: s.outputLimit,
		},
	})
	if err != nil {
		logger.Error(ctx, "judge run failed", zap.Error(err))
		return classify.Verdict{}, err
	}

	verdict := s.classifier.Classify(run, compareOutput(run, expected, req.Unordered))
	verdict.Name = req.Name
	s.recorder.ObserveRun(ctx, verdict)
	return verdict, nil
}

// JudgeMany judges every request concurrently, bounded by the shared
// limiter. Outcomes keep request order.
func (s *Service) JudgeMany(ctx context.Context, reqs []Request) []Outcome {
	outcomes := make([]Outcome, len(reqs))
	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.judge(ctx, reqs[i], 0)
			outcomes[i] = Outcome{Index: i, Verdict: v, Err: err}
		}(i)
	}
	wg.Wait()
	return outcomes
}

// JudgeRepeated runs the same request n times. Disagreeing kinds yield a
// Nondeterministic verdict.
func (s *Service) JudgeRepeated(ctx context.Context, req Request, n int) (Aggregate, error) {
	if n <= 0 {
		return Aggregate{}, appErr.Newf(appErr.RepeatCountInvalid, "repeat count %d must be positive", n)
	}
	base := req.RunID
	if base == "" {
		base = uuid.NewString()
	}
	reqs := make([]Request, n)
	for i := range reqs {
		reqs[i] = req
		reqs[i].RunID = fmt.Sprintf("%s-%d", base, i+1)
	}

	outcomes := s.JudgeMany(ctx, reqs)
	runs := make([]classify.Verdict, 0, n)
	for _, o := range outcomes {
		if o.Err != nil {
			return Aggregate{}, o.Err
		}
		runs = append(runs, o.Verdict)
	}
	agg := Aggregate{Verdict: classify.Aggregate(runs), Runs: runs}
	if agg.Verdict.Kind == classify.Nondeterministic {
		logger.Warn(ctx, "repeated runs disagree", zap.String("case", req.Name), zap.String("reason", agg.Verdict.Reason))
	}
	return agg, nil
}

// JudgeSuite judges every case of a suite against the base command.
func (s *Service) JudgeSuite(ctx context.Context, st suite.Suite, base []string) []Outcome {
	return s.JudgeMany(ctx, SuiteRequests(st, base))
}

// SuiteRequests turns suite cases into requests for the base command.
func SuiteRequests(st suite.Suite, base []string) []Request {
	reqs := make([]Request, 0, st.Len())
	for _, c := range st.Cases {
		expected := c.Expected
		command := make([]string, 0, len(base)+len(c.Args))
		command = append(command, base...)
		command = append(command, c.Args...)
		reqs = append(reqs, Request{
			Name:      c.Name,
			Command:   command,
			Expected:  &expected,
			Stdin:     c.Input,
			TempFile:  c.File,
			Unordered: c.Unordered(),
		})
	}
	return reqs
}

func validateRequest(req Request) error {
	if len(req.Command) == 0 || strings.TrimSpace(req.Command[0]) == "" {
		return appErr.New(appErr.SubjectCommandInvalid).WithMessage("command is required")
	}
	if req.Expected == nil && req.ExpectedRaw == nil {
		return appErr.New(appErr.ExpectedOutputMissing)
	}
	return nil
}

func resolveExpected(req Request) section.ParsedOutput {
	if req.Expected != nil {
		return *req.Expected
	}
	return section.Parse(req.ExpectedRaw)
}

// compareOutput diffs only runs that exited normally; partial output of a
// killed or timed out subject is evidence, not something to compare.
func compareOutput(run result.RunResult, expected section.ParsedOutput, unordered map[string]bool) *compare.Diff {
	if !run.Exited() {
		return nil
	}
	diff := compare.SectionsWith(expected, section.Parse(run.Stdout), compare.Options{Unordered: unordered})
	return &diff
}

func (s *Service) writeTempFile(content string) (string, func(), error) {
	f, err := os.CreateTemp(s.tempDir, "pvjudge-*")
	if err != nil {
		return "", func() {}, appErr.Infrastructure(err, "create temp file")
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, appErr.Infrastructure(err, "write temp file")
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, appErr.Infrastructure(err, "close temp file")
	}
	return f.Name(), cleanup, nil
}

func substituteFile(command []string, path string) []string {
	out := make([]string, len(command))
	for i, arg := range command {
		if arg == suite.FileArg {
			out[i] = path
			continue
		}
		out[i] = strings.ReplaceAll(arg, FilePlaceholder, path)
	}
	return out
}
