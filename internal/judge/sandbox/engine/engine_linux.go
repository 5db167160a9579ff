//go:build linux

package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"pvjudge/internal/judge/sandbox/instrument"
	"pvjudge/internal/judge/sandbox/result"
	"pvjudge/internal/judge/sandbox/spec"
	appErr "pvjudge/pkg/errors"
	"pvjudge/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// faultSignals are raised by the subject's own faulty execution.
var faultSignals = map[syscall.Signal]struct{}{
	unix.SIGSEGV: {},
	unix.SIGBUS:  {},
	unix.SIGILL:  {},
	unix.SIGFPE:  {},
	unix.SIGABRT: {},
	unix.SIGSYS:  {},
	unix.SIGTRAP: {},
}

type linuxEngine struct {
	cfg   Config
	probe instrument.Probe
}

// NewEngine creates a Linux execution supervisor. A nil probe runs subjects uninstrumented.
func NewEngine(cfg Config, probe instrument.Probe) (Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, fmt.Errorf("cgroup root is required when cgroups are enabled")
	}
	if probe == nil {
		probe = instrument.NopProbe{}
	}
	return &linuxEngine{cfg: cfg, probe: probe}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	res := result.RunResult{RunID: runSpec.RunID}
	if len(runSpec.Cmd) == 0 || runSpec.Cmd[0] == "" {
		return res, appErr.Newf(appErr.SubjectCommandInvalid, "command is required")
	}
	if err := ctx.Err(); err != nil {
		return res, appErr.Infrastructure(err, "run %s cancelled before start", runSpec.RunID).ForRun(runSpec.RunID)
	}

	outputLimit := runSpec.Limits.OutputBytes
	if outputLimit <= 0 {
		outputLimit = e.cfg.DefaultOutputBytes
	}

	cgroupPath := ""
	if e.cfg.EnableCgroup {
		var cleanup func()
		var err error
		cgroupPath, cleanup, err = createRunCgroup(e.cfg.CgroupRoot, runSpec.RunID)
		if err != nil {
			return res, appErr.Infrastructure(err, "create cgroup").ForRun(runSpec.RunID)
		}
		defer cleanup()
		if err := applyCgroupLimits(cgroupPath, runSpec.Limits); err != nil {
			return res, appErr.Infrastructure(err, "apply cgroup limits").ForRun(runSpec.RunID)
		}
	}

	argv := e.probe.Wrap(runSpec.Cmd)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = runSpec.WorkDir
	cmd.Env = append(os.Environ(), runSpec.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	pipes, err := openPipes(cmd, len(runSpec.Stdin) > 0, outputLimit)
	if err != nil {
		return res, appErr.Infrastructure(err, "create subject pipes").ForRun(runSpec.RunID)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		pipes.abort()
		if isLaunchFailure(err) {
			res.LaunchErr = err.Error()
			logger.Info(ctx, "subject failed to launch", zap.String("run_id", runSpec.RunID), zap.Error(err))
			return res, nil
		}
		return res, appErr.Infrastructure(err, "start subject").ForRun(runSpec.RunID)
	}
	pid := cmd.Process.Pid
	pipes.started(runSpec.Stdin)

	if cgroupPath != "" {
		if err := addProcessToCgroup(cgroupPath, pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}

	killer := &groupKiller{pgid: pid, cgroupPath: cgroupPath}
	var timedOut, cancelled atomic.Bool
	done := make(chan struct{})
	go func() {
		var deadline <-chan time.Time
		if limit := runSpec.Limits.WallTime(); limit > 0 {
			timer := time.NewTimer(limit)
			defer timer.Stop()
			deadline = timer.C
		}
		select {
		case <-deadline:
			timedOut.Store(true)
			killer.kill()
		case <-ctx.Done():
			cancelled.Store(true)
			killer.kill()
		case <-done:
		}
	}()

	// Wait returns once the leader is reaped; the streams are drained
	// separately so descendants holding them cannot delay it.
	waitErr := cmd.Wait()
	close(done)
	res.Duration = time.Since(start)

	// Descendants never outlive the run.
	if err := reapGroup(pid, cgroupPath); err != nil {
		logger.Warn(ctx, "reap process group failed", zap.String("run_id", runSpec.RunID), zap.Error(err))
	}
	if !pipes.drain(e.cfg.KillGrace) {
		logger.Warn(ctx, "subject streams still open after exit", zap.String("run_id", runSpec.RunID))
	}
	res.Stdout = pipes.stdout.Bytes()
	res.Stderr = pipes.stderr.Bytes()
	res.OutputTruncated = pipes.stdout.Truncated() || pipes.stderr.Truncated()

	if err := killer.err(); err != nil {
		return res, appErr.InfrastructureAs(appErr.KillFailed, err, "kill process group %d", pid).ForRun(runSpec.RunID)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return res, appErr.InfrastructureAs(appErr.StreamReadFailed, waitErr, "wait subject").ForRun(runSpec.RunID)
		}
	}
	if err := pipes.err(); err != nil {
		return res, appErr.InfrastructureAs(appErr.StreamReadFailed, err, "read subject output").ForRun(runSpec.RunID)
	}

	state := cmd.ProcessState
	ws, ok := state.Sys().(syscall.WaitStatus)
	killed := ok && ws.Signaled()
	if killed {
		res.Signal = describeSignal(ws.Signal())
	} else {
		res.ExitCode = result.Int(state.ExitCode())
	}
	// A leader that exited on its own beat the deadline even when the
	// watcher fired before Wait returned.
	res.TimedOut = timedOut.Load() && killed
	if cancelled.Load() && killed {
		return res, appErr.Infrastructure(ctx.Err(), "run %s cancelled", runSpec.RunID).ForRun(runSpec.RunID)
	}
	res.Resources.PeakMemoryBytes = peakMemoryBytes(cgroupPath, state)

	if err := e.probe.Collect(&res); err != nil {
		if appErr.Is(err, appErr.ProbeFailed) {
			return res, err
		}
		return res, appErr.InfrastructureAs(appErr.ProbeFailed, err, "collect %s probe", e.probe.Name()).ForRun(runSpec.RunID)
	}

	logger.Debug(ctx, "subject finished",
		zap.String("run_id", runSpec.RunID),
		zap.Duration("duration", res.Duration),
		zap.Bool("timed_out", res.TimedOut),
		zap.Int("exit_code", res.ExitStatus()),
		zap.Int("stdout_bytes", len(res.Stdout)),
	)
	return res, nil
}

// groupKiller terminates the subject's process group at most once.
type groupKiller struct {
	pgid       int
	cgroupPath string
	once       sync.Once
	mu         sync.Mutex
	killErr    error
}

func (k *groupKiller) kill() {
	k.once.Do(func() {
		err := unix.Kill(-k.pgid, unix.SIGKILL)
		if errors.Is(err, unix.ESRCH) {
			err = nil
		}
		if k.cgroupPath != "" {
			if cgErr := killCgroup(k.cgroupPath); cgErr != nil && !errors.Is(cgErr, fs.ErrNotExist) {
				err = errors.Join(err, cgErr)
			}
		}
		k.mu.Lock()
		k.killErr = err
		k.mu.Unlock()
	})
}

func (k *groupKiller) err() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.killErr
}

// reapGroup kills whatever is left of the subject's group after the leader
// has been reaped. It never marks the run as timed out.
func reapGroup(pgid int, cgroupPath string) error {
	err := unix.Kill(-pgid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		err = nil
	}
	if cgroupPath != "" {
		if cgErr := killCgroup(cgroupPath); cgErr != nil && !errors.Is(cgErr, fs.ErrNotExist) {
			err = errors.Join(err, cgErr)
		}
	}
	return err
}

func describeSignal(sig syscall.Signal) *result.Signal {
	name := unix.SignalName(sig)
	if name == "" {
		name = fmt.Sprintf("signal %d", int(sig))
	}
	_, fault := faultSignals[sig]
	return &result.Signal{Number: int(sig), Name: name, Fault: fault}
}

// isLaunchFailure separates "the subject cannot be executed" from failures
// of the supervisor itself.
func isLaunchFailure(err error) bool {
	return errors.Is(err, exec.ErrNotFound) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, unix.ENOEXEC) ||
		errors.Is(err, unix.EISDIR) ||
		errors.Is(err, unix.ENOTDIR)
}
