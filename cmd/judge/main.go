package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	judgeconfig "pvjudge/internal/judge/config"
	"pvjudge/internal/judge/dispatch"
	"pvjudge/internal/judge/model"
	"pvjudge/internal/judge/sandbox/observer"
	"pvjudge/internal/judge/suite"
	appErr "pvjudge/pkg/errors"
	"pvjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	exitPassed = 0
	exitFailed = 1
	exitError  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("judge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	suitePath := fs.String("suite", "", "Suite file with test cases")
	expectedPath := fs.String("expected", "", "Expected output file for a single run")
	command := fs.String("cmd", "", "Subject command, e.g. \"./prog .FILE\"")
	repeat := fs.Int("repeat", 1, "Runs per case; disagreeing runs are reported as Nondeterministic")
	timeoutMs := fs.Int64("timeout-ms", 0, "Wall time limit per run, overrides the config")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if *command == "" || (*suitePath == "") == (*expectedPath == "") {
		fmt.Fprintln(stderr, "usage: judge -cmd COMMAND (-suite FILE | -expected FILE) [-config FILE] [-repeat N]")
		return exitError
	}

	var cfg judgeconfig.Config
	if *configPath != "" {
		if err := judgeconfig.LoadYAML(*configPath, &cfg); err != nil {
			fmt.Fprintf(stderr, "load config failed: %v\n", err)
			return exitError
		}
	}
	cfg.ApplyDefaults()
	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(stderr, "init logger failed: %v\n", err)
		return exitError
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tally := observer.NewTally()
	svc, err := cfg.NewService(observer.Multi{observer.LogRecorder{}, tally})
	if err != nil {
		logger.Error(ctx, "init judge service failed", zap.Error(err))
		return exitError
	}
	// The CLI judges whatever the local user names on its command line.
	runner, err := dispatch.NewRunner(dispatch.RunnerConfig{Judger: svc, Suites: fileSuites{}, RawCommands: true})
	if err != nil {
		logger.Error(ctx, "init runner failed", zap.Error(err))
		return exitError
	}

	req := model.JudgeRequest{
		Command:   *command,
		SuiteKey:  *suitePath,
		Repeat:    *repeat,
		TimeoutMs: *timeoutMs,
	}
	if *expectedPath != "" {
		data, err := os.ReadFile(*expectedPath)
		if err != nil {
			fmt.Fprintf(stderr, "read expected output failed: %v\n", err)
			return exitError
		}
		req.Expected = string(data)
	}

	resp, err := runner.Run(ctx, req)
	if err != nil {
		fmt.Fprintf(stderr, "judge failed: %v\n", err)
		return exitError
	}

	enc := json.NewEncoder(stdout)
	for _, rec := range resp.Verdicts {
		if err := enc.Encode(rec); err != nil {
			fmt.Fprintf(stderr, "write verdict failed: %v\n", err)
			return exitError
		}
	}
	for _, kind := range tally.Kinds() {
		fmt.Fprintf(stderr, "%-20s %d\n", kind, tally.Counts()[kind])
	}
	if !resp.Passed {
		return exitFailed
	}
	return exitPassed
}

// fileSuites loads suites from the local filesystem.
type fileSuites struct{}

func (fileSuites) Load(_ context.Context, path string) (suite.Suite, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return suite.Suite{}, appErr.Wrapf(err, appErr.SuiteNotFound, "suite %s not found", path)
		}
		return suite.Suite{}, fmt.Errorf("open suite: %w", err)
	}
	defer f.Close()
	return suite.ParseReader(f, suite.DefaultMaxBytes)
}
