// Package config holds the judge settings shared by the CLI and the service
// and builds a judge service from them.
package config

import (
	"fmt"
	"os"
	"time"

	"pvjudge/internal/common/mq"
	"pvjudge/internal/judge/classify"
	"pvjudge/internal/judge/sandbox/engine"
	"pvjudge/internal/judge/sandbox/instrument"
	"pvjudge/internal/judge/sandbox/observer"
	"pvjudge/internal/judge/service"
	"pvjudge/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimeout        = 10 * time.Second
	defaultAcquireTimeout = 2 * time.Second
)

// JudgeConfig holds run scheduling settings.
type JudgeConfig struct {
	DefaultTimeout   time.Duration `yaml:"defaultTimeout"`
	PoolSize         int           `yaml:"poolSize"`
	AcquireTimeout   time.Duration `yaml:"acquireTimeout"`
	OutputLimitBytes int64         `yaml:"outputLimitBytes"`
	TempDir          string        `yaml:"tempDir"`
}

// ProbeConfig selects the resource probe.
type ProbeConfig struct {
	// Name is "none" or "valgrind".
	Name     string                    `yaml:"name"`
	Valgrind instrument.ValgrindConfig `yaml:"valgrind"`
}

// Config is the judge part of every binary's config file.
type Config struct {
	Logger     logger.Config   `yaml:"logger"`
	Engine     engine.Config   `yaml:"engine"`
	Classifier classify.Policy `yaml:"classifier"`
	Judge      JudgeConfig     `yaml:"judge"`
	Probe      ProbeConfig     `yaml:"probe"`
}

// LoadYAML reads path into out.
func LoadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// ApplyDefaults fills unset judge settings.
func (c *Config) ApplyDefaults() {
	if c.Judge.DefaultTimeout <= 0 {
		c.Judge.DefaultTimeout = defaultTimeout
	}
	if c.Judge.PoolSize <= 0 {
		c.Judge.PoolSize = 1
	}
	if c.Judge.AcquireTimeout <= 0 {
		c.Judge.AcquireTimeout = defaultAcquireTimeout
	}
	if c.Probe.Name == "" {
		c.Probe.Name = "none"
	}
}

// NewService builds the engine, probe and classifier and wires them into a
// judge service. recorder may be nil.
func (c Config) NewService(recorder observer.MetricsRecorder) (*service.Service, error) {
	probe, err := instrument.New(c.Probe.Name, c.Probe.Valgrind)
	if err != nil {
		return nil, err
	}
	eng, err := engine.NewEngine(c.Engine, probe)
	if err != nil {
		return nil, fmt.Errorf("init engine failed: %w", err)
	}
	return service.NewService(service.Config{
		Engine:           eng,
		Classifier:       classify.NewClassifier(c.Classifier),
		Limiter:          mq.NewTokenLimiter(c.Judge.PoolSize),
		Recorder:         recorder,
		DefaultTimeout:   c.Judge.DefaultTimeout,
		AcquireTimeout:   c.Judge.AcquireTimeout,
		OutputLimitBytes: c.Judge.OutputLimitBytes,
		TempDir:          c.Judge.TempDir,
	})
}
