package engine

import "time"

const (
	defaultOutputBytes int64 = 1 << 20
	defaultKillGrace         = 2 * time.Second
)

// Config controls supervisor behavior.
type Config struct {
	CgroupRoot   string `yaml:"cgroupRoot"`
	EnableCgroup bool   `yaml:"enableCgroup"`
	// DefaultOutputBytes caps each stream when the run spec sets no limit.
	DefaultOutputBytes int64 `yaml:"defaultOutputBytes"`
	// KillGrace bounds how long output keeps draining after the subject's
	// group has been killed, for streams held by processes that escaped it.
	KillGrace time.Duration `yaml:"killGrace"`
}

func (c Config) withDefaults() Config {
	if c.DefaultOutputBytes <= 0 {
		c.DefaultOutputBytes = defaultOutputBytes
	}
	if c.KillGrace <= 0 {
		c.KillGrace = defaultKillGrace
	}
	return c
}
