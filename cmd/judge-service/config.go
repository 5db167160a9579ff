package main

import (
	"fmt"
	"os"
	"time"

	"pvjudge/internal/common/cache"
	"pvjudge/internal/common/http/middleware"
	"pvjudge/internal/common/mq"
	"pvjudge/internal/common/storage"
	judgeconfig "pvjudge/internal/judge/config"
	"pvjudge/internal/judge/dispatch"
	"pvjudge/internal/judge/repository"
)

const (
	defaultHTTPAddr        = "127.0.0.1:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultVerdictTTL      = 24 * time.Hour

	authSecretEnv = "PVJUDGE_AUTH_SECRET"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`

	// RunLimit throttles POST /runs per client IP.
	RunLimit middleware.RateLimitPolicy `yaml:"runLimit"`
	// SuiteLimit throttles suite uploads; RunLimit is used when unset.
	SuiteLimit middleware.RateLimitPolicy `yaml:"suiteLimit"`

	// Auth signs the bearer tokens every judge route requires. The secret
	// may come from PVJUDGE_AUTH_SECRET instead of the file.
	Auth middleware.AuthConfig `yaml:"auth"`
	// SuiteRoles may upload suites.
	SuiteRoles []string `yaml:"suiteRoles"`
}

// KafkaConfig holds Kafka settings. Judging from Kafka is off without brokers.
type KafkaConfig struct {
	mq.KafkaConfig `yaml:",inline"`

	RequestTopic  string        `yaml:"requestTopic"`
	VerdictTopic  string        `yaml:"verdictTopic"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Concurrency   int           `yaml:"concurrency"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	RetryTopic    string        `yaml:"retryTopic"`
	PoolRetryMax  int           `yaml:"poolRetryMax"`
	PoolRetryBase time.Duration `yaml:"poolRetryBaseDelay"`
	PoolRetryMaxD time.Duration `yaml:"poolRetryMaxDelay"`
	DeadLetter    string        `yaml:"deadLetterTopic"`
}

// Enabled reports whether Kafka is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// VerdictConfig holds verdict persistence settings.
type VerdictConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	RecentLimit int64         `yaml:"recentLimit"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	judgeconfig.Config `yaml:",inline"`

	Server  ServerConfig                `yaml:"server"`
	Redis   cache.RedisConfig           `yaml:"redis"`
	MinIO   storage.MinIOConfig         `yaml:"minio"`
	Suites  repository.SuiteStoreConfig `yaml:"suites"`
	Verdict VerdictConfig               `yaml:"verdict"`
	Kafka   KafkaConfig                 `yaml:"kafka"`

	// Subjects are the only programs requests may judge, by name.
	Subjects map[string]dispatch.Subject `yaml:"subjects"`
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := judgeconfig.LoadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Server.Auth.Secret == "" {
		cfg.Server.Auth.Secret = os.Getenv(authSecretEnv)
	}
	if cfg.Server.Auth.Secret == "" {
		return nil, fmt.Errorf("server.auth.secret or %s is required", authSecretEnv)
	}
	if len(cfg.Subjects) == 0 {
		return nil, fmt.Errorf("at least one subject is required")
	}
	for name, subject := range cfg.Subjects {
		if subject.Command == "" {
			return nil, fmt.Errorf("subject %s has no command", name)
		}
	}
	cfg.ApplyDefaults()
	applyRedisDefaults(&cfg.Redis)
	if len(cfg.Server.SuiteRoles) == 0 {
		cfg.Server.SuiteRoles = []string{"admin"}
	}
	if cfg.Server.SuiteLimit.IPMax == 0 {
		cfg.Server.SuiteLimit = cfg.Server.RunLimit
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Verdict.TTL == 0 {
		cfg.Verdict.TTL = defaultVerdictTTL
	}
	if cfg.Suites.Bucket == "" {
		cfg.Suites.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Kafka.RequestTopic == "" {
		cfg.Kafka.RequestTopic = "judge.requests"
	}
	if cfg.Kafka.VerdictTopic == "" {
		cfg.Kafka.VerdictTopic = "judge.verdicts"
	}
	if cfg.Kafka.RetryTopic == "" {
		cfg.Kafka.RetryTopic = "judge.retry"
	}
	if cfg.Kafka.PoolRetryMax <= 0 {
		cfg.Kafka.PoolRetryMax = 5
	}
	if cfg.Kafka.PoolRetryBase == 0 {
		cfg.Kafka.PoolRetryBase = time.Second
	}
	if cfg.Kafka.PoolRetryMaxD == 0 {
		cfg.Kafka.PoolRetryMaxD = 30 * time.Second
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
}
