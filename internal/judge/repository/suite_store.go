package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"pvjudge/internal/common/cache"
	"pvjudge/internal/common/storage"
	"pvjudge/internal/judge/suite"
	appErr "pvjudge/pkg/errors"
)

const (
	suiteKeyPrefix = "judge:suite:"

	defaultSuiteTTL      = 10 * time.Minute
	defaultSuiteEmptyTTL = 30 * time.Second
)

// SuiteStore loads reference suites from object storage. Raw suite text
// is cached so hot suites skip the object store.
type SuiteStore struct {
	storage  storage.ObjectStorage
	cache    cache.Cache
	bucket   string
	ttl      time.Duration
	emptyTTL time.Duration
	maxBytes int64
}

// SuiteStoreConfig configures a SuiteStore.
type SuiteStoreConfig struct {
	Bucket   string        `yaml:"bucket"`
	TTL      time.Duration `yaml:"ttl"`
	EmptyTTL time.Duration `yaml:"emptyTTL"`
	MaxBytes int64         `yaml:"maxBytes"`
}

// NewSuiteStore creates a store. cacheClient may be nil.
func NewSuiteStore(objectStorage storage.ObjectStorage, cacheClient cache.Cache, cfg SuiteStoreConfig) *SuiteStore {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultSuiteTTL
	}
	if cfg.EmptyTTL <= 0 {
		cfg.EmptyTTL = defaultSuiteEmptyTTL
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = suite.DefaultMaxBytes
	}
	return &SuiteStore{
		storage:  objectStorage,
		cache:    cacheClient,
		bucket:   cfg.Bucket,
		ttl:      cfg.TTL,
		emptyTTL: cfg.EmptyTTL,
		maxBytes: cfg.MaxBytes,
	}
}

// Load fetches and parses the suite stored under key.
func (s *SuiteStore) Load(ctx context.Context, key string) (suite.Suite, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return suite.Suite{}, appErr.ValidationError("suite_key", "required")
	}
	if s.storage == nil {
		return suite.Suite{}, appErr.New(appErr.ServiceUnavailable).WithMessage("suite storage is not configured")
	}

	var (
		text string
		err  error
	)
	if s.cache != nil {
		text, err = cache.GetWithCached(
			ctx,
			s.cache,
			suiteKeyPrefix+key,
			s.ttl,
			s.emptyTTL,
			func(v string) bool { return v == "" },
			func(v string) (string, error) { return v, nil },
			func(v string) (string, error) { return v, nil },
			func(ctx context.Context) (string, error) { return s.fetch(ctx, key) },
		)
	} else {
		text, err = s.fetch(ctx, key)
	}
	if err != nil {
		return suite.Suite{}, err
	}
	return suite.Parse([]byte(text))
}

// Put uploads suite text after checking it parses.
func (s *SuiteStore) Put(ctx context.Context, key string, data []byte) error {
	if strings.TrimSpace(key) == "" {
		return appErr.ValidationError("suite_key", "required")
	}
	if s.storage == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("suite storage is not configured")
	}
	if int64(len(data)) > s.maxBytes {
		return appErr.Newf(appErr.SuiteTooLarge, "suite is %d bytes, limit is %d", len(data), s.maxBytes)
	}
	if _, err := suite.Parse(data); err != nil {
		return err
	}
	if err := s.storage.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), "text/plain"); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, suiteKeyPrefix+key)
	}
	return nil
}

func (s *SuiteStore) fetch(ctx context.Context, key string) (string, error) {
	stat, err := s.storage.StatObject(ctx, s.bucket, key)
	if err != nil {
		return "", suiteStorageError(err, key)
	}
	if stat.SizeBytes > s.maxBytes {
		return "", appErr.Newf(appErr.SuiteTooLarge, "suite %s is %d bytes, limit is %d", key, stat.SizeBytes, s.maxBytes)
	}
	obj, err := s.storage.GetObject(ctx, s.bucket, key)
	if err != nil {
		return "", suiteStorageError(err, key)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, s.maxBytes+1))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "read suite %s failed", key)
	}
	if int64(len(data)) > s.maxBytes {
		return "", appErr.Newf(appErr.SuiteTooLarge, "suite %s exceeds %d bytes", key, s.maxBytes)
	}
	return string(data), nil
}

func suiteStorageError(err error, key string) error {
	if appErr.Is(err, appErr.ObjectNotFound) {
		return appErr.Wrapf(err, appErr.SuiteNotFound, "suite %s not found", key)
	}
	return fmt.Errorf("load suite %s: %w", key, err)
}
