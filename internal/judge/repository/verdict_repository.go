package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pvjudge/internal/common/cache"
	"pvjudge/internal/judge/model"
	appErr "pvjudge/pkg/errors"
	"pvjudge/pkg/utils/logger"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const (
	verdictKeyPrefix = "judge:verdict:"
	recentKey        = "judge:verdict:recent"

	defaultRecentLimit = 1000
)

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
	codecErr    error
)

func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	encoderOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return encoder, decoder, codecErr
}

// VerdictRepository stores verdict records in the cache. Records are
// zstd-compressed JSON since they carry the captured streams.
type VerdictRepository struct {
	cache cache.Cache
	TTL   time.Duration
	// RecentLimit bounds the recent-runs index.
	RecentLimit int64
}

// NewVerdictRepository creates a new repository.
func NewVerdictRepository(cacheClient cache.Cache, ttl time.Duration) *VerdictRepository {
	return &VerdictRepository{cache: cacheClient, TTL: ttl, RecentLimit: defaultRecentLimit}
}

// Save persists a record and adds it to the recent-runs index.
func (r *VerdictRepository) Save(ctx context.Context, rec model.VerdictRecord) error {
	if rec.RunID == "" {
		return appErr.ValidationError("run_id", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal verdict failed: %w", err)
	}
	enc, _, err := codec()
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create zstd codec failed")
	}
	payload := enc.EncodeAll(data, make([]byte, 0, len(data)/2))
	if err := r.cache.Set(ctx, verdictKeyPrefix+rec.RunID, string(payload), r.TTL); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store verdict failed")
	}

	if err := r.cache.ZAdd(ctx, recentKey, cache.ZMember{Score: float64(rec.CreatedAt), Member: rec.RunID}); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "index verdict failed")
	}
	if r.RecentLimit > 0 {
		if err := r.cache.ZRemRangeByRank(ctx, recentKey, 0, -(r.RecentLimit + 1)); err != nil {
			logger.Warn(ctx, "trim recent verdicts failed", zap.Error(err))
		}
	}
	return nil
}

// Get returns the record for a run id.
func (r *VerdictRepository) Get(ctx context.Context, runID string) (model.VerdictRecord, error) {
	if runID == "" {
		return model.VerdictRecord{}, appErr.ValidationError("run_id", "required")
	}
	if r.cache == nil {
		return model.VerdictRecord{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, verdictKeyPrefix+runID)
	if err != nil {
		return model.VerdictRecord{}, appErr.Wrapf(err, appErr.CacheError, "load verdict failed")
	}
	if val == "" {
		return model.VerdictRecord{}, appErr.Newf(appErr.VerdictNotFound, "verdict %s not found", runID)
	}
	return decodeRecord(val)
}

// Recent returns up to limit records, newest first. Entries whose record
// already expired are skipped.
func (r *VerdictRepository) Recent(ctx context.Context, limit int64) ([]model.VerdictRecord, error) {
	if r.cache == nil {
		return nil, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if limit <= 0 {
		return []model.VerdictRecord{}, nil
	}
	ids, err := r.cache.ZRevRange(ctx, recentKey, 0, limit-1)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "list recent verdicts failed")
	}
	records := make([]model.VerdictRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, id)
		if appErr.Is(err, appErr.VerdictNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRecord(val string) (model.VerdictRecord, error) {
	_, dec, err := codec()
	if err != nil {
		return model.VerdictRecord{}, appErr.Wrapf(err, appErr.CacheError, "create zstd codec failed")
	}
	data, err := dec.DecodeAll([]byte(val), nil)
	if err != nil {
		return model.VerdictRecord{}, appErr.Wrapf(err, appErr.CacheError, "decompress verdict failed")
	}
	var rec model.VerdictRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.VerdictRecord{}, appErr.Wrapf(err, appErr.CacheError, "decode verdict failed")
	}
	return rec, nil
}
