package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"pvjudge/internal/common/cache"
	"pvjudge/internal/common/mq"
	"pvjudge/internal/common/storage"
	"pvjudge/internal/judge/classify"
	"pvjudge/internal/judge/model"
	"pvjudge/internal/judge/sandbox/result"
	appErr "pvjudge/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func sampleRecord(runID string, createdAt int64) model.VerdictRecord {
	run := &result.RunResult{
		RunID:    runID,
		Stdout:   []byte("[AAA]\n1 2 3\n"),
		Stderr:   []byte("warning\n"),
		ExitCode: result.Int(0),
	}
	rec := model.NewVerdictRecord(classify.Verdict{
		RunID:  runID,
		Kind:   classify.Correct,
		Reason: "all sections match",
		Run:    run,
	}, 1, time.Unix(createdAt, 0))
	return rec
}

func TestVerdictRepositorySaveAndGet(t *testing.T) {
	c, mr := newTestCache(t)
	repo := NewVerdictRepository(c, time.Hour)
	ctx := context.Background()

	rec := sampleRecord("run-1", 100)
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	raw, err := mr.Get(verdictKeyPrefix + "run-1")
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if strings.Contains(raw, "all sections match") {
		t.Fatal("stored record should be compressed")
	}
	if ttl := mr.TTL(verdictKeyPrefix + "run-1"); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}

	got, err := repo.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Kind != classify.Correct || got.Stdout != "[AAA]\n1 2 3\n" || got.Stderr != "warning\n" {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.Run == nil || got.Run.ExitStatus() != 0 {
		t.Fatalf("run evidence lost: %+v", got.Run)
	}
	if got.CreatedAt != 100 || got.Runs != 1 {
		t.Fatalf("metadata = %d/%d", got.CreatedAt, got.Runs)
	}
}

func TestVerdictRepositoryErrors(t *testing.T) {
	c, mr := newTestCache(t)
	repo := NewVerdictRepository(c, time.Hour)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "missing"); !appErr.Is(err, appErr.VerdictNotFound) {
		t.Fatalf("expected VerdictNotFound, got %v", err)
	}
	if _, err := repo.Get(ctx, ""); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
	if err := repo.Save(ctx, model.VerdictRecord{}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}

	_ = mr.Set(verdictKeyPrefix+"garbage", "not zstd")
	if _, err := repo.Get(ctx, "garbage"); !appErr.Is(err, appErr.CacheError) {
		t.Fatalf("expected CacheError, got %v", err)
	}

	var nilRepo VerdictRepository
	if err := nilRepo.Save(ctx, sampleRecord("x", 1)); !appErr.Is(err, appErr.CacheError) {
		t.Fatalf("expected CacheError without cache, got %v", err)
	}
}

func TestVerdictRepositoryRecent(t *testing.T) {
	c, mr := newTestCache(t)
	repo := NewVerdictRepository(c, time.Hour)
	repo.RecentLimit = 2
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := repo.Save(ctx, sampleRecord(fmt.Sprintf("run-%d", i), int64(i))); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if n, _ := c.ZCard(ctx, recentKey); n != 2 {
		t.Fatalf("index size = %d, want 2", n)
	}

	mr.Del(verdictKeyPrefix + "run-2")
	records, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 1 || records[0].RunID != "run-3" {
		t.Fatalf("unexpected records %+v", records)
	}

	if records, _ := repo.Recent(ctx, 0); len(records) != 0 {
		t.Fatalf("limit 0 should return nothing, got %d", len(records))
	}
}

func TestMQVerdictEventPublisher(t *testing.T) {
	queue := mq.NewMemoryQueue()
	publisher := NewMQVerdictEventPublisher(queue, "judge.verdicts")
	ctx := context.Background()

	if err := publisher.PublishFinal(ctx, sampleRecord("run-9", 5)); err != nil {
		t.Fatalf("PublishFinal() error = %v", err)
	}
	published := queue.Published("judge.verdicts")
	if len(published) != 1 {
		t.Fatalf("published %d messages", len(published))
	}
	msg := published[0]
	if msg.ID != "run-9" {
		t.Fatalf("message id = %q", msg.ID)
	}
	if kind, _ := msg.GetHeader("kind"); kind != string(classify.Correct) {
		t.Fatalf("kind header = %q", kind)
	}
	var event model.VerdictEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != model.VerdictEventFinal || event.Record.RunID != "run-9" || event.Record.Stdout == "" {
		t.Fatalf("unexpected event %+v", event)
	}

	if err := NewMQVerdictEventPublisher(queue, "").PublishFinal(ctx, sampleRecord("x", 1)); !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected InvalidParams, got %v", err)
	}
	var nilPublisher *MQVerdictEventPublisher
	if err := nilPublisher.PublishFinal(ctx, sampleRecord("x", 1)); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, appErr.New(appErr.ObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) PutObject(_ context.Context, bucket, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
	return nil
}

func (f *fakeStorage) StatObject(_ context.Context, bucket, key string) (storage.ObjectStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectStat{}, appErr.New(appErr.ObjectNotFound)
	}
	return storage.ObjectStat{SizeBytes: int64(len(data))}, nil
}

func (f *fakeStorage) ListObjects(context.Context, string, string) <-chan storage.ObjectInfo {
	ch := make(chan storage.ObjectInfo)
	close(ch)
	return ch
}

const suiteText = "[.TEST]\nfirst\n[.INPUT]\n3\n[AAA]\n1 2 3\n[.TEST]\nsecond\n[AAA]\n4\n"

func TestSuiteStoreLoadCachesText(t *testing.T) {
	c, _ := newTestCache(t)
	objects := newFakeStorage()
	store := NewSuiteStore(objects, c, SuiteStoreConfig{Bucket: "suites"})
	ctx := context.Background()

	if err := store.Put(ctx, "lab1.txt", []byte(suiteText)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		st, err := store.Load(ctx, "lab1.txt")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if st.Len() != 2 || st.Cases[0].Name != "first" || st.Cases[1].Name != "second" {
			t.Fatalf("unexpected suite %+v", st)
		}
	}
	if objects.gets != 1 {
		t.Fatalf("object fetched %d times, want 1", objects.gets)
	}
}

func TestSuiteStoreErrors(t *testing.T) {
	objects := newFakeStorage()
	store := NewSuiteStore(objects, nil, SuiteStoreConfig{Bucket: "suites", MaxBytes: 16})
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing.txt"); !appErr.Is(err, appErr.SuiteNotFound) {
		t.Fatalf("expected SuiteNotFound, got %v", err)
	}
	if _, err := store.Load(ctx, " "); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}

	objects.objects["suites/big.txt"] = []byte(suiteText)
	if _, err := store.Load(ctx, "big.txt"); !appErr.Is(err, appErr.SuiteTooLarge) {
		t.Fatalf("expected SuiteTooLarge, got %v", err)
	}
	if err := store.Put(ctx, "big.txt", []byte(suiteText)); !appErr.Is(err, appErr.SuiteTooLarge) {
		t.Fatalf("expected SuiteTooLarge on put, got %v", err)
	}
	if err := store.Put(ctx, "bad.txt", []byte("no sections")); !appErr.Is(err, appErr.SuiteInvalid) {
		t.Fatalf("expected SuiteInvalid, got %v", err)
	}

	if _, err := NewSuiteStore(nil, nil, SuiteStoreConfig{}).Load(ctx, "x"); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}
