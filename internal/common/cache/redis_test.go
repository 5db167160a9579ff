package cache

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheBasicOps(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if v, err := c.Get(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("Get(missing) = %q, %v", v, err)
	}
	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, _ := c.Get(ctx, "k"); v != "v" {
		t.Fatalf("Get() = %q", v)
	}
	if n, _ := c.Exists(ctx, "k", "missing"); n != 1 {
		t.Fatalf("Exists() = %d", n)
	}
	mr.FastForward(2 * time.Minute)
	if v, _ := c.Get(ctx, "k"); v != "" {
		t.Fatal("key should have expired")
	}
	_ = c.Set(ctx, "k2", "v", 0)
	if err := c.Del(ctx, "k2"); err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	if n, _ := c.Exists(ctx, "k2"); n != 0 {
		t.Fatal("key should be deleted")
	}
}

func TestRedisCacheIncr(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		got, err := c.Incr(ctx, "counter")
		if err != nil || got != want {
			t.Fatalf("Incr() = %d, %v, want %d", got, err, want)
		}
	}
}

func TestRedisCacheSortedSet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	_ = c.ZAdd(ctx, "z", ZMember{Score: 1, Member: "a"}, ZMember{Score: 3, Member: "c"}, ZMember{Score: 2, Member: "b"})

	got, err := c.ZRevRange(ctx, "z", 0, -1)
	if err != nil || !reflect.DeepEqual(got, []string{"c", "b", "a"}) {
		t.Fatalf("ZRevRange() = %v, %v", got, err)
	}
	// Drop the lowest ranked member.
	if err := c.ZRemRangeByRank(ctx, "z", 0, 0); err != nil {
		t.Fatalf("ZRemRangeByRank() error = %v", err)
	}
	if n, _ := c.ZCard(ctx, "z"); n != 2 {
		t.Fatalf("ZCard() = %d", n)
	}
}

func TestGetWithCached(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	fetch := func(context.Context) (string, error) {
		calls++
		return "payload", nil
	}
	identity := func(s string) (string, error) { return s, nil }
	isEmpty := func(s string) bool { return s == "" }

	for i := 0; i < 2; i++ {
		v, err := GetWithCached(ctx, c, "suite:a", time.Minute, time.Second, isEmpty, identity, identity, fetch)
		if err != nil || v != "payload" {
			t.Fatalf("GetWithCached() = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("source called %d times", calls)
	}

	empty := func(context.Context) (string, error) { calls++; return "", nil }
	_, _ = GetWithCached(ctx, c, "suite:none", time.Minute, time.Minute, isEmpty, identity, identity, empty)
	_, _ = GetWithCached(ctx, c, "suite:none", time.Minute, time.Minute, isEmpty, identity, identity, empty)
	if calls != 2 {
		t.Fatalf("empty result not cached, calls = %d", calls)
	}

	boom := errors.New("boom")
	failing := func(context.Context) (string, error) { return "", boom }
	if _, err := GetWithCached(ctx, c, "suite:err", time.Minute, time.Minute, isEmpty, identity, identity, failing); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestJitterTTL(t *testing.T) {
	for i := 0; i < 20; i++ {
		got := JitterTTL(time.Minute)
		if got > time.Minute || got < 54*time.Second {
			t.Fatalf("JitterTTL() = %v", got)
		}
	}
	if JitterTTL(0) != 0 {
		t.Fatal("zero ttl must stay zero")
	}
}
