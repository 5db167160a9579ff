package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	appErr "pvjudge/pkg/errors"
)

func TestTokenLimiterAcquireRelease(t *testing.T) {
	l := NewTokenLimiter(2)
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if l.Available() != 0 {
		t.Fatalf("available = %d", l.Available())
	}
	l.Release()
	l.Release()
	l.Release() // extra release is dropped
	if l.Available() != 2 || l.Capacity() != 2 {
		t.Fatalf("available = %d capacity = %d", l.Available(), l.Capacity())
	}
}

func TestTokenLimiterAcquireWithinTimesOut(t *testing.T) {
	l := NewTokenLimiter(1)
	_ = l.Acquire(context.Background())

	err := l.AcquireWithin(context.Background(), 20*time.Millisecond)
	if !appErr.Is(err, appErr.JudgeQueueFull) {
		t.Fatalf("expected JudgeQueueFull, got %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Release()
	}()
	if err := l.AcquireWithin(context.Background(), time.Second); err != nil {
		t.Fatalf("AcquireWithin() error = %v", err)
	}
}

func TestTokenLimiterAcquireHonorsContext(t *testing.T) {
	l := NewTokenLimiter(1)
	_ = l.Acquire(context.Background())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.AcquireWithin(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewTokenLimiterMinimumSize(t *testing.T) {
	if NewTokenLimiter(0).Capacity() != 1 {
		t.Fatal("size must be at least one")
	}
}
