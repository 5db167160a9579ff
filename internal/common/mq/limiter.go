package mq

import (
	"context"
	"time"

	appErr "pvjudge/pkg/errors"
)

// TokenLimiter caps the number of subject processes running at once.
type TokenLimiter struct {
	tokens chan struct{}
}

// NewTokenLimiter creates a limiter with a fixed capacity.
func NewTokenLimiter(size int) *TokenLimiter {
	if size <= 0 {
		size = 1
	}
	tokens := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		tokens <- struct{}{}
	}
	return &TokenLimiter{tokens: tokens}
}

// Acquire blocks until a token is available or ctx is canceled.
func (l *TokenLimiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
		return nil
	}
}

// AcquireWithin waits at most wait for a token. Zero waits as long as ctx allows.
func (l *TokenLimiter) AcquireWithin(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return l.Acquire(ctx)
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
		return nil
	case <-timer.C:
		return appErr.New(appErr.JudgeQueueFull)
	}
}

// Release returns a token to the limiter.
func (l *TokenLimiter) Release() {
	select {
	case l.tokens <- struct{}{}:
	default:
	}
}

// Available reports the number of free tokens.
func (l *TokenLimiter) Available() int {
	return len(l.tokens)
}

// Capacity reports the limiter size.
func (l *TokenLimiter) Capacity() int {
	return cap(l.tokens)
}
