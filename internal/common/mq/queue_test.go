package mq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestMemoryQueueDeliversAfterStart(t *testing.T) {
	q := NewMemoryQueue()
	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 2)
	err := q.Subscribe(context.Background(), "requests", func(ctx context.Context, m *Message) error {
		mu.Lock()
		got = append(got, string(m.Body))
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := q.Publish(context.Background(), "requests", NewMessage("1", []byte("a"))); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := q.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := q.Publish(context.Background(), "requests", NewMessage("2", []byte("b"))); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("message not delivered")
		}
	}
	_ = q.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	if len(q.Published("requests")) != 2 {
		t.Fatal("published messages not recorded")
	}
}

func TestMemoryQueueRetriesThenDeadLetters(t *testing.T) {
	q := NewMemoryQueue()
	var attempts atomic.Int32
	opts := &SubscribeOptions{MaxRetries: 2, RetryDelay: time.Millisecond, DeadLetterTopic: "dead"}
	_ = q.Subscribe(context.Background(), "requests", func(ctx context.Context, m *Message) error {
		attempts.Add(1)
		return errors.New("boom")
	}, opts)
	_ = q.Start()
	_ = q.Publish(context.Background(), "requests", NewMessage("x", []byte("payload")))

	deadline := time.Now().Add(2 * time.Second)
	for len(q.Published("dead")) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	_ = q.Stop()

	if attempts.Load() != 3 {
		t.Fatalf("attempts = %d, want 3", attempts.Load())
	}
	dead := q.Published("dead")
	if len(dead) != 1 || string(dead[0].Body) != "payload" || dead[0].RetryCount != 3 {
		t.Fatalf("dead letters = %+v", dead)
	}
}

func TestMemoryQueueRejectsAfterClose(t *testing.T) {
	q := NewMemoryQueue()
	_ = q.Close()
	if err := q.Publish(context.Background(), "t", NewMessage("1", nil)); err == nil {
		t.Fatal("expected error after close")
	}
	if err := q.Subscribe(context.Background(), "t", func(context.Context, *Message) error { return nil }, nil); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestKafkaMessageConversion(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := &Message{ID: "run-1", Body: []byte("{}"), Timestamp: ts, RetryCount: 1, MaxRetries: 3}
	in.SetHeader("trace_id", "abc")

	km := toKafkaMessage("judge.requests", in)
	if km.Topic != "judge.requests" || string(km.Key) != "run-1" {
		t.Fatalf("kafka message = %+v", km)
	}

	out := fromKafkaMessage(kafka.Message{Key: km.Key, Value: km.Value, Headers: km.Headers})
	if out.ID != "run-1" || string(out.Body) != "{}" || out.RetryCount != 1 || out.MaxRetries != 3 {
		t.Fatalf("round trip = %+v", out)
	}
	if !out.Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %v", out.Timestamp)
	}
	if v, ok := out.GetHeader("trace_id"); !ok || v != "abc" {
		t.Fatalf("headers = %v", out.Headers)
	}
}

func TestNewKafkaQueueRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaQueue(KafkaConfig{}); err == nil {
		t.Fatal("expected error without brokers")
	}
	q, err := NewKafkaQueue(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}})
	if err != nil {
		t.Fatalf("NewKafkaQueue() error = %v", err)
	}
	if q.config.BatchSize != 100 || q.config.MaxWait != time.Second {
		t.Fatalf("defaults not applied: %+v", q.config)
	}
	if q.writer.RequiredAcks != kafka.RequireOne || q.writer.Compression != kafka.Compression(0) {
		t.Fatalf("writer = acks %v, compression %v", q.writer.RequiredAcks, q.writer.Compression)
	}
	_ = q.Close()
}

func TestParseCompression(t *testing.T) {
	tests := map[string]kafka.Compression{
		"gzip":   kafka.Gzip,
		"Snappy": kafka.Snappy,
		"lz4":    kafka.Lz4,
		"zstd":   kafka.Zstd,
		"":       kafka.Compression(0),
		"brotli": kafka.Compression(0),
	}
	for raw, want := range tests {
		if got := parseCompression(raw); got != want {
			t.Errorf("parseCompression(%q) = %v, want %v", raw, got, want)
		}
	}
}
