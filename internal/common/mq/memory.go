package mq

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue is an in-process MessageQueue. Published messages are handed
// to the topic's subscribers once started; it is meant for single-binary
// deployments and tests.
type MemoryQueue struct {
	mu sync.Mutex
	// sendMu keeps Stop from closing a channel under an in-flight send.
	sendMu    sync.RWMutex
	subs      map[string][]*memorySubscription
	published map[string][]*Message
	started   bool
	closed    bool
	wg        sync.WaitGroup
}

type memorySubscription struct {
	ctx     context.Context
	handler HandlerFunc
	opts    SubscribeOptions
	ch      chan *Message
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		subs:      make(map[string][]*memorySubscription),
		published: make(map[string][]*Message),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if topic == "" {
		return errors.New("topic is required")
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("message queue is closed")
	}
	copied := *message
	q.published[topic] = append(q.published[topic], &copied)
	subs := append([]*memorySubscription(nil), q.subs[topic]...)
	q.sendMu.RLock()
	q.mu.Unlock()
	defer q.sendMu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- &copied:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (q *MemoryQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	var options SubscribeOptions
	if opts != nil {
		options = *opts
	}
	options.SetDefaults()
	if ctx == nil {
		ctx = context.Background()
	}
	sub := &memorySubscription{ctx: ctx, handler: handler, opts: options, ch: make(chan *Message, 64)}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("message queue is closed")
	}
	q.subs[topic] = append(q.subs[topic], sub)
	if q.started {
		q.run(sub)
	}
	return nil
}

func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("message queue is closed")
	}
	if q.started {
		return nil
	}
	for _, subs := range q.subs {
		for _, sub := range subs {
			q.run(sub)
		}
	}
	q.started = true
	return nil
}

func (q *MemoryQueue) run(sub *memorySubscription) {
	for i := 0; i < sub.opts.Concurrency; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for m := range sub.ch {
				deliver(sub.ctx, q, sub.handler, sub.opts, m)
			}
		}()
	}
}

// Stop drains in-flight messages. Subscriptions cannot be restarted.
func (q *MemoryQueue) Stop() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.sendMu.Lock()
	for _, subs := range q.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	q.sendMu.Unlock()
	q.wg.Wait()
	return nil
}

func (q *MemoryQueue) Ping(context.Context) error { return nil }

func (q *MemoryQueue) Close() error { return q.Stop() }

// Published returns the messages published to topic so far.
func (q *MemoryQueue) Published(topic string) []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Message(nil), q.published[topic]...)
}
