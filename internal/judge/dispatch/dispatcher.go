package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pvjudge/internal/common/mq"
	"pvjudge/internal/judge/model"
	appErr "pvjudge/pkg/errors"
	"pvjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// DispatcherConfig configures queue-driven judging.
type DispatcherConfig struct {
	Runner   *Runner
	Producer mq.Producer

	// RetryTopic receives requests that found the judge pool full.
	RetryTopic      string
	DeadLetterTopic string
	PoolRetryMax    int
	PoolRetryBase   time.Duration
	PoolRetryMaxD   time.Duration
}

// Dispatcher consumes judge requests from the message queue.
type Dispatcher struct {
	runner        *Runner
	producer      mq.Producer
	retryTopic    string
	deadLetter    string
	poolRetryMax  int
	poolRetryBase time.Duration
	poolRetryMaxD time.Duration
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	return &Dispatcher{
		runner:        cfg.Runner,
		producer:      cfg.Producer,
		retryTopic:    cfg.RetryTopic,
		deadLetter:    cfg.DeadLetterTopic,
		poolRetryMax:  cfg.PoolRetryMax,
		poolRetryBase: cfg.PoolRetryBase,
		poolRetryMaxD: cfg.PoolRetryMaxD,
	}, nil
}

// Subscribe registers the dispatcher on the request topic and, when set,
// on the retry topic.
func (d *Dispatcher) Subscribe(ctx context.Context, consumer mq.Consumer, topic string, opts *mq.SubscribeOptions) error {
	if err := consumer.Subscribe(ctx, topic, d.HandleMessage, opts); err != nil {
		return err
	}
	if d.retryTopic != "" && d.retryTopic != topic {
		return consumer.Subscribe(ctx, d.retryTopic, d.HandleMessage, opts)
	}
	return nil
}

// HandleMessage judges one queued request. Requests that can never succeed
// are dead-lettered and acknowledged; judge failures are returned so the
// queue retries them.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var req model.JudgeRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		logger.Warn(ctx, "drop undecodable judge request", zap.String("message_id", msg.ID), zap.Error(err))
		d.deadLetterMessage(ctx, msg)
		return nil
	}
	if req.RunID == "" {
		req.RunID = msg.ID
	}

	resp, err := d.runner.Run(ctx, req)
	switch {
	case err == nil:
		logger.Info(ctx, "judge request done",
			zap.String("run_id", resp.RunID),
			zap.Bool("passed", resp.Passed),
			zap.Int("verdicts", len(resp.Verdicts)),
		)
		return nil
	case appErr.Is(err, appErr.JudgeQueueFull):
		return RequeueForPoolFull(ctx, d.producer, d.retryTopic, d.deadLetter, d.poolRetryMax, d.poolRetryBase, d.poolRetryMaxD, msg)
	case isCallerError(err):
		logger.Warn(ctx, "reject judge request", zap.String("message_id", msg.ID), zap.Error(err))
		d.deadLetterMessage(ctx, msg)
		return nil
	default:
		logger.Error(ctx, "judge request failed", zap.String("message_id", msg.ID), zap.Error(err))
		return err
	}
}

func (d *Dispatcher) deadLetterMessage(ctx context.Context, msg *mq.Message) {
	if d.producer == nil || d.deadLetter == "" {
		return
	}
	if err := d.producer.Publish(ctx, d.deadLetter, CloneMessageForRetry(msg, ParsePoolRetryCount(msg.Headers))); err != nil {
		logger.Warn(ctx, "dead letter publish failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func isCallerError(err error) bool {
	code := appErr.GetCode(err)
	status := code.HTTPStatus()
	return status >= http.StatusBadRequest && status < http.StatusInternalServerError && status != http.StatusTooManyRequests
}
