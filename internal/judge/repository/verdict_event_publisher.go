package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pvjudge/internal/common/mq"
	"pvjudge/internal/judge/model"
	appErr "pvjudge/pkg/errors"
)

// VerdictEventPublisher publishes verdict events for downstream consumers.
type VerdictEventPublisher interface {
	PublishFinal(ctx context.Context, rec model.VerdictRecord) error
}

// MQVerdictEventPublisher publishes verdict events to a message queue.
type MQVerdictEventPublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQVerdictEventPublisher creates a new MQ verdict event publisher.
func NewMQVerdictEventPublisher(producer mq.Producer, topic string) *MQVerdictEventPublisher {
	return &MQVerdictEventPublisher{producer: producer, topic: topic}
}

// PublishFinal publishes a final verdict event keyed by run id.
func (p *MQVerdictEventPublisher) PublishFinal(ctx context.Context, rec model.VerdictRecord) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("verdict publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("verdict topic is required")
	}
	if rec.RunID == "" {
		return appErr.ValidationError("run_id", "required")
	}
	event := model.VerdictEvent{
		Type:      model.VerdictEventFinal,
		Record:    rec,
		CreatedAt: time.Now().Unix(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal verdict event failed: %w", err)
	}
	message := mq.NewMessage(rec.RunID, payload)
	message.SetHeader("kind", string(rec.Kind))
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.QueueError, "publish verdict event failed")
	}
	return nil
}
