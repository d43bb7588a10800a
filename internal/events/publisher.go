package events

import (
	"context"

	"arena/internal/adapters/kafka"
	"arena/pkg/errors"
	"arena/pkg/logger"
)

// Publisher publishes fight lifecycle events to Kafka. Messages are
// keyed by fight id so one fight's events stay ordered per partition.
type Publisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(producer *kafka.Producer, log *logger.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		log:      log,
	}
}

// PublishFightStarted publishes a fight started event
func (p *Publisher) PublishFightStarted(ctx context.Context, event *FightStarted) error {
	return p.publish(ctx, kafka.TopicFightStarted, event.FightID, event)
}

// PublishFightCancelled publishes a fight cancelled event
func (p *Publisher) PublishFightCancelled(ctx context.Context, event *FightCancelled) error {
	return p.publish(ctx, kafka.TopicFightCancelled, event.FightID, event)
}

// PublishFightSettled publishes a fight settled event
func (p *Publisher) PublishFightSettled(ctx context.Context, event *FightSettled) error {
	return p.publish(ctx, kafka.TopicFightSettled, event.FightID, event)
}

func (p *Publisher) publish(ctx context.Context, topic, key string, event interface{}) error {
	if err := p.producer.Publish(ctx, topic, key, event); err != nil {
		p.log.Errorw("Failed to publish event",
			"topic", topic,
			"fight_id", key,
			"error", err,
		)
		return errors.Wrap(err, "send to kafka")
	}

	p.log.Debug("Event published",
		"topic", topic,
		"fight_id", key,
	)

	return nil
}
