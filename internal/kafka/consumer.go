package kafka

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"pronet-go/internal/config"
)

// MessageHandler processes one consumed message. Returning an error leaves
// the offset uncommitted so the message is redelivered.
type MessageHandler func(ctx context.Context, msg *kafka.Message) error

// MessageConsumer is the engine's subscription to the event channel.
type MessageConsumer interface {
	Consume(ctx context.Context, topics []string, handler MessageHandler) error
	Close()
}

type eventConsumer struct {
	cfg      config.KafkaConfig
	consumer *kafka.Consumer
}

// NewEventConsumer creates a consumer for the configured consumer group.
// Offsets are committed manually, only after the handler succeeds.
func NewEventConsumer(cfg config.KafkaConfig) (MessageConsumer, error) {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(cfg.Brokers, ","),
		"group.id":           cfg.ConsumerGroup,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": "false",
	}
	if cfg.Protocol != "" {
		_ = configMap.SetKey("security.protocol", cfg.Protocol)
	}
	if cfg.ClientID != "" {
		_ = configMap.SetKey("client.id", cfg.ClientID)
	}

	consumer, err := kafka.NewConsumer(configMap)
	if err != nil {
		return nil, fmt.Errorf("creating kafka consumer for group %s: %w", cfg.ConsumerGroup, err)
	}
	return &eventConsumer{cfg: cfg, consumer: consumer}, nil
}

// Consume blocks until the context is canceled or a fatal broker error.
func (c *eventConsumer) Consume(ctx context.Context, topics []string, handler MessageHandler) error {
	if len(topics) == 0 {
		return fmt.Errorf("kafka consumer: no topics specified")
	}
	if err := c.consumer.SubscribeTopics(topics, nil); err != nil {
		return fmt.Errorf("subscribing to %v: %w", topics, err)
	}
	log.Printf("kafka: consumer group %s subscribed to %v", c.cfg.ConsumerGroup, topics)

	for {
		select {
		case <-ctx.Done():
			log.Printf("kafka: consumer group %s stopping: %v", c.cfg.ConsumerGroup, ctx.Err())
			return nil
		default:
		}

		ev := c.consumer.Poll(1000)
		if ev == nil {
			continue
		}
		switch e := ev.(type) {
		case *kafka.Message:
			if err := handler(ctx, e); err != nil {
				log.Printf("kafka: handler failed for %s offset %v, will redeliver: %v",
					*e.TopicPartition.Topic, e.TopicPartition.Offset, err)
				continue
			}
			if _, err := c.consumer.CommitMessage(e); err != nil {
				log.Printf("kafka: commit failed for %s offset %v: %v",
					*e.TopicPartition.Topic, e.TopicPartition.Offset, err)
			}
		case kafka.Error:
			if e.IsFatal() {
				log.Printf("kafka: fatal consumer error for group %s: %v", c.cfg.ConsumerGroup, e)
				return e
			}
			log.Printf("kafka: consumer error for group %s: %v", c.cfg.ConsumerGroup, e)
		case kafka.AssignedPartitions:
			_ = c.consumer.Assign(e.Partitions)
		case kafka.RevokedPartitions:
			_ = c.consumer.Unassign()
		}
	}
}

func (c *eventConsumer) Close() {
	if c.consumer == nil {
		return
	}
	if err := c.consumer.Close(); err != nil {
		log.Printf("kafka: closing consumer: %v", err)
	}
	c.consumer = nil
}
