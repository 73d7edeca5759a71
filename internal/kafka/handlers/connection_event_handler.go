package kafkahandlers

import (
	"context"
	"encoding/json"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"pronet-go/internal/engine"
	"pronet-go/internal/redis"
	"pronet-go/internal/remote"
)

// ConnectionEventLogic decodes connection events off the wire, drops
// duplicates by delivery id, and forwards the rest to the engine.
type ConnectionEventLogic struct {
	engine *engine.Engine
	dedup  redis.EventDedup
}

// NewConnectionEventLogic creates the consumer-side handler. dedup may be
// nil, in which case every delivery is forwarded.
func NewConnectionEventLogic(eng *engine.Engine, dedup redis.EventDedup) *ConnectionEventLogic {
	if eng == nil {
		log.Panic("ConnectionEventLogic requires an engine")
	}
	return &ConnectionEventLogic{engine: eng, dedup: dedup}
}

// HandleConnectionEvent is the MessageHandler passed to the Kafka consumer.
// Undecodable messages are skipped (committed); dedup store failures fall
// through to processing, since a duplicate refetch is harmless while a
// dropped event is not.
func (h *ConnectionEventLogic) HandleConnectionEvent(ctx context.Context, msg *kafka.Message) error {
	var ev remote.ConnectionEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		log.Printf("kafka: skipping undecodable connection event at offset %v: %v", msg.TopicPartition.Offset, err)
		return nil
	}

	if h.dedup != nil && ev.DeliveryID != "" {
		seen, err := h.dedup.Seen(ctx, ev.DeliveryID)
		if err != nil {
			log.Printf("kafka: dedup check failed for delivery %s, processing anyway: %v", ev.DeliveryID, err)
		} else if seen {
			log.Printf("kafka: duplicate delivery %s skipped", ev.DeliveryID)
			return nil
		}
	}

	h.engine.HandleEvent(ev)

	if h.dedup != nil && ev.DeliveryID != "" {
		if err := h.dedup.Mark(ctx, ev.DeliveryID); err != nil {
			log.Printf("kafka: failed to mark delivery %s as seen: %v", ev.DeliveryID, err)
		}
	}
	return nil
}
