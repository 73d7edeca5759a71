package kafka

import (
	"context"
	"encoding/json"
	"log"

	"pronet-go/internal/engine"
)

// actionAuditor publishes command outcomes to the action audit topic.
type actionAuditor struct {
	producer MessageProducer
	topic    string
}

// NewActionAuditor creates an engine.ActionAuditor backed by the producer.
func NewActionAuditor(producer MessageProducer, topic string) engine.ActionAuditor {
	return &actionAuditor{producer: producer, topic: topic}
}

// RecordAction publishes one outcome. Audit delivery is best effort; a
// failed publish never affects the command it describes.
func (a *actionAuditor) RecordAction(ctx context.Context, rec engine.ActionRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		log.Printf("kafka: marshalling audit record %s: %v", rec.CorrelationID, err)
		return
	}
	if err := a.producer.SendMessage(ctx, a.topic, []byte(rec.CounterpartyID), payload); err != nil {
		log.Printf("kafka: publishing audit record %s: %v", rec.CorrelationID, err)
	}
}
