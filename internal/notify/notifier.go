// Package notify publishes workflow events to interested parties after a
// transition has committed. Delivery is best-effort: a notification failure
// is logged and dropped, never allowed to unwind the transition.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"
)

// Event is the wire shape of a workflow notification.
type Event struct {
	ActorID   string    `json:"actor_id"`
	EventType string    `json:"event_type"`
	EntityID  uuid.UUID `json:"entity_id"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Writer is the subset of the kafka writer the producer needs, so tests can
// inject a fake.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes workflow events to a Kafka topic, keyed by entity
// id so all events for one entity land in order on the same partition.
type KafkaNotifier struct {
	writer Writer
}

// NewKafkaNotifier creates a notifier writing to the given broker and topic.
func NewKafkaNotifier(brokerURL, topic string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokerURL),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &KafkaNotifier{writer: w}
}

// NewKafkaNotifierWithWriter allows injecting a test writer.
func NewKafkaNotifierWithWriter(w Writer) *KafkaNotifier {
	return &KafkaNotifier{writer: w}
}

// Notify publishes one event.
func (n *KafkaNotifier) Notify(ctx context.Context, actorID string, eventType string, entityID uuid.UUID) error {
	event := Event{
		ActorID:   actorID,
		EventType: eventType,
		EntityID:  entityID,
		EmittedAt: time.Now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{Key: []byte(entityID.String()), Value: value}
	return n.writer.WriteMessages(ctx, msg)
}

// Close closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LogNotifier writes events to the process log. Used when no broker is
// configured.
type LogNotifier struct{}

// Notify logs the event.
func (LogNotifier) Notify(_ context.Context, actorID string, eventType string, entityID uuid.UUID) error {
	log.Printf("[NOTIFY] %s %s %s", actorID, eventType, entityID)
	return nil
}
