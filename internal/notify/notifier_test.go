package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNotify_PublishesKeyedEvent(t *testing.T) {
	writer := &fakeWriter{}
	notifier := NewKafkaNotifierWithWriter(writer)
	entityID := uuid.New()

	if err := notifier.Notify(context.Background(), "alice", "SUBMIT", entityID); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.messages))
	}

	msg := writer.messages[0]
	if string(msg.Key) != entityID.String() {
		t.Fatalf("message not keyed by entity id: %s", msg.Key)
	}

	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.ActorID != "alice" || event.EventType != "SUBMIT" || event.EntityID != entityID {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.EmittedAt.IsZero() {
		t.Fatal("emitted_at not set")
	}
}

func TestNotify_SurfacesWriterError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	notifier := NewKafkaNotifierWithWriter(writer)

	if err := notifier.Notify(context.Background(), "alice", "SUBMIT", uuid.New()); err == nil {
		t.Fatal("expected writer error to surface")
	}
}

func TestClose_ClosesWriter(t *testing.T) {
	writer := &fakeWriter{}
	notifier := NewKafkaNotifierWithWriter(writer)
	if err := notifier.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !writer.closed {
		t.Fatal("underlying writer not closed")
	}
}
