package events

import (
	"context"
	"encoding/json"
	"testing"
)

func TestNewEnvelope(t *testing.T) {
	env, err := New("fulfillment", EventOrderStatusChanged, "ord-1", OrderStatusChangedPayload{OrderID: "ord-1", From: "approved", To: "packing"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if env.EventID == "" || env.EventVersion != 1 || env.CorrelationID != "ord-1" {
		t.Fatalf("unexpected envelope %+v", env)
	}

	var payload OrderStatusChangedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.To != "packing" {
		t.Fatalf("expected to=packing, got %q", payload.To)
	}

	other, _ := New("fulfillment", EventOrderStatusChanged, "ord-1", payload)
	if other.EventID == env.EventID {
		t.Fatalf("expected unique event ids")
	}
}

func TestRecorderFiltersByType(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()
	_ = r.Publish(ctx, Envelope{EventType: EventOrderCreated})
	_ = r.Publish(ctx, Envelope{EventType: EventShiftClosed})
	_ = r.Publish(ctx, Envelope{EventType: EventOrderCreated})

	if got := len(r.OfType(EventOrderCreated)); got != 2 {
		t.Fatalf("expected 2 order.created events, got %d", got)
	}
	if got := len(r.Events()); got != 3 {
		t.Fatalf("expected 3 events, got %d", got)
	}
}
