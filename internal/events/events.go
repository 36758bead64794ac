// Package events publishes fulfillment events after their transaction commits.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderReturned      = "order.returned"
	EventShiftClosed        = "shift.closed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderStatusChangedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	From        string `json:"from"`
	To          string `json:"to"`
	Actor       string `json:"actor,omitempty"`
}

type OrderCreatedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"total_amount"`
	CustomerID  string `json:"customer_id,omitempty"`
}

type OrderReturnedPayload struct {
	OrderID         string `json:"order_id"`
	OriginalOrderID string `json:"original_order_id"`
	RefundAmount    int64  `json:"refund_amount"`
	ShiftID         string `json:"shift_id,omitempty"`
}

type ShiftClosedPayload struct {
	ShiftID     string `json:"shift_id"`
	Discrepancy int64  `json:"discrepancy"`
	Outcome     string `json:"outcome"`
}

// New builds an envelope with a fresh id. The correlation id is the
// aggregate id so that all events of one order share a partition.
func New(producer string, eventType string, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode payload: %w", err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ Envelope) error { return nil }

// Recorder keeps published envelopes in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *Recorder) Publish(_ context.Context, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
	return nil
}

func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.events...)
}

// OfType returns the recorded envelopes of one event type.
func (r *Recorder) OfType(eventType string) []Envelope {
	var out []Envelope
	for _, env := range r.Events() {
		if env.EventType == eventType {
			out = append(out, env)
		}
	}
	return out
}
