// Package events publishes checkout outcomes for downstream consumers
// (fulfilment, analytics). Producers follow the kafka writer seam so
// tests can capture events in memory.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypePaymentConfirmed = "PaymentConfirmed"
	TypeOrderPlaced      = "OrderPlaced"
)

type Event struct {
	ID         string
	Type       string
	Key        string
	Payload    []byte
	OccurredAt time.Time
}

type PaymentConfirmed struct {
	OrderRef       string `json:"order_ref"`
	Method         string `json:"method"`
	TransactionRef string `json:"transaction_ref"`
	Amount         int64  `json:"amount"`
}

type OrderPlaced struct {
	OrderID    string `json:"order_id"`
	OrderRef   string `json:"order_ref"`
	TotalItems int    `json:"total_items"`
	Total      int64  `json:"total"`
}

func New(eventType, key string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		Payload:    data,
		OccurredAt: time.Now().UTC(),
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Memory collects events for tests and for running without a broker.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
