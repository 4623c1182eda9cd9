// Package events publishes transaction lifecycle events after ledger
// writes succeed. Publishing is best effort: failures are logged and
// counted but never fail the request that produced the event.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"VoiceDot/internal/ledger"
)

// Type 表示事件类型。
type Type string

const (
	TypeCreated            Type = "created"
	TypeConfirmed          Type = "confirmed"
	TypeCancelled          Type = "cancelled"
	TypeSubmitted          Type = "submitted"
	TypeConstraintsUpdated Type = "constraints_updated"
)

// Event 描述一次交易状态变化。
type Event struct {
	ID              string `json:"id"`
	Type            Type   `json:"type"`
	TransactionID   string `json:"transaction_id"`
	UserID          string `json:"user_id"`
	Status          string `json:"status"`
	Amount          string `json:"amount,omitempty"`
	TokenSymbol     string `json:"token_symbol,omitempty"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	OccurredAt      int64  `json:"occurred_at"`
}

// FromRecord 根据账本记录生成事件。
func FromRecord(typ Type, rec *ledger.Record) Event {
	evt := Event{
		ID:            uuid.NewString(),
		Type:          typ,
		TransactionID: rec.ID,
		UserID:        rec.UserID,
		Status:        string(rec.Status),
		Amount:        rec.Amount,
		TokenSymbol:   rec.TokenSymbol,
		OccurredAt:    time.Now().UnixMilli(),
	}
	if rec.TransactionHash != nil {
		evt.TransactionHash = *rec.TransactionHash
	}
	return evt
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

func decode(raw []byte) (Event, error) {
	var evt Event
	err := json.Unmarshal(raw, &evt)
	return evt, err
}

// Handler 处理从队列中取出的事件。
type Handler func(ctx context.Context, evt Event) error

// Publisher 负责投递事件。
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Consumer 负责消费事件。
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// Queue 同时具备发布与消费能力。
type Queue interface {
	Publisher
	Consumer
}
