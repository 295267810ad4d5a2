package amqp

import (
	"encoding/json"
	"time"
)

// Event kinds carried on the ledger event queue.
const (
	EventTransactionProcessed = "transaction_processed"
	EventBalancesReset        = "balances_reset"
)

// LedgerEventMessage is the wire format for ledger events. It carries
// only identifiers; the worker fetches the full record from the store.
type LedgerEventMessage struct {
	Kind      string    `json:"kind"`
	PaymentID string    `json:"payment_id,omitempty"`
	Period    string    `json:"period,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionProcessedMessage(paymentID, period string) *LedgerEventMessage {
	return &LedgerEventMessage{
		Kind:      EventTransactionProcessed,
		PaymentID: paymentID,
		Period:    period,
		Timestamp: time.Now(),
	}
}

func NewBalancesResetMessage(at time.Time) *LedgerEventMessage {
	return &LedgerEventMessage{
		Kind:      EventBalancesReset,
		Timestamp: at,
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
