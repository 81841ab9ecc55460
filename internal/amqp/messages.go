package amqp

import (
	"encoding/json"
	"time"
)

// LedgerEventMessage announces a confirmed write to the expense/budget
// store. Consumers fetch the full record themselves; the message carries
// only identifiers.
type LedgerEventMessage struct {
	Operation string    `json:"operation"` // add, update, delete, set_budget
	Kind      string    `json:"kind"`      // expense, budget
	RecordID  string    `json:"record_id"`
	UserID    string    `json:"user_id"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditMessage carries session-level diagnostics (for example a logout
// whose provider call failed but was swallowed).
type AuditMessage struct {
	Operation string    `json:"operation"`
	AccountID string    `json:"account_id"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(operation, kind, recordID, userID, actorID string) *LedgerEventMessage {
	return &LedgerEventMessage{
		Operation: operation,
		Kind:      kind,
		RecordID:  recordID,
		UserID:    userID,
		ActorID:   actorID,
		Timestamp: time.Now(),
	}
}

func NewAuditMessage(operation, accountID, detail string) *AuditMessage {
	return &AuditMessage{
		Operation: operation,
		AccountID: accountID,
		Detail:    detail,
		Timestamp: time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *AuditMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AuditMessageFromJSON(data []byte) (*AuditMessage, error) {
	var msg AuditMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
