package amqp

import (
	"testing"
)

func TestLedgerEventMessageJSON(t *testing.T) {
	msg := NewLedgerEventMessage("add", "expense", "e1", "u1", "p1")
	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := LedgerEventMessageFromJSON(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Operation != "add" || got.Kind != "expense" || got.RecordID != "e1" || got.UserID != "u1" || got.ActorID != "p1" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Fatalf("timestamp must be set")
	}
}

func TestAuditMessageJSON(t *testing.T) {
	msg := NewAuditMessage("logout", "a1", "provider unreachable")
	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := AuditMessageFromJSON(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Operation != "logout" || got.AccountID != "a1" || got.Detail == "" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestFromJSONInvalid(t *testing.T) {
	if _, err := LedgerEventMessageFromJSON([]byte("{")); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
	if _, err := AuditMessageFromJSON([]byte("not json")); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}
