package audit

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/storage/memory"
)

func TestSink_Record(t *testing.T) {
	records := memory.NewAuditRepository()
	sink := NewSink(records)

	err := sink.Record(domain.AuditRecord{
		ID:         "audit-1",
		Action:     "sale",
		EntityType: "inventory_item",
		EntityID:   "inv-1",
		ActorID:    "user-1",
		Occurred:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	stored, err := records.List("inventory_item", "inv-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 || stored[0].Action != "sale" {
		t.Fatalf("expected the stored audit record, got %+v", stored)
	}
}

func TestSink_RecordWithOutbox(t *testing.T) {
	records := memory.NewAuditRepository()
	outbox := memory.NewOutboxRepository()
	sink := NewSink(records, WithOutbox(outbox))

	err := sink.Record(domain.AuditRecord{
		ID:         "audit-2",
		Action:     "transfer_out",
		EntityType: "inventory_item",
		EntityID:   "inv-2",
		Occurred:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	pending, err := outbox.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 enqueued audit event, got %d", len(pending))
	}
	if pending[0].EventType != "audit.transfer_out" {
		t.Fatalf("unexpected event type: %s", pending[0].EventType)
	}
}
