package app

import (
	"context"
	"io"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/notify"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

func TestNewDependencies_MemoryWithoutKafka(t *testing.T) {
	deps, err := NewDependencies(context.Background(), DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("new dependencies: %v", err)
	}
	defer deps.Close(testLogger())

	if deps.StorageKind != "memory" {
		t.Fatalf("unexpected storage kind: %s", deps.StorageKind)
	}
	if deps.Store != nil {
		t.Fatal("postgres store must be nil in memory mode")
	}
	if deps.KafkaProducer != nil {
		t.Fatal("kafka producer must be nil without brokers")
	}

	if deps.InventoryRepo == nil || deps.MovementRepo == nil ||
		deps.ReservationRepo == nil || deps.AuditRepo == nil || deps.OutboxRepo == nil {
		t.Fatal("all repositories must be initialized")
	}
	if deps.StockService == nil || deps.ReservationService == nil || deps.RefundService == nil {
		t.Fatal("all services must be initialized")
	}

	// Без Kafka алерты идут в лог, а не в outbox.
	if _, ok := deps.Notifier.(*notify.LogSink); !ok {
		t.Fatalf("expected log sink notifier, got %T", deps.Notifier)
	}
	if deps.AlertPublisher != nil || deps.DLQPublisher != nil {
		t.Fatal("publishers must be nil without kafka")
	}
}

func TestNewDependencies_NilLogger(t *testing.T) {
	deps, err := NewDependencies(context.Background(), DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("new dependencies with nil logger: %v", err)
	}
	deps.Close(log.WithField("component", "test"))
}

func TestDependencies_CloseNil(t *testing.T) {
	var deps *Dependencies
	deps.Close(testLogger()) // не должен паниковать
}
