package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	// Создаем mock producer
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидания
	mockProducer.ExpectSendMessageAndSucceed()

	event := AlertEvent{
		EventType:   "alert.low_stock",
		VariantID:   "variant-123",
		WarehouseID: "warehouse-1",
		Message:     "available stock 3 is at or below reorder point 10",
		Timestamp:   time.Now().UTC(),
	}

	// Публикуем событие
	err := producer.PublishEvent(TopicAlertEvents, "variant-123", event)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Проверяем, что все ожидания выполнены
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	// Создаем mock producer с ошибкой
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидание ошибки
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := AuditEvent{
		AuditID:    "audit-1",
		Action:     "sale",
		EntityType: "inventory_item",
		EntityID:   "inv-1",
		Timestamp:  time.Now().UTC(),
	}

	// Публикуем событие
	err := producer.PublishEvent(TopicAuditEvents, "inv-1", event)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}
