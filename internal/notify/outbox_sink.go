package notify

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/messaging/kafka"
)

// OutboxSink кладёт алерты в transactional outbox; наружу их доставляет
// outbox worker. Благодаря этому доставка переживает рестарты и сбои брокера.
type OutboxSink struct {
	outbox domain.OutboxRepository
	logger *log.Entry
}

// NewOutboxSink создаёт sink поверх transactional outbox.
func NewOutboxSink(outbox domain.OutboxRepository, logger *log.Entry) *OutboxSink {
	if logger == nil {
		logger = log.WithField("component", "notify-outbox")
	}
	return &OutboxSink{outbox: outbox, logger: logger}
}

// Notify сериализует алерт и ставит его в очередь на публикацию.
func (s *OutboxSink) Notify(alert domain.Alert) error {
	payload, err := json.Marshal(kafka.AlertEvent{
		EventType:   string(alert.Type),
		VariantID:   alert.VariantID,
		WarehouseID: alert.WarehouseID,
		Message:     alert.Message,
		Metadata:    alert.Metadata,
		Timestamp:   alert.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	_, err = s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "inventory",
		AggregateID:   alert.VariantID + "/" + alert.WarehouseID,
		EventType:     string(alert.Type),
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue alert: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"alert_type":   alert.Type,
		"variant_id":   alert.VariantID,
		"warehouse_id": alert.WarehouseID,
	}).Debug("alert enqueued for delivery")
	return nil
}

var _ domain.NotificationSink = (*OutboxSink)(nil)
