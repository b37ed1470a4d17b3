package kafka

import "time"

// Topics для Kafka
const (
	TopicAlertEvents     = "ims.alert.events"
	TopicAuditEvents     = "ims.audit.events"
	TopicDeadLetterQueue = "ims.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// AlertEvent представляет событие-уведомление для операторов
type AlertEvent struct {
	EventType   string            `json:"event_type"`
	VariantID   string            `json:"variant_id"`
	WarehouseID string            `json:"warehouse_id"`
	Message     string            `json:"message"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// AuditEvent представляет запись аудита, опубликованную во внешний поток
type AuditEvent struct {
	AuditID    string    `json:"audit_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
