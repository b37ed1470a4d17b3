package domain

import "time"

// Actor передаёт идентификаторы пользователя и арендатора для каждой операции.
// Ядро трактует оба значения как непрозрачные корреляционные идентификаторы.
type Actor struct {
	UserID   string
	TenantID string
}

// AlertType определяет тип уведомления для операторов.
type AlertType string

const (
	// AlertLowStock — доступный остаток упал до порога дозаказа.
	AlertLowStock AlertType = "alert.low_stock"
	// AlertReservationExpired — резерв снят свипером по истечении срока.
	AlertReservationExpired AlertType = "alert.reservation_expired"
	// AlertReservationExpiring — резерв истекает в пределах warning-окна.
	AlertReservationExpiring AlertType = "alert.reservation_expiring"
	// AlertStockExpiring — срок годности партии истекает в пределах warning-окна.
	AlertStockExpiring AlertType = "alert.stock_expiring"
	// AlertUnusualAdjustment — корректировка необычно велика относительно остатка.
	AlertUnusualAdjustment AlertType = "alert.unusual_adjustment"
)

// Alert — уведомление для операторов. Отправка fire-and-forget: сбой доставки
// не должен прерывать породившую операцию.
type Alert struct {
	Type        AlertType
	VariantID   string
	WarehouseID string
	Message     string
	Metadata    map[string]string
	OccurredAt  time.Time
}

// NotificationSink принимает уведомления. Реализации обязаны быть best-effort.
type NotificationSink interface {
	Notify(alert Alert) error
}

// AuditRecord — структурированная запись аудита для каждой операции,
// меняющей состояние. Снапшоты сериализуются вызывающим кодом в JSON.
type AuditRecord struct {
	ID         string
	Action     string
	EntityType string
	EntityID   string
	ActorID    string
	TenantID   string
	Before     []byte
	After      []byte
	Reason     string
	Occurred   time.Time
}

// AuditSink принимает записи аудита. Сбои логируются и проглатываются,
// но никогда не доходят до вызывающей стороны.
type AuditSink interface {
	Record(record AuditRecord) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
