package domain

import "time"

// InventoryRepository описывает требования к хранилищу агрегатов инвентаря.
// Get/Save вместе с колонкой Version дают атомарный read-modify-write
// для одной пары (variant, warehouse).
type InventoryRepository interface {
	// Create сохраняет новый агрегат. Возвращает ErrInventoryExists,
	// если пара (variant, warehouse) уже занята.
	Create(item InventoryItem) error
	// Get возвращает агрегат по паре или ErrInventoryNotFound.
	// Мягко удалённые записи не возвращаются.
	Get(variantID, warehouseID string) (InventoryItem, error)
	// Save применяет обновления с учётом optimistic locking:
	// ErrVersionConflict при несовпадении версии.
	Save(item InventoryItem) error
	// ListByVariant возвращает записи варианта по всем складам.
	ListByVariant(variantID string) ([]InventoryItem, error)
	// ListByWarehouse возвращает записи склада.
	ListByWarehouse(warehouseID string) ([]InventoryItem, error)
	// FindExpiring возвращает неудалённые записи, чей срок годности наступает до before.
	FindExpiring(before time.Time) ([]InventoryItem, error)
}

// MovementRepository — append-only хранилище журнала движений.
type MovementRepository interface {
	// Append добавляет одиночную запись.
	Append(movement StockMovement) error
	// AppendPair добавляет обе половины двойной записи как единое целое:
	// частичная запись — не поддерживаемый исход.
	AppendPair(credit, debit StockMovement) error
	// FindByReference возвращает движения с общим reference number, новые первыми.
	FindByReference(referenceNumber string) ([]StockMovement, error)
	// FindByInventoryItem возвращает движения агрегата, новые первыми.
	FindByInventoryItem(inventoryItemID string) ([]StockMovement, error)
	// HasOpeningBalance сообщает, заведён ли начальный остаток для пары.
	HasOpeningBalance(variantID, warehouseID string) (bool, error)
}

// ReservationRepository описывает требования к хранилищу резервов.
type ReservationRepository interface {
	// Create сохраняет новый резерв.
	Create(reservation Reservation) error
	// Get возвращает резерв или ErrReservationNotFound.
	Get(id string) (Reservation, error)
	// Save применяет обновления с учётом optimistic locking.
	Save(reservation Reservation) error
	// FindExpiring возвращает нетерминальные резервы с ExpiresAt <= before.
	FindExpiring(before time.Time) ([]Reservation, error)
	// ListByItem возвращает резервы пары (variant, warehouse), новые первыми.
	ListByItem(variantID, warehouseID string) ([]Reservation, error)
}

// AuditRepository хранит записи аудита операций.
type AuditRepository interface {
	Append(record AuditRecord) error
	List(entityType, entityID string) ([]AuditRecord, error)
}
