package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Ошибки валидации: запрос отклоняется до любого изменения состояния.

	// ErrInvalidQuantityForMovementType — знак количества не соответствует типу движения.
	ErrInvalidQuantityForMovementType = errors.New("quantity sign is invalid for movement type")
	// ErrUnknownMovementType — неизвестный тип движения.
	ErrUnknownMovementType = errors.New("unknown movement type")
	// ErrMissingReason — для движения не указана причина.
	ErrMissingReason = errors.New("movement reason is required")
	// ErrMissingReferenceNumber — для двойной записи обязателен reference number.
	ErrMissingReferenceNumber = errors.New("reference number is required")
	// ErrQuantityNotPositive — запрошенное количество должно быть строго положительным.
	ErrQuantityNotPositive = errors.New("requested quantity must be greater than zero")
	// ErrVariantRequired — не указан идентификатор варианта товара.
	ErrVariantRequired = errors.New("variant_id is required")
	// ErrWarehouseRequired — не указан идентификатор склада.
	ErrWarehouseRequired = errors.New("warehouse_id is required")
	// ErrExpiryNotInFuture — срок действия резерва должен быть в будущем.
	ErrExpiryNotInFuture = errors.New("reservation expiry must be in the future")
	// ErrConversionFactorInvalid — коэффициент пересчёта единиц должен быть > 0.
	ErrConversionFactorInvalid = errors.New("unit conversion factor must be greater than zero")

	// Конфликты: бизнес-правило нарушено текущим состоянием; можно повторить с другим вводом.

	// ErrInsufficientStock — доступного остатка недостаточно для операции.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOpeningBalanceExists — начальный остаток по паре (variant, warehouse) уже заведён.
	ErrOpeningBalanceExists = errors.New("opening balance already exists")
	// ErrReservationNotActive — резерв в терминальном статусе и не может быть изменён.
	ErrReservationNotActive = errors.New("reservation is not active")
	// ErrRefundExceedsSale — возврат превышает остаток, доступный к возврату по продаже.
	ErrRefundExceedsSale = errors.New("refund exceeds remaining refundable quantity")
	// ErrVersionConflict — конфликт версий при сохранении агрегата (optimistic locking).
	ErrVersionConflict = errors.New("inventory item version conflict")
	// ErrInventoryExists — запись инвентаря для пары (variant, warehouse) уже существует.
	ErrInventoryExists = errors.New("inventory item already exists")

	// Не найдено: сущность отсутствует или мягко удалена.

	// ErrInventoryNotFound — агрегат инвентаря не найден.
	ErrInventoryNotFound = errors.New("inventory item not found")
	// ErrSaleNotFound — по reference number нет ни одного движения типа Sale.
	ErrSaleNotFound = errors.New("sale not found for reference")
	// ErrOriginalSaleNotFound — возврат ссылается на несуществующую продажу.
	ErrOriginalSaleNotFound = errors.New("original sale not found for refund")
	// ErrReservationNotFound — резерв не найден.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrOutboxMessageNotFound — outbox-сообщение не найдено.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
)

// InsufficientStockError дополняет ErrInsufficientStock контекстом текущего остатка.
type InsufficientStockError struct {
	VariantID   string
	WarehouseID string
	Requested   decimal.Decimal
	Available   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s in warehouse %s: requested %s, available %s",
		e.VariantID, e.WarehouseID, e.Requested.String(), e.Available.String())
}

// Is позволяет проверять ошибку через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// RefundExceedsSaleError дополняет ErrRefundExceedsSale остатком, доступным к возврату.
type RefundExceedsSaleError struct {
	ReferenceNumber     string
	Requested           decimal.Decimal
	RemainingRefundable decimal.Decimal
}

func (e *RefundExceedsSaleError) Error() string {
	return fmt.Sprintf("refund of %s exceeds remaining refundable %s for reference %s",
		e.Requested.String(), e.RemainingRefundable.String(), e.ReferenceNumber)
}

// Is позволяет проверять ошибку через errors.Is(err, ErrRefundExceedsSale).
func (e *RefundExceedsSaleError) Is(target error) bool {
	return target == ErrRefundExceedsSale
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsNotFound сообщает, относится ли ошибка к категории "не найдено".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInventoryNotFound) ||
		errors.Is(err, ErrSaleNotFound) ||
		errors.Is(err, ErrOriginalSaleNotFound) ||
		errors.Is(err, ErrReservationNotFound)
}
