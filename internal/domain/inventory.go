package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem агрегирует остатки одного варианта товара на одном складе.
// Пара (VariantID, WarehouseID) уникальна; все количества — в базовой единице.
type InventoryItem struct {
	ID          string
	VariantID   string
	WarehouseID string
	// TotalStock — физический остаток на складе.
	TotalStock decimal.Decimal
	// ReservedStock — часть TotalStock, удержанная под активные резервы.
	ReservedStock decimal.Decimal
	// AllowNegativeStock разрешает уход доступного остатка в минус.
	AllowNegativeStock bool
	// ReorderPoint — порог, при достижении которого отправляется low-stock алерт.
	ReorderPoint decimal.Decimal
	// ExpiryDate — срок годности партии; используется только для алертов.
	ExpiryDate *time.Time
	// Поля мягкого удаления: запись никогда не удаляется физически.
	IsDeleted bool
	DeletedAt *time.Time
	DeletedBy string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailableStock возвращает доступный остаток: TotalStock - ReservedStock.
func (i *InventoryItem) AvailableStock() decimal.Decimal {
	return i.TotalStock.Sub(i.ReservedStock)
}

// ApplyMovement применяет подписанное количество движения к TotalStock.
// Проверяет знак количества для типа движения и инвариант доступного остатка,
// возвращает новый running balance. Состояние меняется только при успехе.
func (i *InventoryItem) ApplyMovement(movementType MovementType, quantity decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateQuantityForType(movementType, quantity); err != nil {
		return decimal.Decimal{}, err
	}

	newTotal := i.TotalStock.Add(quantity)
	if !i.AllowNegativeStock && newTotal.Sub(i.ReservedStock).IsNegative() {
		return decimal.Decimal{}, &InsufficientStockError{
			VariantID:   i.VariantID,
			WarehouseID: i.WarehouseID,
			Requested:   quantity.Abs(),
			Available:   i.AvailableStock(),
		}
	}

	i.TotalStock = newTotal
	i.UpdatedAt = time.Now().UTC()
	return newTotal, nil
}

// Reserve удерживает количество под резерв, проверяя доступный остаток.
func (i *InventoryItem) Reserve(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return ErrQuantityNotPositive
	}
	if !i.AllowNegativeStock && i.AvailableStock().LessThan(quantity) {
		return &InsufficientStockError{
			VariantID:   i.VariantID,
			WarehouseID: i.WarehouseID,
			Requested:   quantity,
			Available:   i.AvailableStock(),
		}
	}
	i.ReservedStock = i.ReservedStock.Add(quantity)
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// Release снимает удержание; ReservedStock не опускается ниже нуля.
func (i *InventoryItem) Release(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return ErrQuantityNotPositive
	}
	i.ReservedStock = i.ReservedStock.Sub(quantity)
	if i.ReservedStock.IsNegative() {
		i.ReservedStock = decimal.Zero
	}
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// SoftDelete помечает запись удалённой, сохраняя историю движений.
func (i *InventoryItem) SoftDelete(deletedBy string) {
	if i.IsDeleted {
		return
	}
	now := time.Now().UTC()
	i.IsDeleted = true
	i.DeletedAt = &now
	i.DeletedBy = deletedBy
	i.UpdatedAt = now
}

// ValidateInvariants проверяет базовые инварианты агрегата и возвращает список замечаний.
func (i *InventoryItem) ValidateInvariants() []error {
	var errs []error

	if i.VariantID == "" {
		errs = append(errs, ErrVariantRequired)
	}
	if i.WarehouseID == "" {
		errs = append(errs, ErrWarehouseRequired)
	}
	if i.ReservedStock.IsNegative() {
		errs = append(errs, ErrQuantityNotPositive)
	}
	if !i.AllowNegativeStock && i.AvailableStock().IsNegative() {
		errs = append(errs, ErrInsufficientStock)
	}

	return errs
}
