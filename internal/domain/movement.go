package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType описывает бизнес-причину изменения остатка.
type MovementType string

const (
	// MovementOpeningBalance — заведение начального остатка для пары (variant, warehouse).
	MovementOpeningBalance MovementType = "opening_balance"
	// MovementPurchase — приход по закупке.
	MovementPurchase MovementType = "purchase"
	// MovementSale — расход по продаже.
	MovementSale MovementType = "sale"
	// MovementAdjustment — ручная корректировка в любую сторону.
	MovementAdjustment MovementType = "adjustment"
	// MovementTransfer — перемещение между складами (всегда парная запись).
	MovementTransfer MovementType = "transfer"
	// MovementWriteOff — списание (брак, потери).
	MovementWriteOff MovementType = "write_off"
	// MovementRefund — возврат по ранее проведённой продаже.
	MovementRefund MovementType = "refund"
)

// Valid проверяет, что тип движения относится к поддерживаемым значениям.
func (t MovementType) Valid() bool {
	switch t {
	case MovementOpeningBalance, MovementPurchase, MovementSale,
		MovementAdjustment, MovementTransfer, MovementWriteOff, MovementRefund:
		return true
	default:
		return false
	}
}

// EntryType различает стороны двойной записи.
type EntryType string

const (
	// EntryDebit увеличивает остаток получателя.
	EntryDebit EntryType = "debit"
	// EntryCredit уменьшает остаток источника.
	EntryCredit EntryType = "credit"
)

// StockMovement — неизменяемая запись журнала движений.
// После создания ни одно поле не мутируется: исправление — новое движение.
type StockMovement struct {
	ID              string
	InventoryItemID string
	VariantID       string
	WarehouseID     string
	Type            MovementType
	// Quantity — подписанное количество; знак фиксирован типом движения.
	Quantity decimal.Decimal
	// RunningBalance — TotalStock агрегата сразу после применения записи.
	RunningBalance decimal.Decimal
	// EntryType выводится из знака Quantity и не задаётся вызывающим кодом.
	EntryType EntryType
	// PairedMovementID связывает debit и credit половины перемещения.
	PairedMovementID string
	ReferenceNumber  string
	Reason           string
	ActorID          string
	TenantID         string
	Metadata         map[string]string
	Timestamp        time.Time
}

// ValidateQuantityForType проверяет знаковое правило типа движения.
// OpeningBalance, Purchase, Refund — строго положительные; Sale, WriteOff —
// строго отрицательные; Adjustment и Transfer — любой знак, кроме нуля.
func ValidateQuantityForType(movementType MovementType, quantity decimal.Decimal) error {
	if !movementType.Valid() {
		return ErrUnknownMovementType
	}
	if quantity.IsZero() {
		return ErrInvalidQuantityForMovementType
	}

	switch movementType {
	case MovementOpeningBalance, MovementPurchase, MovementRefund:
		if !quantity.IsPositive() {
			return ErrInvalidQuantityForMovementType
		}
	case MovementSale, MovementWriteOff:
		if !quantity.IsNegative() {
			return ErrInvalidQuantityForMovementType
		}
	case MovementAdjustment, MovementTransfer:
		// Любой знак допустим.
	}

	return nil
}

// entryTypeFor выводит сторону записи из знака количества.
func entryTypeFor(quantity decimal.Decimal) EntryType {
	if quantity.IsNegative() {
		return EntryCredit
	}
	return EntryDebit
}

// MovementInput — параметры создания одиночной записи журнала.
type MovementInput struct {
	Item            *InventoryItem
	Type            MovementType
	Quantity        decimal.Decimal
	RunningBalance  decimal.Decimal
	ReferenceNumber string
	Reason          string
	ActorID         string
	TenantID        string
	Metadata        map[string]string
}

// NewMovement создаёт одиночную запись журнала, проверяя знаковые правила и причину.
// Журнал не дедуплицирует записи сам: проверка существующего opening balance —
// обязанность вызывающего кода (HasOpeningBalance).
func NewMovement(in MovementInput) (*StockMovement, error) {
	if err := ValidateQuantityForType(in.Type, in.Quantity); err != nil {
		return nil, err
	}
	if in.Reason == "" {
		return nil, ErrMissingReason
	}

	return &StockMovement{
		ID:              uuid.New().String(),
		InventoryItemID: in.Item.ID,
		VariantID:       in.Item.VariantID,
		WarehouseID:     in.Item.WarehouseID,
		Type:            in.Type,
		Quantity:        in.Quantity,
		RunningBalance:  in.RunningBalance,
		EntryType:       entryTypeFor(in.Quantity),
		ReferenceNumber: in.ReferenceNumber,
		Reason:          in.Reason,
		ActorID:         in.ActorID,
		TenantID:        in.TenantID,
		Metadata:        in.Metadata,
		Timestamp:       time.Now().UTC(),
	}, nil
}

// TransferPairInput — параметры создания сбалансированной пары перемещения.
type TransferPairInput struct {
	Source          *InventoryItem
	Destination     *InventoryItem
	Quantity        decimal.Decimal // строго положительное количество перемещения
	SourceBalance   decimal.Decimal // running balance источника после списания
	DestBalance     decimal.Decimal // running balance получателя после прихода
	ReferenceNumber string
	Reason          string
	ActorID         string
	TenantID        string
}

// NewTransferPair создаёт credit-запись у источника и debit-запись у получателя,
// связанные PairedMovementID и общим reference number. Пара возвращается как
// единое целое: частичное создание не поддерживается, границу транзакции
// обеспечивает хранилище (AppendPair).
func NewTransferPair(in TransferPairInput) (credit, debit *StockMovement, err error) {
	if !in.Quantity.IsPositive() {
		return nil, nil, ErrQuantityNotPositive
	}
	if in.ReferenceNumber == "" {
		return nil, nil, ErrMissingReferenceNumber
	}
	if in.Reason == "" {
		return nil, nil, ErrMissingReason
	}

	now := time.Now().UTC()
	credit = &StockMovement{
		ID:              uuid.New().String(),
		InventoryItemID: in.Source.ID,
		VariantID:       in.Source.VariantID,
		WarehouseID:     in.Source.WarehouseID,
		Type:            MovementTransfer,
		Quantity:        in.Quantity.Neg(),
		RunningBalance:  in.SourceBalance,
		EntryType:       EntryCredit,
		ReferenceNumber: in.ReferenceNumber,
		Reason:          in.Reason,
		ActorID:         in.ActorID,
		TenantID:        in.TenantID,
		Timestamp:       now,
	}
	debit = &StockMovement{
		ID:              uuid.New().String(),
		InventoryItemID: in.Destination.ID,
		VariantID:       in.Destination.VariantID,
		WarehouseID:     in.Destination.WarehouseID,
		Type:            MovementTransfer,
		Quantity:        in.Quantity,
		RunningBalance:  in.DestBalance,
		EntryType:       EntryDebit,
		ReferenceNumber: in.ReferenceNumber,
		Reason:          in.Reason,
		ActorID:         in.ActorID,
		TenantID:        in.TenantID,
		Timestamp:       now,
	}

	credit.PairedMovementID = debit.ID
	debit.PairedMovementID = credit.ID

	return credit, debit, nil
}
