package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReservationStatus отражает статус удержания остатка под бизнес-событие.
type ReservationStatus string

const (
	// ReservationStatusActive — резерв удерживает остаток целиком.
	ReservationStatusActive ReservationStatus = "active"
	// ReservationStatusPartiallyFulfilled — часть резерва уже отгружена.
	ReservationStatusPartiallyFulfilled ReservationStatus = "partially_fulfilled"
	// ReservationStatusFulfilled — резерв полностью отгружен (терминальный).
	ReservationStatusFulfilled ReservationStatus = "fulfilled"
	// ReservationStatusCancelled — резерв отменён вызывающей стороной (терминальный).
	ReservationStatusCancelled ReservationStatus = "cancelled"
	// ReservationStatusExpired — резерв снят свипером по истечении срока (терминальный).
	ReservationStatusExpired ReservationStatus = "expired"
)

// Terminal сообщает, завершён ли жизненный цикл резерва.
// Пока статус нетерминальный, количество резерва учтено в ReservedStock агрегата.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case ReservationStatusFulfilled, ReservationStatusCancelled, ReservationStatusExpired:
		return true
	default:
		return false
	}
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationStatusActive, ReservationStatusPartiallyFulfilled,
		ReservationStatusFulfilled, ReservationStatusCancelled, ReservationStatusExpired:
		return true
	default:
		return false
	}
}

// Reservation описывает удержание остатка на ограниченное время.
type Reservation struct {
	ID          string
	VariantID   string
	WarehouseID string
	// Quantity — исходное количество резерва.
	Quantity decimal.Decimal
	// RemainingQuantity — ещё не отгруженная часть; именно она учтена в ReservedStock.
	RemainingQuantity decimal.Decimal
	Status            ReservationStatus
	ExpiresAt         time.Time
	ReferenceNumber   string
	Reason            string
	ActorID           string
	TenantID          string
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewReservation создаёт активный резерв, проверяя количество и срок действия.
func NewReservation(variantID, warehouseID string, quantity decimal.Decimal, expiresAt time.Time, referenceNumber, actorID, tenantID string) (*Reservation, error) {
	if variantID == "" {
		return nil, ErrVariantRequired
	}
	if warehouseID == "" {
		return nil, ErrWarehouseRequired
	}
	if !quantity.IsPositive() {
		return nil, ErrQuantityNotPositive
	}
	if !expiresAt.After(time.Now().UTC()) {
		return nil, ErrExpiryNotInFuture
	}

	now := time.Now().UTC()
	return &Reservation{
		ID:                uuid.New().String(),
		VariantID:         variantID,
		WarehouseID:       warehouseID,
		Quantity:          quantity,
		RemainingQuantity: quantity,
		Status:            ReservationStatusActive,
		ExpiresAt:         expiresAt.UTC(),
		ReferenceNumber:   referenceNumber,
		ActorID:           actorID,
		TenantID:          tenantID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ChangeQuantity меняет оставшееся количество резерва и возвращает дельту
// (положительная — нужно дорезервировать, отрицательная — освободить).
func (r *Reservation) ChangeQuantity(newQuantity decimal.Decimal) (decimal.Decimal, error) {
	if r.Status.Terminal() {
		return decimal.Decimal{}, ErrReservationNotActive
	}
	if !newQuantity.IsPositive() {
		return decimal.Decimal{}, ErrQuantityNotPositive
	}

	delta := newQuantity.Sub(r.RemainingQuantity)
	r.RemainingQuantity = newQuantity
	r.Quantity = r.Quantity.Add(delta)
	r.UpdatedAt = time.Now().UTC()
	return delta, nil
}

// Fulfill отгружает часть или весь остаток резерва.
// Возвращает отгруженное количество; полная отгрузка переводит резерв в Fulfilled.
func (r *Reservation) Fulfill(quantity decimal.Decimal) (decimal.Decimal, error) {
	if r.Status.Terminal() {
		return decimal.Decimal{}, ErrReservationNotActive
	}
	if !quantity.IsPositive() {
		return decimal.Decimal{}, ErrQuantityNotPositive
	}
	if quantity.GreaterThan(r.RemainingQuantity) {
		return decimal.Decimal{}, &InsufficientStockError{
			VariantID:   r.VariantID,
			WarehouseID: r.WarehouseID,
			Requested:   quantity,
			Available:   r.RemainingQuantity,
		}
	}

	r.RemainingQuantity = r.RemainingQuantity.Sub(quantity)
	if r.RemainingQuantity.IsZero() {
		r.Status = ReservationStatusFulfilled
	} else {
		r.Status = ReservationStatusPartiallyFulfilled
	}
	r.UpdatedAt = time.Now().UTC()
	return quantity, nil
}

// Cancel отменяет резерв из нетерминального статуса и возвращает
// количество, подлежащее освобождению.
func (r *Reservation) Cancel(reason string) (decimal.Decimal, error) {
	if r.Status.Terminal() {
		return decimal.Decimal{}, ErrReservationNotActive
	}

	released := r.RemainingQuantity
	r.RemainingQuantity = decimal.Zero
	r.Status = ReservationStatusCancelled
	r.Reason = reason
	r.UpdatedAt = time.Now().UTC()
	return released, nil
}

// Expire переводит просроченный резерв в Expired. Вызывается только свипером.
// Для уже терминального резерва — no-op: возвращает ноль без ошибки,
// чтобы повторный прогон свипера ничего не менял.
func (r *Reservation) Expire(now time.Time) (decimal.Decimal, bool) {
	if r.Status.Terminal() {
		return decimal.Zero, false
	}
	if r.ExpiresAt.After(now) {
		return decimal.Zero, false
	}

	released := r.RemainingQuantity
	r.RemainingQuantity = decimal.Zero
	r.Status = ReservationStatusExpired
	r.UpdatedAt = now.UTC()
	return released, true
}

// ExpiringSoon сообщает, истекает ли нетерминальный резерв в пределах warning-окна.
func (r *Reservation) ExpiringSoon(now time.Time, window time.Duration) bool {
	if r.Status.Terminal() {
		return false
	}
	return r.ExpiresAt.After(now) && !r.ExpiresAt.After(now.Add(window))
}
