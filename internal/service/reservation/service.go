package reservation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/metrics"
	"github.com/vladislavdragonenkov/ims/internal/service/stock"
)

const (
	maxSaveRetries     = 3
	saveRetryBaseDelay = 10 * time.Millisecond
)

// Allocator — операции движка журнала, нужные жизненному циклу резервов.
type Allocator interface {
	ReserveStock(variantID, warehouseID string, quantity decimal.Decimal) error
	ReleaseStock(variantID, warehouseID string, quantity decimal.Decimal) error
	RecordSale(cmd stock.MovementCommand) (*domain.StockMovement, error)
}

// Service управляет жизненным циклом резервов: создание, изменение,
// отгрузка, отмена и снятие по истечении срока.
type Service struct {
	reservations domain.ReservationRepository
	allocator    Allocator
	logger       *log.Entry
	metrics      *metrics.StockMetrics
}

// NewService создаёт сервис резервов.
func NewService(reservations domain.ReservationRepository, allocator Allocator, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "reservation")
	}
	return &Service{
		reservations: reservations,
		allocator:    allocator,
		logger:       logger,
		metrics:      metrics.NewStockMetrics(),
	}
}

// NewServiceWithoutMetrics создаёт сервис без метрик (для тестов).
func NewServiceWithoutMetrics(reservations domain.ReservationRepository, allocator Allocator, logger *log.Entry) *Service {
	svc := NewService(reservations, allocator, logger)
	svc.metrics = nil
	return svc
}

// CreateCommand — параметры создания резерва.
type CreateCommand struct {
	VariantID       string
	WarehouseID     string
	Quantity        decimal.Decimal
	ExpiresAt       time.Time
	ReferenceNumber string
	Actor           domain.Actor
}

// Create создаёт активный резерв и удерживает его количество в агрегате.
// Удержание выполняется до сохранения резерва; при сбое сохранения
// удержание компенсируется обратным освобождением.
func (s *Service) Create(cmd CreateCommand) (*domain.Reservation, error) {
	reservation, err := domain.NewReservation(
		cmd.VariantID,
		cmd.WarehouseID,
		cmd.Quantity,
		cmd.ExpiresAt,
		cmd.ReferenceNumber,
		cmd.Actor.UserID,
		cmd.Actor.TenantID,
	)
	if err != nil {
		return nil, err
	}

	if err := s.allocator.ReserveStock(cmd.VariantID, cmd.WarehouseID, cmd.Quantity); err != nil {
		return nil, err
	}

	if err := s.reservations.Create(*reservation); err != nil {
		if releaseErr := s.allocator.ReleaseStock(cmd.VariantID, cmd.WarehouseID, cmd.Quantity); releaseErr != nil {
			s.logger.WithError(releaseErr).WithField("reservation_id", reservation.ID).
				Error("failed to release stock after create failure")
		}
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordReservationCreated()
	}
	return reservation, nil
}

// Modify меняет оставшееся количество нетерминального резерва.
// Увеличение проверяет доступный остаток; уменьшение освобождает разницу.
func (s *Service) Modify(reservationID string, newQuantity decimal.Decimal) (*domain.Reservation, error) {
	var result *domain.Reservation

	err := s.withRetry(reservationID, func(r *domain.Reservation) (func(), error) {
		delta, err := r.ChangeQuantity(newQuantity)
		if err != nil {
			return nil, err
		}

		switch {
		case delta.IsPositive():
			if err := s.allocator.ReserveStock(r.VariantID, r.WarehouseID, delta); err != nil {
				return nil, err
			}
			result = r
			return func() { s.releaseQuietly(r.VariantID, r.WarehouseID, delta) }, nil
		case delta.IsNegative():
			if err := s.allocator.ReleaseStock(r.VariantID, r.WarehouseID, delta.Neg()); err != nil {
				return nil, err
			}
			result = r
			return func() { s.reserveQuietly(r.VariantID, r.WarehouseID, delta.Neg()) }, nil
		default:
			result = r
			return nil, nil
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Fulfill отгружает количество из резерва: удержание снимается и в журнал
// записывается продажа под reference number резерва. Сбой продажи
// компенсируется повторным удержанием, чтобы резерв остался согласованным.
func (s *Service) Fulfill(reservationID string, quantity decimal.Decimal, actor domain.Actor) (*domain.Reservation, *domain.StockMovement, error) {
	var (
		result   *domain.Reservation
		movement *domain.StockMovement
	)

	err := s.withRetry(reservationID, func(r *domain.Reservation) (func(), error) {
		fulfilled, err := r.Fulfill(quantity)
		if err != nil {
			return nil, err
		}

		if err := s.allocator.ReleaseStock(r.VariantID, r.WarehouseID, fulfilled); err != nil {
			return nil, err
		}

		movement, err = s.allocator.RecordSale(stock.MovementCommand{
			VariantID:       r.VariantID,
			WarehouseID:     r.WarehouseID,
			Quantity:        fulfilled,
			ReferenceNumber: r.ReferenceNumber,
			Reason:          "reservation fulfilled",
			Actor:           actor,
		})
		if err != nil {
			s.reserveQuietly(r.VariantID, r.WarehouseID, fulfilled)
			return nil, err
		}

		result = r
		// Продажа уже в журнале; при конфликте версий резерва откатывать её
		// нельзя, поэтому конфликт здесь эскалируется вместо повтора.
		return nil, nil
	})
	if err != nil {
		return nil, nil, err
	}

	if s.metrics != nil && result.Status == domain.ReservationStatusFulfilled {
		s.metrics.RecordReservationFulfilled()
	}
	return result, movement, nil
}

// Cancel отменяет нетерминальный резерв и освобождает остаток.
func (s *Service) Cancel(reservationID, reason string) (*domain.Reservation, error) {
	var result *domain.Reservation

	err := s.withRetry(reservationID, func(r *domain.Reservation) (func(), error) {
		released, err := r.Cancel(reason)
		if err != nil {
			return nil, err
		}

		if released.IsPositive() {
			if err := s.allocator.ReleaseStock(r.VariantID, r.WarehouseID, released); err != nil {
				return nil, err
			}
			result = r
			return func() { s.reserveQuietly(r.VariantID, r.WarehouseID, released) }, nil
		}

		result = r
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordReservationCancelled()
	}
	return result, nil
}

// ExpiredReservation — снятый по сроку резерв и фактически освобождённое
// количество (для частично отгруженного резерва оно меньше исходного Quantity).
type ExpiredReservation struct {
	Reservation domain.Reservation
	Released    decimal.Decimal
}

// ExpireDue снимает все просроченные на момент now резервы и возвращает их
// вместе с освобождёнными количествами.
// Идемпотентна: уже терминальные резервы пропускаются без ошибок.
func (s *Service) ExpireDue(now time.Time) ([]ExpiredReservation, error) {
	due, err := s.reservations.FindExpiring(now)
	if err != nil {
		return nil, fmt.Errorf("find expiring reservations: %w", err)
	}

	var expired []ExpiredReservation
	for _, candidate := range due {
		var (
			result       *domain.Reservation
			resultAmount decimal.Decimal
		)

		err := s.withRetry(candidate.ID, func(r *domain.Reservation) (func(), error) {
			released, changed := r.Expire(now)
			if !changed {
				return nil, nil
			}
			resultAmount = released

			if released.IsPositive() {
				if err := s.allocator.ReleaseStock(r.VariantID, r.WarehouseID, released); err != nil {
					return nil, err
				}
				result = r
				return func() { s.reserveQuietly(r.VariantID, r.WarehouseID, released) }, nil
			}

			result = r
			return nil, nil
		})
		if err != nil {
			s.logger.WithError(err).WithField("reservation_id", candidate.ID).
				Error("failed to expire reservation")
			continue
		}
		if result == nil {
			continue
		}

		if s.metrics != nil {
			s.metrics.RecordReservationExpired()
		}
		expired = append(expired, ExpiredReservation{Reservation: *result, Released: resultAmount})
	}

	return expired, nil
}

// ExpiringSoon возвращает нетерминальные резервы, истекающие в пределах window от now.
func (s *Service) ExpiringSoon(now time.Time, window time.Duration) ([]domain.Reservation, error) {
	candidates, err := s.reservations.FindExpiring(now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("find expiring reservations: %w", err)
	}

	var soon []domain.Reservation
	for _, r := range candidates {
		if r.ExpiringSoon(now, window) {
			soon = append(soon, r)
		}
	}
	return soon, nil
}

// Get возвращает резерв по идентификатору.
func (s *Service) Get(reservationID string) (domain.Reservation, error) {
	return s.reservations.Get(reservationID)
}

// ListByItem возвращает резервы пары (variant, warehouse), новые первыми.
func (s *Service) ListByItem(variantID, warehouseID string) ([]domain.Reservation, error) {
	return s.reservations.ListByItem(variantID, warehouseID)
}

// withRetry выполняет read-modify-write резерва с повтором на конфликте версий.
// mutate возвращает компенсацию своих внешних эффектов; она вызывается перед
// каждым повтором и при окончательном сбое сохранения. mutate без компенсации
// (nil) при конфликте не повторяется, чтобы не задвоить эффекты.
func (s *Service) withRetry(reservationID string, mutate func(*domain.Reservation) (func(), error)) error {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		reservation, err := s.reservations.Get(reservationID)
		if err != nil {
			return err
		}

		undo, err := mutate(&reservation)
		if err != nil {
			return err
		}

		saveErr := s.reservations.Save(reservation)
		if saveErr == nil {
			return nil
		}

		if undo != nil {
			undo()
		}
		if domain.IsVersionConflict(saveErr) && undo != nil && attempt < maxSaveRetries-1 {
			if s.metrics != nil {
				s.metrics.RecordVersionConflict()
			}
			time.Sleep(saveRetryBaseDelay * time.Duration(1<<uint(attempt)))
			continue
		}
		return saveErr
	}

	return domain.ErrVersionConflict
}

func (s *Service) reserveQuietly(variantID, warehouseID string, quantity decimal.Decimal) {
	if err := s.allocator.ReserveStock(variantID, warehouseID, quantity); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"variant_id":   variantID,
			"warehouse_id": warehouseID,
		}).Error("failed to compensate with re-reserve")
	}
}

func (s *Service) releaseQuietly(variantID, warehouseID string, quantity decimal.Decimal) {
	if err := s.allocator.ReleaseStock(variantID, warehouseID, quantity); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"variant_id":   variantID,
			"warehouse_id": warehouseID,
		}).Error("failed to compensate with release")
	}
}
