package stock

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/metrics"
)

const (
	// maxSaveRetries — число попыток сохранить агрегат при конфликте версий.
	maxSaveRetries = 3
	// saveRetryBaseDelay — базовый delay для exponential backoff между попытками.
	saveRetryBaseDelay = 10 * time.Millisecond
)

// unusualAdjustmentRatio — доля текущего остатка, при превышении которой
// корректировка считается необычной и требует алерта.
var unusualAdjustmentRatio = decimal.RequireFromString("0.5")

// Service реализует движок журнала движений: единственная точка, через которую
// меняются TotalStock и ReservedStock агрегатов.
type Service struct {
	inventory domain.InventoryRepository
	movements domain.MovementRepository
	audit     domain.AuditSink
	notifier  domain.NotificationSink
	logger    *log.Entry
	metrics   *metrics.StockMetrics
	locks     *pairLocks
}

// NewService создаёт рабочий экземпляр движка журнала.
func NewService(
	inventory domain.InventoryRepository,
	movements domain.MovementRepository,
	audit domain.AuditSink,
	notifier domain.NotificationSink,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "stock")
	}
	return &Service{
		inventory: inventory,
		movements: movements,
		audit:     audit,
		notifier:  notifier,
		logger:    logger,
		metrics:   metrics.NewStockMetrics(),
		locks:     newPairLocks(),
	}
}

// NewServiceWithoutMetrics создаёт движок без метрик (для тестов).
func NewServiceWithoutMetrics(
	inventory domain.InventoryRepository,
	movements domain.MovementRepository,
	audit domain.AuditSink,
	notifier domain.NotificationSink,
	logger *log.Entry,
) *Service {
	svc := NewService(inventory, movements, audit, notifier, logger)
	svc.metrics = nil
	return svc
}

func pairLockKey(variantID, warehouseID string) string {
	return variantID + "/" + warehouseID
}

// MovementCommand — общие параметры операции журнала. Quantity задаётся как
// положительная величина в единице Conversion (или базовой, если Conversion nil);
// знак движению присваивает сам движок по типу операции.
type MovementCommand struct {
	VariantID       string
	WarehouseID     string
	Quantity        decimal.Decimal
	Conversion      *domain.UnitConversion
	ReferenceNumber string
	Reason          string
	Metadata        map[string]string
	Actor           domain.Actor
}

// OpeningBalanceCommand заводит агрегат и его начальный остаток.
type OpeningBalanceCommand struct {
	VariantID          string
	WarehouseID        string
	Quantity           decimal.Decimal
	Conversion         *domain.UnitConversion
	AllowNegativeStock bool
	ReorderPoint       decimal.Decimal
	ExpiryDate         *time.Time
	Reason             string
	Actor              domain.Actor
}

// TransferCommand перемещает остаток между двумя складами.
type TransferCommand struct {
	VariantID            string
	SourceWarehouseID    string
	DestinationWarehouse string
	Quantity             decimal.Decimal
	Conversion           *domain.UnitConversion
	ReferenceNumber      string
	Reason               string
	Actor                domain.Actor
}

// normalizeQuantity переводит количество в базовую единицу.
func normalizeQuantity(qty decimal.Decimal, conversion *domain.UnitConversion) decimal.Decimal {
	if conversion == nil {
		return qty
	}
	return conversion.ToBase(qty)
}

// RecordOpeningBalance заводит начальный остаток для пары (variant, warehouse).
// Журнал не дедуплицирует записи сам, поэтому существующий opening balance
// проверяется здесь до создания агрегата.
func (s *Service) RecordOpeningBalance(cmd OpeningBalanceCommand) (*domain.StockMovement, error) {
	start := time.Now()
	defer s.observeDuration("opening_balance", start)

	if cmd.VariantID == "" {
		return nil, domain.ErrVariantRequired
	}
	if cmd.WarehouseID == "" {
		return nil, domain.ErrWarehouseRequired
	}
	if !cmd.Quantity.IsPositive() {
		return nil, domain.ErrQuantityNotPositive
	}

	unlock := s.locks.lock(pairLockKey(cmd.VariantID, cmd.WarehouseID))
	defer unlock()

	exists, err := s.movements.HasOpeningBalance(cmd.VariantID, cmd.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("check opening balance: %w", err)
	}
	if exists {
		s.recordMovementMetric(domain.MovementOpeningBalance, "conflict")
		return nil, domain.ErrOpeningBalanceExists
	}

	now := time.Now().UTC()
	item := domain.InventoryItem{
		ID:                 uuid.New().String(),
		VariantID:          cmd.VariantID,
		WarehouseID:        cmd.WarehouseID,
		TotalStock:         decimal.Zero,
		ReservedStock:      decimal.Zero,
		AllowNegativeStock: cmd.AllowNegativeStock,
		ReorderPoint:       cmd.ReorderPoint,
		ExpiryDate:         cmd.ExpiryDate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	quantity := normalizeQuantity(cmd.Quantity, cmd.Conversion)
	balance, err := item.ApplyMovement(domain.MovementOpeningBalance, quantity)
	if err != nil {
		return nil, err
	}

	movement, err := domain.NewMovement(domain.MovementInput{
		Item:           &item,
		Type:           domain.MovementOpeningBalance,
		Quantity:       quantity,
		RunningBalance: balance,
		Reason:         cmd.Reason,
		ActorID:        cmd.Actor.UserID,
		TenantID:       cmd.Actor.TenantID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.inventory.Create(item); err != nil {
		s.recordMovementMetric(domain.MovementOpeningBalance, "conflict")
		return nil, err
	}
	if err := s.movements.Append(*movement); err != nil {
		return nil, fmt.Errorf("append opening balance movement: %w", err)
	}

	s.recordMovementMetric(domain.MovementOpeningBalance, "ok")
	s.emitAudit("opening_balance", &item, nil, &item, cmd.Reason, cmd.Actor)
	return movement, nil
}

// RecordPurchase записывает приход по закупке.
func (s *Service) RecordPurchase(cmd MovementCommand) (*domain.StockMovement, error) {
	return s.applySingle("purchase", domain.MovementPurchase, cmd, false)
}

// RecordSale записывает расход по продаже. Quantity — проданное количество (> 0).
func (s *Service) RecordSale(cmd MovementCommand) (*domain.StockMovement, error) {
	return s.applySingle("sale", domain.MovementSale, cmd, true)
}

// RecordWriteOff записывает списание. Quantity — списанное количество (> 0).
func (s *Service) RecordWriteOff(cmd MovementCommand) (*domain.StockMovement, error) {
	return s.applySingle("write_off", domain.MovementWriteOff, cmd, true)
}

// RecordAdjustment записывает корректировку; Quantity подписан и задаёт направление.
func (s *Service) RecordAdjustment(cmd MovementCommand) (*domain.StockMovement, error) {
	start := time.Now()
	defer s.observeDuration("adjustment", start)

	if cmd.Quantity.IsZero() {
		return nil, domain.ErrInvalidQuantityForMovementType
	}

	quantity := normalizeQuantity(cmd.Quantity, cmd.Conversion)

	unlock := s.locks.lock(pairLockKey(cmd.VariantID, cmd.WarehouseID))
	defer unlock()

	var before decimal.Decimal
	movement, item, err := s.applyLocked(domain.MovementAdjustment, cmd, quantity, &before, nil)
	if err != nil {
		return nil, err
	}

	// Необычно крупная корректировка относительно остатка до операции — повод для алерта.
	if before.IsPositive() && quantity.Abs().GreaterThan(before.Mul(unusualAdjustmentRatio)) {
		s.emitAlert(domain.Alert{
			Type:        domain.AlertUnusualAdjustment,
			VariantID:   cmd.VariantID,
			WarehouseID: cmd.WarehouseID,
			Message:     fmt.Sprintf("adjustment of %s against total stock of %s", quantity.String(), before.String()),
			OccurredAt:  time.Now().UTC(),
		})
	}

	s.checkLowStock(item)
	return movement, nil
}

// applySingle — общий путь одиночных операций с фиксированным знаком.
// negate=true для расходных типов: вызывающий код передаёт величину, знак ставит движок.
func (s *Service) applySingle(operation string, movementType domain.MovementType, cmd MovementCommand, negate bool) (*domain.StockMovement, error) {
	start := time.Now()
	defer s.observeDuration(operation, start)

	if !cmd.Quantity.IsPositive() {
		return nil, domain.ErrQuantityNotPositive
	}

	quantity := normalizeQuantity(cmd.Quantity, cmd.Conversion)
	if negate {
		quantity = quantity.Neg()
	}

	unlock := s.locks.lock(pairLockKey(cmd.VariantID, cmd.WarehouseID))
	defer unlock()

	movement, item, err := s.applyLocked(movementType, cmd, quantity, nil, nil)
	if err != nil {
		return nil, err
	}

	s.checkLowStock(item)
	return movement, nil
}

// applyLocked выполняет read-modify-write агрегата под уже захваченным мьютексом
// пары. Конфликт версий от внешнего писателя разрешается перезагрузкой и
// повторной проверкой инварианта (optimistic locking с перечитыванием).
// precheck (опционально) валидирует операцию по свежему состоянию журнала и
// выполняется заново на каждой попытке: конфликт версий означает, что другой
// экземпляр успел провести запись, и условия допуска могли измениться.
func (s *Service) applyLocked(movementType domain.MovementType, cmd MovementCommand, quantity decimal.Decimal, totalBefore *decimal.Decimal, precheck func() error) (*domain.StockMovement, *domain.InventoryItem, error) {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		item, err := s.inventory.Get(cmd.VariantID, cmd.WarehouseID)
		if err != nil {
			return nil, nil, err
		}
		if totalBefore != nil {
			*totalBefore = item.TotalStock
		}

		if precheck != nil {
			if err := precheck(); err != nil {
				return nil, nil, err
			}
		}

		snapshotBefore := item
		balance, err := item.ApplyMovement(movementType, quantity)
		if err != nil {
			s.recordMovementMetric(movementType, "rejected")
			return nil, nil, err
		}

		movement, err := domain.NewMovement(domain.MovementInput{
			Item:            &item,
			Type:            movementType,
			Quantity:        quantity,
			RunningBalance:  balance,
			ReferenceNumber: cmd.ReferenceNumber,
			Reason:          cmd.Reason,
			ActorID:         cmd.Actor.UserID,
			TenantID:        cmd.Actor.TenantID,
			Metadata:        cmd.Metadata,
		})
		if err != nil {
			s.recordMovementMetric(movementType, "rejected")
			return nil, nil, err
		}

		if err := s.inventory.Save(item); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxSaveRetries-1 {
				s.recordVersionConflict()
				s.logger.WithFields(log.Fields{
					"variant_id":   cmd.VariantID,
					"warehouse_id": cmd.WarehouseID,
					"attempt":      attempt + 1,
				}).Warn("version conflict detected, retrying")
				time.Sleep(saveRetryBaseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			s.recordMovementMetric(movementType, "error")
			return nil, nil, err
		}

		if err := s.movements.Append(*movement); err != nil {
			s.recordMovementMetric(movementType, "error")
			return nil, nil, fmt.Errorf("append movement: %w", err)
		}

		s.recordMovementMetric(movementType, "ok")
		s.emitAudit(string(movementType), &item, &snapshotBefore, &item, cmd.Reason, cmd.Actor)
		return movement, &item, nil
	}

	return nil, nil, domain.ErrVersionConflict
}

// Transfer перемещает остаток между складами двойной записью: credit у
// источника, debit у получателя, связанные PairedMovementID и общим reference
// number. Обе записи журнала добавляются как единое целое (AppendPair);
// долговечную границу транзакции обеспечивает хранилище.
func (s *Service) Transfer(cmd TransferCommand) (credit, debit *domain.StockMovement, err error) {
	start := time.Now()
	defer s.observeDuration("transfer", start)

	if !cmd.Quantity.IsPositive() {
		return nil, nil, domain.ErrQuantityNotPositive
	}
	if cmd.ReferenceNumber == "" {
		return nil, nil, domain.ErrMissingReferenceNumber
	}
	if cmd.SourceWarehouseID == cmd.DestinationWarehouse {
		return nil, nil, domain.ErrWarehouseRequired
	}

	quantity := normalizeQuantity(cmd.Quantity, cmd.Conversion)

	sourceKey := pairLockKey(cmd.VariantID, cmd.SourceWarehouseID)
	destKey := pairLockKey(cmd.VariantID, cmd.DestinationWarehouse)
	unlock := s.locks.lockBoth(sourceKey, destKey)
	defer unlock()

	source, err := s.inventory.Get(cmd.VariantID, cmd.SourceWarehouseID)
	if err != nil {
		return nil, nil, err
	}
	dest, err := s.inventory.Get(cmd.VariantID, cmd.DestinationWarehouse)
	if err != nil {
		return nil, nil, err
	}

	sourceBefore := source
	destBefore := dest

	sourceBalance, err := source.ApplyMovement(domain.MovementTransfer, quantity.Neg())
	if err != nil {
		s.recordMovementMetric(domain.MovementTransfer, "rejected")
		return nil, nil, err
	}
	destBalance, err := dest.ApplyMovement(domain.MovementTransfer, quantity)
	if err != nil {
		s.recordMovementMetric(domain.MovementTransfer, "rejected")
		return nil, nil, err
	}

	credit, debit, err = domain.NewTransferPair(domain.TransferPairInput{
		Source:          &source,
		Destination:     &dest,
		Quantity:        quantity,
		SourceBalance:   sourceBalance,
		DestBalance:     destBalance,
		ReferenceNumber: cmd.ReferenceNumber,
		Reason:          cmd.Reason,
		ActorID:         cmd.Actor.UserID,
		TenantID:        cmd.Actor.TenantID,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := s.inventory.Save(source); err != nil {
		s.recordMovementMetric(domain.MovementTransfer, "error")
		return nil, nil, fmt.Errorf("save transfer source: %w", err)
	}
	if err := s.inventory.Save(dest); err != nil {
		s.recordMovementMetric(domain.MovementTransfer, "error")
		return nil, nil, fmt.Errorf("save transfer destination: %w", err)
	}
	if err := s.movements.AppendPair(*credit, *debit); err != nil {
		s.recordMovementMetric(domain.MovementTransfer, "error")
		return nil, nil, fmt.Errorf("append transfer pair: %w", err)
	}

	s.recordMovementMetric(domain.MovementTransfer, "ok")
	s.emitAudit("transfer_out", &source, &sourceBefore, &source, cmd.Reason, cmd.Actor)
	s.emitAudit("transfer_in", &dest, &destBefore, &dest, cmd.Reason, cmd.Actor)
	s.checkLowStock(&source)
	return credit, debit, nil
}

// RefundCommand записывает возврат против ранее проведённой продажи.
type RefundCommand struct {
	VariantID       string
	WarehouseID     string
	Quantity        decimal.Decimal
	Conversion      *domain.UnitConversion
	ReferenceNumber string
	Reason          string
	Actor           domain.Actor
}

// RecordRefund выполняет авторитетную проверку остатка к возврату и записывает
// Refund-движение с reference продажи. Предварительная валидация (ValidateRefund)
// только совещательная: суммы продаж и возвратов пересчитываются заново на
// каждой попытке сохранения, поэтому конкурирующий возврат из другого
// экземпляра, выигравший гонку за версию агрегата, не даёт превысить объём продажи.
func (s *Service) RecordRefund(cmd RefundCommand) (*domain.StockMovement, error) {
	start := time.Now()
	defer s.observeDuration("refund", start)

	if !cmd.Quantity.IsPositive() {
		return nil, domain.ErrQuantityNotPositive
	}
	if cmd.ReferenceNumber == "" {
		return nil, domain.ErrMissingReferenceNumber
	}

	quantity := normalizeQuantity(cmd.Quantity, cmd.Conversion)

	unlock := s.locks.lock(pairLockKey(cmd.VariantID, cmd.WarehouseID))
	defer unlock()

	checkRefundable := func() error {
		totalSold, totalRefunded, err := s.refundTotals(cmd.ReferenceNumber)
		if err != nil {
			return err
		}
		if totalSold.IsZero() {
			return domain.ErrOriginalSaleNotFound
		}

		remaining := totalSold.Sub(totalRefunded)
		if quantity.GreaterThan(remaining) {
			s.recordMovementMetric(domain.MovementRefund, "rejected")
			return &domain.RefundExceedsSaleError{
				ReferenceNumber:     cmd.ReferenceNumber,
				Requested:           quantity,
				RemainingRefundable: remaining,
			}
		}
		return nil
	}

	movement, item, err := s.applyLocked(domain.MovementRefund, MovementCommand{
		VariantID:       cmd.VariantID,
		WarehouseID:     cmd.WarehouseID,
		Quantity:        quantity,
		ReferenceNumber: cmd.ReferenceNumber,
		Reason:          cmd.Reason,
		Actor:           cmd.Actor,
	}, quantity, nil, checkRefundable)
	if err != nil {
		return nil, err
	}

	s.checkLowStock(item)
	return movement, nil
}

// refundTotals суммирует продажи и возвраты по reference number.
func (s *Service) refundTotals(referenceNumber string) (totalSold, totalRefunded decimal.Decimal, err error) {
	movements, err := s.movements.FindByReference(referenceNumber)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("find movements by reference: %w", err)
	}

	for _, m := range movements {
		switch m.Type {
		case domain.MovementSale:
			totalSold = totalSold.Add(m.Quantity.Abs())
		case domain.MovementRefund:
			totalRefunded = totalRefunded.Add(m.Quantity)
		}
	}
	return totalSold, totalRefunded, nil
}

// ReserveStock удерживает количество под резерв в той же критической секции,
// что и движения журнала: Reserve и ApplyMovement не чередуются для одной пары.
func (s *Service) ReserveStock(variantID, warehouseID string, quantity decimal.Decimal) error {
	unlock := s.locks.lock(pairLockKey(variantID, warehouseID))
	defer unlock()

	return s.mutateReserved(variantID, warehouseID, func(item *domain.InventoryItem) error {
		return item.Reserve(quantity)
	})
}

// ReleaseStock снимает удержание; ReservedStock не опускается ниже нуля.
func (s *Service) ReleaseStock(variantID, warehouseID string, quantity decimal.Decimal) error {
	unlock := s.locks.lock(pairLockKey(variantID, warehouseID))
	defer unlock()

	return s.mutateReserved(variantID, warehouseID, func(item *domain.InventoryItem) error {
		return item.Release(quantity)
	})
}

func (s *Service) mutateReserved(variantID, warehouseID string, mutate func(*domain.InventoryItem) error) error {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		item, err := s.inventory.Get(variantID, warehouseID)
		if err != nil {
			return err
		}

		if err := mutate(&item); err != nil {
			return err
		}

		if err := s.inventory.Save(item); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxSaveRetries-1 {
				s.recordVersionConflict()
				time.Sleep(saveRetryBaseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return err
		}
		return nil
	}

	return domain.ErrVersionConflict
}

// GetItem возвращает агрегат пары (variant, warehouse).
func (s *Service) GetItem(variantID, warehouseID string) (domain.InventoryItem, error) {
	return s.inventory.Get(variantID, warehouseID)
}

// Movements возвращает журнал агрегата, новые записи первыми.
func (s *Service) Movements(inventoryItemID string) ([]domain.StockMovement, error) {
	return s.movements.FindByInventoryItem(inventoryItemID)
}

// checkLowStock отправляет low-stock алерт при падении доступного остатка до порога.
func (s *Service) checkLowStock(item *domain.InventoryItem) {
	if item == nil || !item.ReorderPoint.IsPositive() {
		return
	}
	available := item.AvailableStock()
	if available.GreaterThan(item.ReorderPoint) {
		return
	}
	s.emitAlert(domain.Alert{
		Type:        domain.AlertLowStock,
		VariantID:   item.VariantID,
		WarehouseID: item.WarehouseID,
		Message:     fmt.Sprintf("available stock %s is at or below reorder point %s", available.String(), item.ReorderPoint.String()),
		OccurredAt:  time.Now().UTC(),
	})
}

// emitAlert отправляет уведомление best-effort: сбой логируется и проглатывается.
func (s *Service) emitAlert(alert domain.Alert) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(alert); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"alert_type": alert.Type,
			"variant_id": alert.VariantID,
		}).Warn("failed to deliver alert")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordAlert(string(alert.Type))
	}
}

// emitAudit записывает снапшоты до/после операции; сбой аудита не прерывает операцию.
func (s *Service) emitAudit(action string, item *domain.InventoryItem, before, after *domain.InventoryItem, reason string, actor domain.Actor) {
	if s.audit == nil {
		return
	}

	record := domain.AuditRecord{
		ID:         uuid.New().String(),
		Action:     action,
		EntityType: "inventory_item",
		EntityID:   item.ID,
		ActorID:    actor.UserID,
		TenantID:   actor.TenantID,
		Reason:     reason,
		Occurred:   time.Now().UTC(),
	}
	record.Before = marshalSnapshot(before)
	record.After = marshalSnapshot(after)

	if err := s.audit.Record(record); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"action":    action,
			"entity_id": item.ID,
		}).Warn("failed to write audit record")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordAuditRecord()
	}
}

// stockSnapshot — компактный снапшот счётчиков агрегата для аудита.
type stockSnapshot struct {
	TotalStock    string `json:"total_stock"`
	ReservedStock string `json:"reserved_stock"`
	Version       int64  `json:"version"`
}

func marshalSnapshot(item *domain.InventoryItem) []byte {
	if item == nil {
		return nil
	}
	data, err := json.Marshal(stockSnapshot{
		TotalStock:    item.TotalStock.String(),
		ReservedStock: item.ReservedStock.String(),
		Version:       item.Version,
	})
	if err != nil {
		return nil
	}
	return data
}

func (s *Service) recordMovementMetric(movementType domain.MovementType, result string) {
	if s.metrics != nil {
		s.metrics.RecordMovement(string(movementType), result)
	}
}

func (s *Service) recordVersionConflict() {
	if s.metrics != nil {
		s.metrics.RecordVersionConflict()
	}
}

func (s *Service) observeDuration(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordOperationDuration(operation, time.Since(start))
	}
}
