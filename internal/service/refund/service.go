package refund

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/service/stock"
)

// Ledger — операции движка журнала, нужные обработке возвратов.
type Ledger interface {
	RecordRefund(cmd stock.RefundCommand) (*domain.StockMovement, error)
}

// Service сверяет возвраты с исходными продажами по reference number.
type Service struct {
	movements domain.MovementRepository
	ledger    Ledger
	logger    *log.Entry
}

// NewService создаёт сервис возвратов.
func NewService(movements domain.MovementRepository, ledger Ledger, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "refund")
	}
	return &Service{
		movements: movements,
		ledger:    ledger,
		logger:    logger,
	}
}

// Sale — сводка по продаже, найденной по reference number.
type Sale struct {
	ReferenceNumber string
	VariantID       string
	WarehouseID     string
	// TotalSold — суммарное проданное количество (положительное).
	TotalSold decimal.Decimal
	// TotalRefunded — суммарно возвращено по этой продаже.
	TotalRefunded decimal.Decimal
	// SoldAt — время самой ранней продажи под этим reference number.
	SoldAt time.Time
	// Movements — все движения с этим reference number, новые первыми.
	Movements []domain.StockMovement
}

// RemainingRefundable возвращает ещё доступное к возврату количество.
func (s Sale) RemainingRefundable() decimal.Decimal {
	return s.TotalSold.Sub(s.TotalRefunded)
}

// LookupSale находит продажу по reference number и возвращает её сводку.
func (s *Service) LookupSale(referenceNumber string) (Sale, error) {
	if referenceNumber == "" {
		return Sale{}, domain.ErrMissingReferenceNumber
	}

	movements, err := s.movements.FindByReference(referenceNumber)
	if err != nil {
		return Sale{}, fmt.Errorf("find movements by reference: %w", err)
	}

	sale := Sale{ReferenceNumber: referenceNumber, Movements: movements}
	for _, m := range movements {
		switch m.Type {
		case domain.MovementSale:
			sale.TotalSold = sale.TotalSold.Add(m.Quantity.Abs())
			sale.VariantID = m.VariantID
			sale.WarehouseID = m.WarehouseID
			if sale.SoldAt.IsZero() || !m.Timestamp.After(sale.SoldAt) {
				sale.SoldAt = m.Timestamp
			}
		case domain.MovementRefund:
			sale.TotalRefunded = sale.TotalRefunded.Add(m.Quantity)
		}
	}

	if sale.TotalSold.IsZero() {
		return Sale{}, domain.ErrSaleNotFound
	}
	return sale, nil
}

// Validation — результат совещательной проверки возврата. Авторитетная
// проверка повторяется движком журнала в момент записи возврата,
// поэтому положительный результат здесь не гарантирует успех ExecuteRefund.
type Validation struct {
	CanRefund           bool
	TotalSold           decimal.Decimal
	TotalRefunded       decimal.Decimal
	RemainingRefundable decimal.Decimal
	Message             string
}

// ValidateRefund проверяет, укладывается ли запрошенный возврат в остаток продажи.
func (s *Service) ValidateRefund(referenceNumber string, quantity decimal.Decimal) (Validation, error) {
	if !quantity.IsPositive() {
		return Validation{}, domain.ErrQuantityNotPositive
	}

	sale, err := s.LookupSale(referenceNumber)
	if err != nil {
		return Validation{}, err
	}

	remaining := sale.RemainingRefundable()
	validation := Validation{
		TotalSold:           sale.TotalSold,
		TotalRefunded:       sale.TotalRefunded,
		RemainingRefundable: remaining,
	}

	if quantity.GreaterThan(remaining) {
		validation.Message = fmt.Sprintf(
			"requested %s exceeds remaining refundable %s for reference %s",
			quantity, remaining, referenceNumber,
		)
		return validation, nil
	}

	validation.CanRefund = true
	return validation, nil
}

// ExecuteCommand — параметры исполнения возврата.
type ExecuteCommand struct {
	ReferenceNumber string
	Quantity        decimal.Decimal
	Reason          string
	Actor           domain.Actor
}

// ExecuteRefund записывает возврат в журнал. Вариант и склад берутся из
// исходной продажи; лимит возврата пересчитывается движком под блокировкой.
func (s *Service) ExecuteRefund(cmd ExecuteCommand) (*domain.StockMovement, error) {
	sale, err := s.LookupSale(cmd.ReferenceNumber)
	if err != nil {
		return nil, err
	}

	return s.ledger.RecordRefund(stock.RefundCommand{
		VariantID:       sale.VariantID,
		WarehouseID:     sale.WarehouseID,
		Quantity:        cmd.Quantity,
		ReferenceNumber: cmd.ReferenceNumber,
		Reason:          cmd.Reason,
		Actor:           cmd.Actor,
	})
}

// RefundHistory возвращает возвраты по продаже, новые первыми.
func (s *Service) RefundHistory(referenceNumber string) ([]domain.StockMovement, error) {
	movements, err := s.movements.FindByReference(referenceNumber)
	if err != nil {
		return nil, fmt.Errorf("find movements by reference: %w", err)
	}

	var refunds []domain.StockMovement
	for _, m := range movements {
		if m.Type == domain.MovementRefund {
			refunds = append(refunds, m)
		}
	}
	return refunds, nil
}
