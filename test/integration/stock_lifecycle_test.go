package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/ims/internal/audit"
	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/notify"
	"github.com/vladislavdragonenkov/ims/internal/service/refund"
	"github.com/vladislavdragonenkov/ims/internal/service/reservation"
	"github.com/vladislavdragonenkov/ims/internal/service/stock"
	"github.com/vladislavdragonenkov/ims/internal/service/sweeper"
	"github.com/vladislavdragonenkov/ims/internal/storage/memory"
)

// StockLifecycleTestSuite тестирует сквозные сценарии движения остатков.
type StockLifecycleTestSuite struct {
	suite.Suite
	inventory    domain.InventoryRepository
	movements    domain.MovementRepository
	reservations domain.ReservationRepository
	stock        *stock.Service
	reservation  *reservation.Service
	refund       *refund.Service
}

func (suite *StockLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	suite.inventory = memory.NewInventoryRepository()
	suite.movements = memory.NewMovementRepository()
	suite.reservations = memory.NewReservationRepository()
	auditRepo := memory.NewAuditRepository()

	suite.stock = stock.NewServiceWithoutMetrics(
		suite.inventory,
		suite.movements,
		audit.NewSink(auditRepo, audit.WithLogger(logger)),
		notify.NewLogSink(logger),
		logger,
	)
	suite.reservation = reservation.NewServiceWithoutMetrics(suite.reservations, suite.stock, logger)
	suite.refund = refund.NewService(suite.movements, suite.stock, logger)
}

func (suite *StockLifecycleTestSuite) openBalance(variantID, warehouseID string, quantity int64) {
	_, err := suite.stock.RecordOpeningBalance(stock.OpeningBalanceCommand{
		VariantID:   variantID,
		WarehouseID: warehouseID,
		Quantity:    decimal.NewFromInt(quantity),
		Reason:      "initial stocktake",
	})
	require.NoError(suite.T(), err)
}

func (suite *StockLifecycleTestSuite) item(variantID, warehouseID string) domain.InventoryItem {
	item, err := suite.stock.GetItem(variantID, warehouseID)
	require.NoError(suite.T(), err)
	return item
}

// Сценарий: резерв удерживает остаток, продажа сверх доступного отклоняется,
// отмена резерва возвращает удержанное.
func (suite *StockLifecycleTestSuite) TestReservationHoldsStock() {
	suite.openBalance("variant-1", "warehouse-1", 100)

	created, err := suite.reservation.Create(reservation.CreateCommand{
		VariantID:       "variant-1",
		WarehouseID:     "warehouse-1",
		Quantity:        decimal.NewFromInt(30),
		ExpiresAt:       time.Now().UTC().Add(time.Hour),
		ReferenceNumber: "ORD-1",
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.ReservationStatusActive, created.Status)

	item := suite.item("variant-1", "warehouse-1")
	require.True(suite.T(), item.AvailableStock().Equal(decimal.NewFromInt(70)))

	// Продажа 20 из доступных 70 проходит.
	_, err = suite.stock.RecordSale(stock.MovementCommand{
		VariantID:       "variant-1",
		WarehouseID:     "warehouse-1",
		Quantity:        decimal.NewFromInt(20),
		ReferenceNumber: "INV-1",
		Reason:          "order shipped",
	})
	require.NoError(suite.T(), err)

	// Продажа 60 при доступных 50 отклоняется.
	_, err = suite.stock.RecordSale(stock.MovementCommand{
		VariantID:       "variant-1",
		WarehouseID:     "warehouse-1",
		Quantity:        decimal.NewFromInt(60),
		ReferenceNumber: "INV-2",
		Reason:          "order shipped",
	})
	require.ErrorIs(suite.T(), err, domain.ErrInsufficientStock)

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(suite.T(), err, &insufficient)
	require.True(suite.T(), insufficient.Available.Equal(decimal.NewFromInt(50)))

	// Отмена резерва возвращает удержанное в доступный остаток.
	cancelled, err := suite.reservation.Cancel(created.ID, "customer cancelled")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.ReservationStatusCancelled, cancelled.Status)

	item = suite.item("variant-1", "warehouse-1")
	require.True(suite.T(), item.TotalStock.Equal(decimal.NewFromInt(80)))
	require.True(suite.T(), item.ReservedStock.IsZero())
	require.True(suite.T(), item.AvailableStock().Equal(decimal.NewFromInt(80)))
}

// Сценарий: возврат не может превысить объём исходной продажи.
func (suite *StockLifecycleTestSuite) TestRefundLimitedBySale() {
	suite.openBalance("variant-2", "warehouse-1", 50)

	_, err := suite.stock.RecordSale(stock.MovementCommand{
		VariantID:       "variant-2",
		WarehouseID:     "warehouse-1",
		Quantity:        decimal.NewFromInt(10),
		ReferenceNumber: "INV-10",
		Reason:          "order shipped",
	})
	require.NoError(suite.T(), err)

	validation, err := suite.refund.ValidateRefund("INV-10", decimal.NewFromInt(15))
	require.NoError(suite.T(), err)
	require.False(suite.T(), validation.CanRefund)
	require.True(suite.T(), validation.RemainingRefundable.Equal(decimal.NewFromInt(10)))

	_, err = suite.refund.ExecuteRefund(refund.ExecuteCommand{
		ReferenceNumber: "INV-10",
		Quantity:        decimal.NewFromInt(15),
		Reason:          "customer return",
	})
	require.ErrorIs(suite.T(), err, domain.ErrRefundExceedsSale)

	var exceeds *domain.RefundExceedsSaleError
	require.ErrorAs(suite.T(), err, &exceeds)
	require.True(suite.T(), exceeds.RemainingRefundable.Equal(decimal.NewFromInt(10)))

	// Возврат в пределах проданного проходит и восстанавливает остаток.
	movement, err := suite.refund.ExecuteRefund(refund.ExecuteCommand{
		ReferenceNumber: "INV-10",
		Quantity:        decimal.NewFromInt(10),
		Reason:          "customer return",
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.MovementRefund, movement.Type)
	require.True(suite.T(), movement.RunningBalance.Equal(decimal.NewFromInt(50)))

	// Продажа исчерпана: даже единица больше не возвращается.
	_, err = suite.refund.ExecuteRefund(refund.ExecuteCommand{
		ReferenceNumber: "INV-10",
		Quantity:        decimal.NewFromInt(1),
		Reason:          "customer return",
	})
	require.ErrorIs(suite.T(), err, domain.ErrRefundExceedsSale)
}

// Сценарий: перемещение создаёт сбалансированную парную запись.
func (suite *StockLifecycleTestSuite) TestTransferBalancedPair() {
	suite.openBalance("variant-3", "warehouse-a", 100)
	suite.openBalance("variant-3", "warehouse-b", 10)

	credit, debit, err := suite.stock.Transfer(stock.TransferCommand{
		VariantID:            "variant-3",
		SourceWarehouseID:    "warehouse-a",
		DestinationWarehouse: "warehouse-b",
		Quantity:             decimal.NewFromInt(25),
		ReferenceNumber:      "TRF-1",
		Reason:               "rebalance",
	})
	require.NoError(suite.T(), err)

	require.True(suite.T(), credit.Quantity.Add(debit.Quantity).IsZero())
	require.Equal(suite.T(), credit.PairedMovementID, debit.ID)
	require.Equal(suite.T(), debit.PairedMovementID, credit.ID)
	require.Equal(suite.T(), credit.ReferenceNumber, debit.ReferenceNumber)

	source := suite.item("variant-3", "warehouse-a")
	destination := suite.item("variant-3", "warehouse-b")
	require.True(suite.T(), source.TotalStock.Equal(decimal.NewFromInt(75)))
	require.True(suite.T(), destination.TotalStock.Equal(decimal.NewFromInt(35)))
}

// Сценарий: свипер снимает просроченные резервы и возвращает остаток.
func (suite *StockLifecycleTestSuite) TestSweeperReleasesExpiredReservations() {
	suite.openBalance("variant-4", "warehouse-1", 40)

	created, err := suite.reservation.Create(reservation.CreateCommand{
		VariantID:       "variant-4",
		WarehouseID:     "warehouse-1",
		Quantity:        decimal.NewFromInt(15),
		ExpiresAt:       time.Now().UTC().Add(time.Minute),
		ReferenceNumber: "ORD-2",
	})
	require.NoError(suite.T(), err)

	notifier := &recordingNotifier{}
	worker := sweeper.NewWorker(suite.reservation, suite.inventory, notifier)

	// До срока истечения резерв не трогается.
	expired, err := worker.SweepOnce(context.Background(), time.Now().UTC())
	require.NoError(suite.T(), err)
	require.Zero(suite.T(), expired)

	// После срока резерв снимается, остаток возвращается.
	expired, err = worker.SweepOnce(context.Background(), time.Now().UTC().Add(2*time.Minute))
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 1, expired)

	got, err := suite.reservation.Get(created.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.ReservationStatusExpired, got.Status)

	item := suite.item("variant-4", "warehouse-1")
	require.True(suite.T(), item.ReservedStock.IsZero())
	require.True(suite.T(), item.AvailableStock().Equal(decimal.NewFromInt(40)))

	var expiredAlerts int
	for _, alert := range notifier.alerts {
		if alert.Type == domain.AlertReservationExpired {
			expiredAlerts++
		}
	}
	require.Equal(suite.T(), 1, expiredAlerts)
}

// Сценарий: агрегат всегда равен сумме журнала.
func (suite *StockLifecycleTestSuite) TestLedgerReplayMatchesAggregate() {
	suite.openBalance("variant-5", "warehouse-1", 100)

	commands := []struct {
		run func() (*domain.StockMovement, error)
	}{
		{func() (*domain.StockMovement, error) {
			return suite.stock.RecordPurchase(stock.MovementCommand{
				VariantID: "variant-5", WarehouseID: "warehouse-1",
				Quantity: decimal.NewFromInt(40), Reason: "restock",
			})
		}},
		{func() (*domain.StockMovement, error) {
			return suite.stock.RecordSale(stock.MovementCommand{
				VariantID: "variant-5", WarehouseID: "warehouse-1",
				Quantity: decimal.NewFromInt(35), ReferenceNumber: "INV-50", Reason: "order shipped",
			})
		}},
		{func() (*domain.StockMovement, error) {
			return suite.stock.RecordWriteOff(stock.MovementCommand{
				VariantID: "variant-5", WarehouseID: "warehouse-1",
				Quantity: decimal.NewFromInt(5), Reason: "damaged",
			})
		}},
		{func() (*domain.StockMovement, error) {
			return suite.stock.RecordAdjustment(stock.MovementCommand{
				VariantID: "variant-5", WarehouseID: "warehouse-1",
				Quantity: decimal.NewFromInt(-3), Reason: "stocktake correction",
			})
		}},
	}
	for _, cmd := range commands {
		_, err := cmd.run()
		require.NoError(suite.T(), err)
	}

	item := suite.item("variant-5", "warehouse-1")
	movements, err := suite.stock.Movements(item.ID)
	require.NoError(suite.T(), err)

	replayed := decimal.Zero
	for _, movement := range movements {
		replayed = replayed.Add(movement.Quantity)
	}
	require.True(suite.T(), replayed.Equal(item.TotalStock),
		"ledger sum %s != aggregate total %s", replayed, item.TotalStock)

	// Running balance свежей записи совпадает с текущим остатком.
	require.True(suite.T(), movements[0].RunningBalance.Equal(item.TotalStock))
}

// Сценарий: частичная отгрузка резерва пишет продажу и уменьшает удержание.
func (suite *StockLifecycleTestSuite) TestPartialFulfillment() {
	suite.openBalance("variant-6", "warehouse-1", 60)

	created, err := suite.reservation.Create(reservation.CreateCommand{
		VariantID:       "variant-6",
		WarehouseID:     "warehouse-1",
		Quantity:        decimal.NewFromInt(20),
		ExpiresAt:       time.Now().UTC().Add(time.Hour),
		ReferenceNumber: "ORD-3",
	})
	require.NoError(suite.T(), err)

	updated, movement, err := suite.reservation.Fulfill(created.ID, decimal.NewFromInt(12), domain.Actor{})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.ReservationStatusPartiallyFulfilled, updated.Status)
	require.True(suite.T(), updated.RemainingQuantity.Equal(decimal.NewFromInt(8)))
	require.Equal(suite.T(), domain.MovementSale, movement.Type)
	require.True(suite.T(), movement.Quantity.Equal(decimal.NewFromInt(-12)))
	require.Equal(suite.T(), "ORD-3", movement.ReferenceNumber)

	item := suite.item("variant-6", "warehouse-1")
	require.True(suite.T(), item.TotalStock.Equal(decimal.NewFromInt(48)))
	require.True(suite.T(), item.ReservedStock.Equal(decimal.NewFromInt(8)))

	// Дозакрытие резерва переводит его в терминальный статус.
	final, _, err := suite.reservation.Fulfill(created.ID, decimal.NewFromInt(8), domain.Actor{})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.ReservationStatusFulfilled, final.Status)
	require.True(suite.T(), final.RemainingQuantity.IsZero())
}

func TestStockLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(StockLifecycleTestSuite))
}

type recordingNotifier struct {
	alerts []domain.Alert
}

func (n *recordingNotifier) Notify(alert domain.Alert) error {
	if alert.Type == "" {
		return errors.New("alert type is required")
	}
	n.alerts = append(n.alerts, alert)
	return nil
}
