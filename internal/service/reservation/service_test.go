package reservation

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/service/stock"
	"github.com/vladislavdragonenkov/ims/internal/storage/memory"
)

type testEnv struct {
	reservations *Service
	stock        *stock.Service
	repo         domain.ReservationRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := log.New()
	logger.SetOutput(io.Discard)
	entry := logger.WithField("component", "reservation-test")

	stockSvc := stock.NewServiceWithoutMetrics(
		memory.NewInventoryRepository(),
		memory.NewMovementRepository(),
		nil,
		nil,
		entry,
	)

	repo := memory.NewReservationRepository()
	return &testEnv{
		reservations: NewServiceWithoutMetrics(repo, stockSvc, entry),
		stock:        stockSvc,
		repo:         repo,
	}
}

func seedStock(t *testing.T, env *testEnv, variantID, warehouseID string, qty int64) {
	t.Helper()

	_, err := env.stock.RecordOpeningBalance(stock.OpeningBalanceCommand{
		VariantID:   variantID,
		WarehouseID: warehouseID,
		Quantity:    decimal.NewFromInt(qty),
		Reason:      "initial stock count",
	})
	if err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

func createReservation(t *testing.T, env *testEnv, variantID, warehouseID string, qty int64, ttl time.Duration) *domain.Reservation {
	t.Helper()

	reservation, err := env.reservations.Create(CreateCommand{
		VariantID:       variantID,
		WarehouseID:     warehouseID,
		Quantity:        decimal.NewFromInt(qty),
		ExpiresAt:       time.Now().UTC().Add(ttl),
		ReferenceNumber: "ORD-1",
		Actor:           domain.Actor{UserID: "user-1"},
	})
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	return reservation
}

func TestCreate(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, "v1", "w1", 100)

	reservation := createReservation(t, env, "v1", "w1", 30, time.Hour)

	if reservation.Status != domain.ReservationStatusActive {
		t.Fatalf("expected active reservation, got %s", reservation.Status)
	}

	item, err := env.stock.GetItem("v1", "w1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !item.ReservedStock.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected reserved 30, got %s", item.ReservedStock)
	}
	if !item.AvailableStock().Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected available 70, got %s", item.AvailableStock())
	}
}

func TestCreate_InsufficientStock(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, "v1", "w1", 10)

	_, err := env.reservations.Create(CreateCommand{
		VariantID:   "v1",
		WarehouseID: "w1",
		Quantity:    decimal.NewFromInt(30),
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestCreate_ExpiryInPast(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, "v1", "w1", 100)

	_, err := env.reservations.Create(CreateCommand{
		VariantID:   "v1",
		WarehouseID: "w1",
		Quantity:    decimal.NewFromInt(10),
		ExpiresAt:   time.Now().UTC().Add(-time.Minute),
	})
	if !errors.Is(err, domain.ErrExpiryNotInFuture) {
		t.Fatalf("expected ErrExpiryNotInFuture, got %v", err)
	}
}

func TestModify_Increase(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, "v1", "w1", 100)
	reservation := createReservation(t, env, "v1", "w1", 30, time.Hour)

	updated, err := env.reservations.Modify(reservation.ID, decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("modify reservation: %v", err)
	}
	if !updated.RemainingQuantity.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected remaining 50, got %s", updated.RemainingQuantity)
	}

	item, err := env.stock.GetItem("v1", "w1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !item.ReservedStock.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected reserved 50, got %s", item.ReservedStock)
	}
}

func TestModify_Decrease(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, "v1", "w1", 100)
	reservation := createReservation(t, env, "v1", "w1", 30, time.Hour)

	if _, err := env.reservations.Modify(reservation.ID, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("modify reservation: %v", err)
	}

	item, err := env.stock.GetItem("v1", "w1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !item.ReservedStock.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected reserved 10, got %s", item.ReservedStock)
	}
}

func TestModify_IncreaseBeyondAvailable(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, "v1", "w1", 40)
	reservation := createReservation(t, env, "v1", "w1", 30, time.Hour)

	_, err := env.reservations.Modify(reservation.ID, decimal.NewFromInt(60))
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	// Неудачное изменение не должно затронуть ни резерв, ни удержание.
	fresh, err := env.reservations.Get(reservation.ID)
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if !fresh.RemainingQuantity.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected remaining 30, got %s", fresh.RemainingQuantity)
	}
	item, err := env.stock.GetItem("v1", "w1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !item.ReservedStock.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected reserved 30, got %s", item.ReservedStock)
	}
}

func TestFulfill_Partial(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, "v1", "w1", 100)
	reservation := createReservation(t, env, "v1", "w1", 30, time.Hour)

	updated, movement, err := env.reservations.Fulfill(reservation.ID, decimal.NewFromInt(20), domain.Actor{UserID: "user-1"})
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if updated.Status != domain.ReservationStatusPartiallyFulfilled {
		t.Fatalf("expected partially fulfilled, got %s", updated.Status)
	}
	if !updated.RemainingQuantity.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected remaining 10, got %s", updated.RemainingQuantity)
	}
	if movement.Type != domain.MovementSale || !movement.Quantity.Equal(decimal.NewFromInt(-20)) {
		t.Fatalf("unexpected sale movement: %+v", movement)
	}

	item, err := env.stock.GetItem("v1", "w1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !item.TotalStock.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("expected total 80 after shipping 20, got %s", item.TotalStock)
	}
	if !item.ReservedStock.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected reserved 10, got %s", item.ReservedStock)
	}
}

func TestFulfill_Complete(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, "v1", "w1", 100)
	reservation := createReservation(t, env, "v1", "w1", 30, time.Hour)

	updated, _, err := env.reservations.Fulfill(reservation.ID, decimal.NewFromInt(30), domain.Actor{})
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if updated.Status != domain.ReservationStatusFulfilled {
		t.Fatalf("expected fulfilled, got %s", updated.Status)
	}

	// Терминальный резерв больше не принимает отгрузок.
	_, _, err = env.reservations.Fulfill(reservation.ID, decimal.NewFromInt(1), domain.Actor{})
	if !errors.Is(err, domain.ErrReservationNotActive) {
		t.Fatalf("expected ErrReservationNotActive, got %v", err)
	}
}

func TestFulfill_MoreThanRemaining(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, "v1", "w1", 100)
	reservation := createReservation(t, env, "v1", "w1", 30, time.Hour)

	_, _, err := env.reservations.Fulfill(reservation.ID, decimal.NewFromInt(40), domain.Actor{})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, "v1", "w1", 100)
	reservation := createReservation(t, env, "v1", "w1", 30, time.Hour)

	updated, err := env.reservations.Cancel(reservation.ID, "customer abandoned checkout")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.Status != domain.ReservationStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}

	item, err := env.stock.GetItem("v1", "w1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !item.ReservedStock.IsZero() {
		t.Fatalf("expected reserved 0 after cancel, got %s", item.ReservedStock)
	}
	if !item.AvailableStock().Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected available 100 after cancel, got %s", item.AvailableStock())
	}

	// Повторная отмена терминального резерва отклоняется.
	if _, err := env.reservations.Cancel(reservation.ID, "again"); !errors.Is(err, domain.ErrReservationNotActive) {
		t.Fatalf("expected ErrReservationNotActive, got %v", err)
	}
}

func TestExpireDue(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, "v1", "w1", 100)

	reservation := createReservation(t, env, "v1", "w1", 30, time.Minute)

	// До срока истечения резерв не снимается.
	expired, err := env.reservations.ExpireDue(time.Now().UTC())
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("nothing is due yet, got %d expired", len(expired))
	}

	future := time.Now().UTC().Add(2 * time.Minute)
	expired, err = env.reservations.ExpireDue(future)
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if len(expired) != 1 || expired[0].Reservation.ID != reservation.ID {
		t.Fatalf("expected the reservation to expire, got %+v", expired)
	}
	if expired[0].Reservation.Status != domain.ReservationStatusExpired {
		t.Fatalf("expected expired status, got %s", expired[0].Reservation.Status)
	}
	if !expired[0].Released.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected released 30, got %s", expired[0].Released)
	}

	item, err := env.stock.GetItem("v1", "w1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !item.ReservedStock.IsZero() {
		t.Fatalf("expected reserved stock released, got %s", item.ReservedStock)
	}

	// Повторный прогон идемпотентен.
	expired, err = env.reservations.ExpireDue(future)
	if err != nil {
		t.Fatalf("second expire due: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("second sweep must be a no-op, got %d expired", len(expired))
	}
}

func TestExpireDue_PartiallyFulfilledReleasesRemainder(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, "v1", "w1", 100)
	reservation := createReservation(t, env, "v1", "w1", 10, time.Minute)

	if _, _, err := env.reservations.Fulfill(reservation.ID, decimal.NewFromInt(6), domain.Actor{}); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	future := time.Now().UTC().Add(2 * time.Minute)
	expired, err := env.reservations.ExpireDue(future)
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if len(expired) != 1 || expired[0].Reservation.ID != reservation.ID {
		t.Fatalf("expected the reservation to expire, got %+v", expired)
	}
	// Отгружено 6 из 10: по сроку освобождается только остаток.
	if !expired[0].Released.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("expected released 4, got %s", expired[0].Released)
	}
}

func TestExpiringSoon(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, "v1", "w1", 100)

	soonRes := createReservation(t, env, "v1", "w1", 10, 10*time.Minute)
	createReservation(t, env, "v1", "w1", 10, 2*time.Hour)

	soon, err := env.reservations.ExpiringSoon(time.Now().UTC(), 30*time.Minute)
	if err != nil {
		t.Fatalf("expiring soon: %v", err)
	}
	if len(soon) != 1 || soon[0].ID != soonRes.ID {
		t.Fatalf("expected only the near-expiry reservation, got %+v", soon)
	}
}
