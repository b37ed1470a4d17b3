package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

// movementRepositoryInMemory — append-only in-memory журнал движений.
// Записи никогда не обновляются и не удаляются.
type movementRepositoryInMemory struct {
	mu        sync.RWMutex
	movements []domain.StockMovement
}

// NewMovementRepository возвращает in-memory реализацию MovementRepository.
func NewMovementRepository() domain.MovementRepository {
	return &movementRepositoryInMemory{}
}

// Append добавляет одиночную запись в журнал.
func (r *movementRepositoryInMemory) Append(movement domain.StockMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.movements = append(r.movements, movement)
	return nil
}

// AppendPair добавляет обе половины двойной записи под одной блокировкой,
// чтобы журнал никогда не наблюдался с половиной пары.
func (r *movementRepositoryInMemory) AppendPair(credit, debit domain.StockMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.movements = append(r.movements, credit, debit)
	return nil
}

// FindByReference возвращает движения с общим reference number, новые первыми.
func (r *movementRepositoryInMemory) FindByReference(referenceNumber string) ([]domain.StockMovement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.StockMovement, 0)
	for _, m := range r.movements {
		if m.ReferenceNumber == referenceNumber {
			result = append(result, m)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

// FindByInventoryItem возвращает движения агрегата, новые первыми.
func (r *movementRepositoryInMemory) FindByInventoryItem(inventoryItemID string) ([]domain.StockMovement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.StockMovement, 0)
	for _, m := range r.movements {
		if m.InventoryItemID == inventoryItemID {
			result = append(result, m)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

// HasOpeningBalance сообщает, заведён ли начальный остаток для пары.
func (r *movementRepositoryInMemory) HasOpeningBalance(variantID, warehouseID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.movements {
		if m.Type == domain.MovementOpeningBalance && m.VariantID == variantID && m.WarehouseID == warehouseID {
			return true, nil
		}
	}
	return false, nil
}

func sortNewestFirst(movements []domain.StockMovement) {
	sort.Slice(movements, func(i, j int) bool {
		if !movements[i].Timestamp.Equal(movements[j].Timestamp) {
			return movements[i].Timestamp.After(movements[j].Timestamp)
		}
		return movements[i].ID > movements[j].ID
	})
}

var _ domain.MovementRepository = (*movementRepositoryInMemory)(nil)
