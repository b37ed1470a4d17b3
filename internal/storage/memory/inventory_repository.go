package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

// pairKey — ключ уникальности агрегата: (variant, warehouse).
type pairKey struct {
	variantID   string
	warehouseID string
}

// inventoryRepositoryInMemory — простая in-memory реализация InventoryRepository.
type inventoryRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[pairKey]domain.InventoryItem
}

// NewInventoryRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewInventoryRepository() domain.InventoryRepository {
	return &inventoryRepositoryInMemory{
		items: make(map[pairKey]domain.InventoryItem),
	}
}

// Create сохраняет новый агрегат, если пара (variant, warehouse) ещё не занята.
func (r *inventoryRepositoryInMemory) Create(item domain.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{item.VariantID, item.WarehouseID}
	if _, exists := r.items[key]; exists {
		return domain.ErrInventoryExists
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[key] = item
	return nil
}

// Get возвращает агрегат или ErrInventoryNotFound; мягко удалённые записи скрыты.
func (r *inventoryRepositoryInMemory) Get(variantID, warehouseID string) (domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[pairKey{variantID, warehouseID}]
	if !ok || item.IsDeleted {
		return domain.InventoryItem{}, domain.ErrInventoryNotFound
	}
	return item, nil
}

// Save перезаписывает агрегат, проверяя версию (optimistic locking).
func (r *inventoryRepositoryInMemory) Save(item domain.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{item.VariantID, item.WarehouseID}
	current, ok := r.items[key]
	if !ok {
		return domain.ErrInventoryNotFound
	}
	if current.Version != item.Version {
		return domain.ErrVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	item.Version++
	r.items[key] = item
	return nil
}

// ListByVariant возвращает неудалённые записи варианта по всем складам.
func (r *inventoryRepositoryInMemory) ListByVariant(variantID string) ([]domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.InventoryItem, 0)
	for _, item := range r.items {
		if item.VariantID != variantID || item.IsDeleted {
			continue
		}
		result = append(result, item)
	}
	sortItems(result)
	return result, nil
}

// ListByWarehouse возвращает неудалённые записи склада.
func (r *inventoryRepositoryInMemory) ListByWarehouse(warehouseID string) ([]domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.InventoryItem, 0)
	for _, item := range r.items {
		if item.WarehouseID != warehouseID || item.IsDeleted {
			continue
		}
		result = append(result, item)
	}
	sortItems(result)
	return result, nil
}

// FindExpiring возвращает записи, чей срок годности наступает до before.
func (r *inventoryRepositoryInMemory) FindExpiring(before time.Time) ([]domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.InventoryItem, 0)
	for _, item := range r.items {
		if item.IsDeleted || item.ExpiryDate == nil {
			continue
		}
		if item.ExpiryDate.Before(before) {
			result = append(result, item)
		}
	}
	sortItems(result)
	return result, nil
}

func sortItems(items []domain.InventoryItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].VariantID != items[j].VariantID {
			return items[i].VariantID < items[j].VariantID
		}
		return items[i].WarehouseID < items[j].WarehouseID
	})
}

var _ domain.InventoryRepository = (*inventoryRepositoryInMemory)(nil)
