package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

// reservationRepositoryInMemory — простая in-memory реализация ReservationRepository.
type reservationRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Reservation
}

// NewReservationRepository возвращает in-memory репозиторий резервов.
func NewReservationRepository() domain.ReservationRepository {
	return &reservationRepositoryInMemory{
		items: make(map[string]domain.Reservation),
	}
}

// Create сохраняет новый резерв, если ID ещё не занят.
func (r *reservationRepositoryInMemory) Create(reservation domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[reservation.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.items[reservation.ID] = reservation
	return nil
}

// Get возвращает резерв или ErrReservationNotFound.
func (r *reservationRepositoryInMemory) Get(id string) (domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reservation, ok := r.items[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return reservation, nil
}

// Save перезаписывает резерв, проверяя версию (optimistic locking).
func (r *reservationRepositoryInMemory) Save(reservation domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[reservation.ID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if current.Version != reservation.Version {
		return domain.ErrVersionConflict
	}
	reservation.Version++
	r.items[reservation.ID] = reservation
	return nil
}

// FindExpiring возвращает нетерминальные резервы с ExpiresAt <= before.
func (r *reservationRepositoryInMemory) FindExpiring(before time.Time) ([]domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Reservation, 0)
	for _, reservation := range r.items {
		if reservation.Status.Terminal() {
			continue
		}
		if !reservation.ExpiresAt.After(before) {
			result = append(result, reservation)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ExpiresAt.Equal(result[j].ExpiresAt) {
			return result[i].ExpiresAt.Before(result[j].ExpiresAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// ListByItem возвращает резервы пары (variant, warehouse), новые первыми.
func (r *reservationRepositoryInMemory) ListByItem(variantID, warehouseID string) ([]domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Reservation, 0)
	for _, reservation := range r.items {
		if reservation.VariantID != variantID || reservation.WarehouseID != warehouseID {
			continue
		}
		result = append(result, reservation)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

var _ domain.ReservationRepository = (*reservationRepositoryInMemory)(nil)
